package connector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
	Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter
	UIDExpunge(uids imap.UIDSet) expungeWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}
type expungeWaiter interface{ Close() error }

// IMAPMailbox opens IMAP/IMAPS sessions for the inbound pipeline.
type IMAPMailbox struct {
	account     Account
	dialTimeout time.Duration
	logger      *log.Logger
	newClient   func(Account) (imapClient, error)
}

// IMAPOption customizes mailbox behavior.
type IMAPOption func(*IMAPMailbox)

// NewIMAPMailbox returns an IMAP-backed mailbox for the given account.
func NewIMAPMailbox(account Account, opts ...IMAPOption) *IMAPMailbox {
	m := &IMAPMailbox{
		account:     account,
		dialTimeout: 5 * time.Second,
		logger:      log.Default(),
	}
	m.newClient = m.defaultClientFactory
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// WithIMAPLogger overrides the logger used for connector diagnostics.
func WithIMAPLogger(logger *log.Logger) IMAPOption {
	return func(m *IMAPMailbox) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithIMAPDialTimeout overrides the socket dial timeout.
func WithIMAPDialTimeout(timeout time.Duration) IMAPOption {
	return func(m *IMAPMailbox) {
		if timeout > 0 {
			m.dialTimeout = timeout
		}
	}
}

func withIMAPClientFactory(factory func(Account) (imapClient, error)) IMAPOption {
	return func(m *IMAPMailbox) {
		if factory != nil {
			m.newClient = factory
		}
	}
}

// Connect dials and authenticates, returning a session scoped to one poll
// cycle. The caller owns Close.
func (m *IMAPMailbox) Connect(ctx context.Context) (Session, error) {
	if err := validateAccount(m.account); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := m.newClient(m.account)
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}
	if err := client.Login(m.account.Username, string(m.account.Password)).Wait(); err != nil {
		m.safeClose(client)
		return nil, fmt.Errorf("imap auth: %w", err)
	}
	return &imapSession{
		client: client,
		folder: m.account.Folder,
		logger: m.logger,
	}, nil
}

func (m *IMAPMailbox) safeClose(client imapClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && m.logger != nil {
		m.logger.Printf("imap close error: %v", err)
	}
}

func (m *IMAPMailbox) defaultClientFactory(account Account) (imapClient, error) {
	port := account.Port
	if port == 0 {
		if account.UseTLS {
			port = 993
		} else {
			port = 143
		}
	}
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: m.dialTimeout}}
	addr := fmt.Sprintf("%s:%d", account.Host, port)
	var client *imapclient.Client
	var err error
	if account.UseTLS {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, err
	}
	return &imapClientWrapper{Client: client}, nil
}

func validateAccount(account Account) error {
	if account.Host == "" {
		return errors.New("imap account missing host")
	}
	if account.Username == "" {
		return errors.New("imap account missing username")
	}
	if len(account.Password) == 0 {
		return errors.New("imap account missing password")
	}
	return nil
}

type imapSession struct {
	client  imapClient
	folder  string
	logger  *log.Logger
	deleted []imap.UID
}

func (s *imapSession) SelectInbox(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	folder := s.folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := s.client.Select(folder, nil).Wait(); err != nil {
		return fmt.Errorf("imap select %s: %w", folder, err)
	}
	return nil
}

func (s *imapSession) ListUnseen(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	uids := data.AllUIDs()
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

func (s *imapSession) FetchRaw(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	bufs, err := s.client.Fetch(imap.UIDSetNum(uid), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch %s: %w", id, err)
	}
	for _, buf := range bufs {
		if body := buf.FindBodySection(&imap.FetchItemBodySection{}); body != nil {
			return append([]byte(nil), body...), nil
		}
	}
	return nil, fmt.Errorf("imap fetch %s: no body returned", id)
}

func (s *imapSession) SetFlags(ctx context.Context, id string, flags Flags) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	var imapFlags []imap.Flag
	if flags.Seen {
		imapFlags = append(imapFlags, imap.FlagSeen)
	}
	if flags.Deleted {
		imapFlags = append(imapFlags, imap.FlagDeleted)
	}
	if len(imapFlags) == 0 {
		return nil
	}
	store := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Flags: imapFlags}
	if err := s.client.Store(imap.UIDSetNum(uid), store, nil).Close(); err != nil {
		return fmt.Errorf("imap store flags %s: %w", id, err)
	}
	if flags.Deleted {
		s.deleted = append(s.deleted, uid)
	}
	return nil
}

// Close expunges messages flagged deleted during the session, then logs out.
// It is safe on every exit path; expunge and logout failures are logged and
// the connection is torn down regardless.
func (s *imapSession) Close() error {
	var firstErr error
	if len(s.deleted) > 0 {
		if err := s.client.UIDExpunge(imap.UIDSetNum(s.deleted...)).Close(); err != nil {
			firstErr = fmt.Errorf("imap expunge: %w", err)
			s.logf("imap expunge error: %v", err)
		}
	}
	if err := s.client.Logout().Wait(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("imap logout: %w", err)
		}
		s.logf("imap logout error: %v", err)
	}
	if err := s.client.Close(); err != nil {
		// Logout already tears down the connection on most servers.
		s.logf("imap close error: %v", err)
	}
	return firstErr
}

func (s *imapSession) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q: %w", id, err)
	}
	return imap.UID(n), nil
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}
func (w *imapClientWrapper) Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter {
	return w.Client.Store(numSet, store, options)
}
func (w *imapClientWrapper) UIDExpunge(uids imap.UIDSet) expungeWaiter {
	return w.Client.UIDExpunge(uids)
}
