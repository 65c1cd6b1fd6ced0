// Package correlate decides what an inbound message means for the tracker:
// a follow-up note on an existing ticket, or a brand new ticket.
package correlate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"

	"github.com/scnet-ops/mailbridge/internal/inbound/parse"
	"github.com/scnet-ops/mailbridge/internal/tracker"
)

// Tracker is the consumed slice of the ticket-tracker collaborator.
type Tracker interface {
	SearchTickets(ctx context.Context, subject string) ([]tracker.Ticket, error)
	FindTicketByReference(ctx context.Context, number int) (*tracker.Ticket, error)
	FindUserByEmail(ctx context.Context, address string) (*tracker.User, error)
	CreateUser(ctx context.Context, address, firstName, lastName string) (*tracker.User, error)
	UploadAttachment(ctx context.Context, userLogin string, payload []byte, filename, contentType string) (string, error)
	AppendNote(ctx context.Context, ticketID int, userLogin, body string, attachmentTokens []string) error
	CreateTicket(ctx context.Context, userLogin, subject, body string, attachmentTokens []string) (*tracker.Ticket, error)
}

// Action names the branch correlation took.
type Action string

const (
	// ActionAppended means the message became a note on an existing ticket.
	ActionAppended Action = "appended"
	// ActionCreated means the message opened a new ticket.
	ActionCreated Action = "created"
)

// Outcome reports which branch was taken and the identifiers involved.
type Outcome struct {
	Action    Action
	TicketID  int
	UserLogin string
}

// ticketRefPattern matches explicit ticket references like "#42" in subjects.
var ticketRefPattern = regexp.MustCompile(`#(\d+)`)

// Correlator maps parsed messages onto tracker state.
type Correlator struct {
	tracker Tracker
	logger  *log.Logger
}

// CorrelatorOption customizes the correlator.
type CorrelatorOption func(*Correlator)

// NewCorrelator builds a correlator over the given tracker collaborator.
func NewCorrelator(t Tracker, opts ...CorrelatorOption) *Correlator {
	c := &Correlator{tracker: t, logger: log.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// WithCorrelatorLogger overrides the logger used for diagnostics.
func WithCorrelatorLogger(logger *log.Logger) CorrelatorOption {
	return func(c *Correlator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Correlate resolves the target ticket and sending user, uploads every
// attachment (tokens are recorded on the attachments before any ticket
// mutation), then appends a note or creates a ticket. Any tracker failure
// aborts only this message.
func (c *Correlator) Correlate(ctx context.Context, msg *parse.ParsedMessage) (Outcome, error) {
	if msg == nil {
		return Outcome{}, errors.New("correlate: message required")
	}

	ticket, err := c.findTicket(ctx, msg.Subject)
	if err != nil {
		return Outcome{}, err
	}

	user, err := c.resolveUser(ctx, msg.FromAddress)
	if err != nil {
		return Outcome{}, err
	}

	tokens, err := c.uploadAttachments(ctx, user.Login, msg.Attachments)
	if err != nil {
		return Outcome{}, err
	}

	if ticket != nil {
		if err := c.tracker.AppendNote(ctx, ticket.ID, user.Login, msg.Body, tokens); err != nil {
			return Outcome{}, fmt.Errorf("correlate: append note: %w", err)
		}
		c.logf("updated ticket #%d with message from %s and %d attachments", ticket.ID, user.Login, len(tokens))
		return Outcome{Action: ActionAppended, TicketID: ticket.ID, UserLogin: user.Login}, nil
	}

	created, err := c.tracker.CreateTicket(ctx, user.Login, msg.Subject, msg.Body, tokens)
	if err != nil {
		return Outcome{}, fmt.Errorf("correlate: create ticket: %w", err)
	}
	c.logf("created ticket #%d for %s with %d attachments", created.ID, user.Login, len(tokens))
	return Outcome{Action: ActionCreated, TicketID: created.ID, UserLogin: user.Login}, nil
}

// findTicket searches by normalized subject first, then falls back to an
// explicit "#<digits>" reference in the raw subject. Two or more subject
// matches use the first, by documented policy.
func (c *Correlator) findTicket(ctx context.Context, subject string) (*tracker.Ticket, error) {
	cleaned := parse.NormalizeSubject(subject)
	tickets, err := c.tracker.SearchTickets(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("correlate: subject search: %w", err)
	}
	switch {
	case len(tickets) == 1:
		return &tickets[0], nil
	case len(tickets) >= 2:
		c.logf("subject query returned %d results, using first: %s", len(tickets), cleaned)
		return &tickets[0], nil
	}

	m := ticketRefPattern.FindStringSubmatch(subject)
	if m == nil {
		return nil, nil
	}
	number, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, nil
	}
	ticket, err := c.tracker.FindTicketByReference(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("correlate: ticket reference #%d: %w", number, err)
	}
	return ticket, nil
}

// resolveUser looks up the sender by email, creating a tracker account when
// none exists. An unparseable from-address is logged and processing continues
// with empty identity fields. Creation has no rollback; a racing message from
// the same address can create a duplicate account.
func (c *Correlator) resolveUser(ctx context.Context, fromAddress string) (*tracker.User, error) {
	addr, err := parse.ParseAddress(fromAddress)
	if err != nil {
		c.logf("address parse failed, continuing with empty identity: %v", err)
	}
	user, err := c.tracker.FindUserByEmail(ctx, addr.Email)
	if err != nil {
		return nil, fmt.Errorf("correlate: user lookup: %w", err)
	}
	if user != nil {
		return user, nil
	}
	user, err = c.tracker.CreateUser(ctx, addr.Email, addr.First, addr.Last)
	if err != nil {
		return nil, fmt.Errorf("correlate: create user: %w", err)
	}
	c.logf("unknown sender %s, created new account %s", fromAddress, user.Login)
	return user, nil
}

func (c *Correlator) uploadAttachments(ctx context.Context, userLogin string, attachments []*parse.Attachment) ([]string, error) {
	tokens := make([]string, 0, len(attachments))
	for _, att := range attachments {
		token, err := c.tracker.UploadAttachment(ctx, userLogin, att.Payload, att.Name, att.ContentType)
		if err != nil {
			return nil, fmt.Errorf("correlate: upload %s: %w", att.Name, err)
		}
		att.SetToken(token)
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func (c *Correlator) logf(format string, args ...any) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
