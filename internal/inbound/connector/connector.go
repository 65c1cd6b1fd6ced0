package connector

import (
	"context"
)

// Account carries the minimal set of fields needed to open a mailbox.
type Account struct {
	Host     string
	Port     int
	Username string
	Password []byte
	UseTLS   bool
	Folder   string
}

// Flags is the per-message flag mutation applied after processing. Seen and
// Deleted are set together in a single store so a message is never left
// ambiguously flagged.
type Flags struct {
	Seen    bool
	Deleted bool
}

// Session is one scoped mailbox connection: select the inbox, enumerate
// unseen messages, fetch raw bytes, flag outcomes, and close. Implementations
// expunge deleted messages on Close.
type Session interface {
	SelectInbox(ctx context.Context) error
	ListUnseen(ctx context.Context) ([]string, error)
	FetchRaw(ctx context.Context, id string) ([]byte, error)
	SetFlags(ctx context.Context, id string, flags Flags) error
	Close() error
}

// Mailbox opens sessions against a mail store.
type Mailbox interface {
	Connect(ctx context.Context) (Session, error)
}
