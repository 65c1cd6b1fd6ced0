// Package poller drives one pass over the mailbox: fetch every unseen
// message, push it through parsing and correlation, and flag the result.
package poller

import (
	"context"
	"fmt"
	"log"

	"github.com/scnet-ops/mailbridge/internal/inbound/connector"
	"github.com/scnet-ops/mailbridge/internal/inbound/correlate"
	"github.com/scnet-ops/mailbridge/internal/inbound/parse"
)

// Parser turns raw message bytes into a parsed message.
type Parser interface {
	Parse(raw []byte) (*parse.ParsedMessage, error)
}

// Correlator maps a parsed message onto tracker state.
type Correlator interface {
	Correlate(ctx context.Context, msg *parse.ParsedMessage) (correlate.Outcome, error)
}

// Quarantine persists raw bytes of messages that could not be processed.
type Quarantine interface {
	Save(messageID string, raw []byte) (string, error)
}

// Poller runs poll cycles against a mailbox. One failed message never stops
// the cycle: it is quarantined, flagged seen so it is not retried forever,
// and the cycle moves on.
type Poller struct {
	mailbox    connector.Mailbox
	parser     Parser
	correlator Correlator
	quarantine Quarantine
	logger     *log.Logger
}

// PollerOption customizes the poller.
type PollerOption func(*Poller)

// NewPoller wires the pipeline stages together.
func NewPoller(mailbox connector.Mailbox, parser Parser, correlator Correlator, quarantine Quarantine, opts ...PollerOption) *Poller {
	p := &Poller{
		mailbox:    mailbox,
		parser:     parser,
		correlator: correlator,
		quarantine: quarantine,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// WithPollerLogger overrides the logger used for diagnostics.
func WithPollerLogger(logger *log.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// PollOnce runs a single cycle and reports how many messages were
// successfully processed. A connection or listing failure aborts the cycle;
// per-message failures do not.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	session, err := p.mailbox.Connect(ctx)
	if err != nil {
		return 0, fmt.Errorf("poll: connect: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			p.logf("poll: session close: %v", err)
		}
	}()

	if err := session.SelectInbox(ctx); err != nil {
		return 0, fmt.Errorf("poll: select inbox: %w", err)
	}
	ids, err := session.ListUnseen(ctx)
	if err != nil {
		return 0, fmt.Errorf("poll: list unseen: %w", err)
	}
	if len(ids) == 0 {
		p.logf("no new messages")
		return 0, nil
	}

	processed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return processed, fmt.Errorf("poll: %w", err)
		}
		if p.processMessage(ctx, session, id) {
			processed++
		}
	}
	p.logf("processed %d of %d new messages", processed, len(ids))
	return processed, nil
}

// processMessage handles one message end to end and reports success. On
// success the message is flagged seen and deleted; on failure it is
// quarantined and flagged seen only, so the raw bytes stay on the server.
func (p *Poller) processMessage(ctx context.Context, session connector.Session, id string) bool {
	raw, err := session.FetchRaw(ctx, id)
	if err != nil {
		p.logf("message %s: fetch failed: %v", id, err)
		return false
	}

	msg, err := p.parser.Parse(raw)
	if err != nil {
		p.logf("message %s: parse failed: %v", id, err)
		p.fail(ctx, session, id, raw)
		return false
	}

	outcome, err := p.correlator.Correlate(ctx, msg)
	if err != nil {
		p.logf("message %s: %v", id, err)
		p.fail(ctx, session, id, raw)
		return false
	}

	if err := session.SetFlags(ctx, id, connector.Flags{Seen: true, Deleted: true}); err != nil {
		p.logf("message %s: flag update failed: %v", id, err)
		return false
	}
	p.logf("message %s: %s ticket #%d as %s", id, outcome.Action, outcome.TicketID, outcome.UserLogin)
	return true
}

// fail quarantines the raw message and marks it seen so the next cycle does
// not pick it up again. Both steps are best effort.
func (p *Poller) fail(ctx context.Context, session connector.Session, id string, raw []byte) {
	if _, err := p.quarantine.Save(id, raw); err != nil {
		p.logf("message %s: quarantine failed: %v", id, err)
	}
	if err := session.SetFlags(ctx, id, connector.Flags{Seen: true}); err != nil {
		p.logf("message %s: flag update failed: %v", id, err)
	}
}

func (p *Poller) logf(format string, args ...any) {
	if p == nil || p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}
