package parse

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ParsedMessage is the fully reduced form of one inbound email: decoded
// headers, a plain-text body with quoted history removed, and attachments in
// MIME tree order. It is built once by the Parser and immutable afterwards.
type ParsedMessage struct {
	FromAddress string // raw "Display Name <addr>" form
	Subject     string
	Body        string
	Attachments []*Attachment
}

// Attachment is a decoded MIME attachment. The upload token is recorded once
// after the tracker accepts the payload; an empty token means not yet uploaded.
type Attachment struct {
	Name        string
	ContentType string
	Payload     []byte

	token string
}

// SetToken records the tracker upload token on the attachment.
func (a *Attachment) SetToken(token string) {
	a.token = token
}

// Token returns the tracker upload token, empty until a successful upload.
func (a *Attachment) Token() string {
	return a.token
}

// Uploaded reports whether the attachment has been accepted by the tracker.
func (a *Attachment) Uploaded() bool {
	return a.token != ""
}

func (m *ParsedMessage) String() string {
	note := m.Body
	if len(note) > 20 {
		note = note[:20]
	}
	return fmt.Sprintf("from:%s, subject:%s, attached:%d; %s",
		m.FromAddress, m.Subject, len(m.Attachments), note)
}

// Address is the identity split out of a "Display Name <addr>" header value.
type Address struct {
	First string
	Last  string
	Email string
}

var addressPattern = regexp.MustCompile(`(.*)<(.*)>`)

// ParseAddress splits a "Display Name <addr>" string into name parts and the
// bare address. The last name is everything after the final space in the
// display name, empty when there is no surname. Input that does not match the
// pattern yields a zero Address and an error; callers log it and continue
// with the empty identity rather than aborting the message.
func ParseAddress(value string) (Address, error) {
	m := addressPattern.FindStringSubmatch(value)
	if m == nil {
		return Address{}, fmt.Errorf("unable to parse email address %q", value)
	}
	name := strings.TrimSpace(m[1])
	addr := Address{Email: strings.TrimSpace(m[2])}
	if idx := strings.LastIndexFunc(name, unicode.IsSpace); idx >= 0 {
		addr.First = strings.TrimSpace(name[:idx])
		addr.Last = strings.TrimSpace(name[idx+1:])
	} else {
		addr.First = name
	}
	return addr, nil
}
