package parse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	stdmail "net/mail"
	"strings"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	htmlcharset "golang.org/x/net/html/charset"
)

const (
	defaultBodyLimit       = 128 * 1024
	defaultAttachmentLimit = 25 * 1024 * 1024
)

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

// Parser reduces raw RFC822 bytes to a ParsedMessage: decoded headers, the
// first plain-text body (HTML reduced to text when nothing else is offered),
// quoted history stripped, attachments collected in MIME tree order.
type Parser struct {
	logger          *log.Logger
	decoder         *mime.WordDecoder
	maxBodyBytes    int64
	attachmentLimit int64
}

// ParserOption customizes Parser behavior.
type ParserOption func(*Parser)

// NewParser builds a message parser with default limits.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		logger:          log.Default(),
		decoder:         &mime.WordDecoder{},
		maxBodyBytes:    defaultBodyLimit,
		attachmentLimit: defaultAttachmentLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// WithParserLogger overrides the logger used for per-part diagnostics.
func WithParserLogger(logger *log.Logger) ParserOption {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithParserBodyLimit constrains how many body bytes are retained.
func WithParserBodyLimit(limit int64) ParserOption {
	return func(p *Parser) {
		if limit > 0 {
			p.maxBodyBytes = limit
		}
	}
}

// WithParserAttachmentLimit constrains how many attachment bytes are buffered.
func WithParserAttachmentLimit(limit int64) ParserOption {
	return func(p *Parser) {
		if limit > 0 {
			p.attachmentLimit = limit
		}
	}
}

// Parse walks every MIME part of the message. The first text/plain part wins
// as the body; with no plain part the first inline part of any type is used
// instead, and an HTML document is reduced to its text nodes. A part that
// cannot be decoded is skipped and logged, never failing the whole message.
// The returned body has already had quoted history stripped.
func (p *Parser) Parse(raw []byte) (*ParsedMessage, error) {
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		p.logf("parse: structured parse failed: %v", err)
		return p.legacyParse(raw, err)
	}

	msg := &ParsedMessage{
		FromAddress: p.decodeHeader(reader.Header.Get("From")),
		Subject:     p.subjectFromHeader(reader.Header),
	}

	var body, fallback string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.logf("parse: read part failed: %v", err)
			break
		}
		switch header := part.Header.(type) {
		case *gomail.AttachmentHeader:
			if att := p.extractAttachment(part, header); att != nil {
				msg.Attachments = append(msg.Attachments, att)
			}
		case *gomail.InlineHeader:
			text, mimeType := p.extractInline(part, header)
			switch {
			case strings.HasPrefix(mimeType, "text/plain"):
				if body == "" {
					body = text
				}
			default:
				if fallback == "" {
					fallback = text
				}
			}
		}
	}

	if body == "" {
		body = fallback
	}
	msg.Body = p.finishBody(body)
	return msg, nil
}

// legacyParse is the fallback for messages go-message refuses: plain header
// scan plus the undecoded body, enough to quarantine-proof simple mail.
func (p *Parser) legacyParse(raw []byte, cause error) (*ParsedMessage, error) {
	reader, err := stdmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", cause)
	}
	msg := &ParsedMessage{
		FromAddress: p.decodeHeader(reader.Header.Get("From")),
		Subject:     p.decodeHeader(reader.Header.Get("Subject")),
	}
	body, err := io.ReadAll(io.LimitReader(reader.Body, p.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse message body: %w", err)
	}
	msg.Body = p.finishBody(string(body))
	return msg, nil
}

func (p *Parser) finishBody(body string) string {
	if isHTMLBody(body) {
		body = stripHTMLTags(body)
	}
	return StripQuotes(body)
}

func (p *Parser) subjectFromHeader(header gomail.Header) string {
	if subject, err := header.Subject(); err == nil {
		return subject
	}
	return p.decodeHeader(header.Get("Subject"))
}

func (p *Parser) extractInline(part *gomail.Part, header *gomail.InlineHeader) (string, string) {
	mimeType, _, err := header.ContentType()
	if err != nil {
		mimeType = strings.ToLower(strings.TrimSpace(header.Get("Content-Type")))
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		mimeType = "text/plain"
	}
	data, err := io.ReadAll(io.LimitReader(part.Body, p.maxBodyBytes))
	if err != nil {
		p.logf("parse: decode inline part failed, skipping: %v", err)
		return "", mimeType
	}
	return string(data), mimeType
}

func (p *Parser) extractAttachment(part *gomail.Part, header *gomail.AttachmentHeader) *Attachment {
	filename, err := header.Filename()
	if err != nil || strings.TrimSpace(filename) == "" {
		p.logf("parse: skipping attachment part without filename")
		return nil
	}
	mimeType, _, ctErr := header.ContentType()
	if ctErr != nil || strings.TrimSpace(mimeType) == "" {
		mimeType = "application/octet-stream"
	}
	data, err := io.ReadAll(io.LimitReader(part.Body, p.attachmentLimit))
	if err != nil {
		p.logf("parse: decode attachment %s failed, skipping: %v", filename, err)
		return nil
	}
	return &Attachment{
		Name:        filename,
		ContentType: strings.ToLower(strings.TrimSpace(mimeType)),
		Payload:     data,
	}
}

func (p *Parser) decodeHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || p.decoder == nil {
		return value
	}
	decoded, err := p.decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

func (p *Parser) logf(format string, args ...any) {
	if p == nil || p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}
