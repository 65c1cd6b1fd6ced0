package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is the Redmine-flavored REST implementation of the tracker contract.
type Client struct {
	http      *resty.Client
	projectID string
}

// Config carries the settings needed to reach the tracker API.
type Config struct {
	BaseURL   string
	APIKey    string
	ProjectID string
	Timeout   time.Duration
	UserAgent string
}

// NewClient builds a tracker client from configuration.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "mailbridge/1.0"
	}
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("X-Redmine-API-Key", cfg.APIKey)
	return &Client{http: http, projectID: cfg.ProjectID}
}

type searchResponse struct {
	Results []struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
		Type  string `json:"type"`
	} `json:"results"`
}

// SearchTickets returns tickets whose subject matches the query, in
// tracker-defined order.
func (c *Client) SearchTickets(ctx context.Context, subject string) ([]Ticket, error) {
	var out searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":           subject,
			"issues":      "1",
			"titles_only": "1",
		}).
		SetResult(&out).
		Get("/search.json")
	if err != nil {
		return nil, fmt.Errorf("tracker search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tracker search: status %d", resp.StatusCode())
	}
	tickets := make([]Ticket, 0, len(out.Results))
	for _, r := range out.Results {
		tickets = append(tickets, Ticket{ID: r.ID, Subject: r.Title})
	}
	return tickets, nil
}

type issueEnvelope struct {
	Issue struct {
		ID      int    `json:"id"`
		Subject string `json:"subject"`
		Status  struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"issue"`
}

// FindTicketByReference fetches a ticket by number; nil when it does not exist.
func (c *Client) FindTicketByReference(ctx context.Context, number int) (*Ticket, error) {
	var out issueEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/issues/%d.json", number))
	if err != nil {
		return nil, fmt.Errorf("tracker issue %d: %w", number, err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tracker issue %d: status %d", number, resp.StatusCode())
	}
	return &Ticket{ID: out.Issue.ID, Subject: out.Issue.Subject, Status: out.Issue.Status.Name}, nil
}

type usersResponse struct {
	Users []User `json:"users"`
}

// FindUserByEmail looks up a tracker user by mail address; nil when absent.
func (c *Client) FindUserByEmail(ctx context.Context, address string) (*User, error) {
	var out usersResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("name", address).
		SetResult(&out).
		Get("/users.json")
	if err != nil {
		return nil, fmt.Errorf("tracker user lookup: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tracker user lookup: status %d", resp.StatusCode())
	}
	if len(out.Users) == 0 {
		return nil, nil
	}
	return &out.Users[0], nil
}

type userEnvelope struct {
	User User `json:"user"`
}

// CreateUser registers a new tracker account for an unknown sender. There is
// no rollback; a concurrent lookup racing this call can create a duplicate.
func (c *Client) CreateUser(ctx context.Context, address, firstName, lastName string) (*User, error) {
	var out userEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"user": map[string]string{
				"login":     address,
				"firstname": firstName,
				"lastname":  lastName,
				"mail":      address,
			},
		}).
		SetResult(&out).
		Post("/users.json")
	if err != nil {
		return nil, fmt.Errorf("tracker create user: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tracker create user: status %d", resp.StatusCode())
	}
	return &out.User, nil
}

type uploadEnvelope struct {
	Upload struct {
		Token string `json:"token"`
	} `json:"upload"`
}

// UploadAttachment stores a payload on the tracker under the given user's
// identity and returns the token to reference it from a note or ticket.
func (c *Client) UploadAttachment(ctx context.Context, userLogin string, payload []byte, filename, contentType string) (string, error) {
	var out uploadEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetHeader("X-Redmine-Switch-User", userLogin).
		SetQueryParam("filename", filename).
		SetBody(payload).
		SetResult(&out).
		Post("/uploads.json")
	if err != nil {
		return "", fmt.Errorf("tracker upload %s: %w", filename, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("tracker upload %s: status %d", filename, resp.StatusCode())
	}
	return out.Upload.Token, nil
}

// AppendNote adds a user-attributed note with attachment references to an
// existing ticket.
func (c *Client) AppendNote(ctx context.Context, ticketID int, userLogin, body string, attachmentTokens []string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Redmine-Switch-User", userLogin).
		SetBody(map[string]any{
			"issue": map[string]any{
				"notes":   body,
				"uploads": tokenRefs(attachmentTokens),
			},
		}).
		Put(fmt.Sprintf("/issues/%d.json", ticketID))
	if err != nil {
		return fmt.Errorf("tracker append note %d: %w", ticketID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("tracker append note %d: status %d", ticketID, resp.StatusCode())
	}
	return nil
}

// CreateTicket opens a new ticket with the user as reporter.
func (c *Client) CreateTicket(ctx context.Context, userLogin, subject, body string, attachmentTokens []string) (*Ticket, error) {
	issue := map[string]any{
		"subject":     subject,
		"description": body,
		"uploads":     tokenRefs(attachmentTokens),
	}
	if c.projectID != "" {
		issue["project_id"] = c.projectID
	}
	var out issueEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Redmine-Switch-User", userLogin).
		SetBody(map[string]any{"issue": issue}).
		SetResult(&out).
		Post("/issues.json")
	if err != nil {
		return nil, fmt.Errorf("tracker create ticket: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tracker create ticket: status %d", resp.StatusCode())
	}
	return &Ticket{ID: out.Issue.ID, Subject: out.Issue.Subject, Status: out.Issue.Status.Name}, nil
}

func tokenRefs(tokens []string) []map[string]string {
	refs := make([]map[string]string, 0, len(tokens))
	for _, t := range tokens {
		refs = append(refs, map[string]string{"token": t})
	}
	return refs
}
