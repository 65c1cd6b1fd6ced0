package tracker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", ProjectID: "support"})
}

func TestSearchTickets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search.json", r.URL.Path)
		require.Equal(t, "Printer broken", r.URL.Query().Get("q"))
		require.Equal(t, "test-key", r.Header.Get("X-Redmine-API-Key"))
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": 42, "title": "Printer broken", "type": "issue"},
			},
		})
	})
	tickets, err := c.SearchTickets(context.Background(), "Printer broken")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	require.Equal(t, 42, tickets[0].ID)
	require.Equal(t, "Printer broken", tickets[0].Subject)
}

func TestFindTicketByReferenceNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	ticket, err := c.FindTicketByReference(context.Background(), 999)
	require.NoError(t, err)
	require.Nil(t, ticket)
}

func TestFindTicketByReference(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/issues/42.json", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"issue": map[string]any{"id": 42, "subject": "Printer broken", "status": map[string]any{"name": "New"}},
		})
	})
	ticket, err := c.FindTicketByReference(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, &Ticket{ID: 42, Subject: "Printer broken", Status: "New"}, ticket)
}

func TestFindUserByEmailAbsent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "nobody@example.com", r.URL.Query().Get("name"))
		json.NewEncoder(w).Encode(map[string]any{"users": []any{}})
	})
	user, err := c.FindUserByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	require.Nil(t, user)
}

func TestCreateUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/users.json", r.URL.Path)
		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "jane@example.com", body["user"]["login"])
		require.Equal(t, "Jane", body["user"]["firstname"])
		json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"id": 7, "login": "jane@example.com", "firstname": "Jane", "lastname": "Doe", "mail": "jane@example.com"},
		})
	})
	user, err := c.CreateUser(context.Background(), "jane@example.com", "Jane", "Doe")
	require.NoError(t, err)
	require.Equal(t, 7, user.ID)
	require.Equal(t, "jane@example.com", user.Login)
}

func TestUploadAttachment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/uploads.json", r.URL.Path)
		require.Equal(t, "report.pdf", r.URL.Query().Get("filename"))
		require.Equal(t, "jane@example.com", r.Header.Get("X-Redmine-Switch-User"))
		payload, _ := io.ReadAll(r.Body)
		require.Equal(t, []byte("%PDF-fake"), payload)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"upload": map[string]any{"token": "tok-9"}})
	})
	token, err := c.UploadAttachment(context.Background(), "jane@example.com", []byte("%PDF-fake"), "report.pdf", "application/pdf")
	require.NoError(t, err)
	require.Equal(t, "tok-9", token)
}

func TestAppendNoteSendsTokens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/issues/42.json", r.URL.Path)
		var body map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Still broken.", body["issue"]["notes"])
		uploads := body["issue"]["uploads"].([]any)
		require.Len(t, uploads, 2)
		w.WriteHeader(http.StatusNoContent)
	})
	err := c.AppendNote(context.Background(), 42, "jane@example.com", "Still broken.", []string{"tok-1", "tok-2"})
	require.NoError(t, err)
}

func TestCreateTicket(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/issues.json", r.URL.Path)
		var body map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "support", body["issue"]["project_id"])
		require.Equal(t, "Printer broken", body["issue"]["subject"])
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"issue": map[string]any{"id": 43, "subject": "Printer broken", "status": map[string]any{"name": "New"}},
		})
	})
	ticket, err := c.CreateTicket(context.Background(), "jane@example.com", "Printer broken", "The tray is jammed.", nil)
	require.NoError(t, err)
	require.Equal(t, 43, ticket.ID)
}

func TestServerErrorSurfaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.SearchTickets(context.Background(), "anything")
	require.ErrorContains(t, err, "status 500")
}
