// Package tracker is the ticket-tracker collaborator: the operation contract
// the inbound pipeline consumes, plus a thin REST client implementing it.
package tracker

// Ticket is a trackable unit of work in the tracker, identified by a numeric
// id, with a subject and a chronological note history on the remote side.
type Ticket struct {
	ID      int    `json:"id"`
	Subject string `json:"subject"`
	Status  string `json:"status,omitempty"`
}

// User is a tracker account. Login doubles as the identity under which
// attachments and notes are attributed.
type User struct {
	ID        int    `json:"id"`
	Login     string `json:"login"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Mail      string `json:"mail"`
}
