package model

import (
	"strings"
	"time"
)

// Message is one incoming text record to reconcile.
// ID must be stable across re-fetches of the same source message.
type Message struct {
	Date    time.Time `json:"date"`
	ID      string    `json:"id"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Snippet string    `json:"snippet"`
}

// MatchText is the text catalog patterns are matched against.
func (m Message) MatchText() string {
	return strings.Join([]string{m.From, m.Subject, m.Snippet}, " ")
}

// Summary is the sender and subject, kept on bill instances for audit.
func (m Message) Summary() string {
	switch {
	case m.From == "":
		return m.Subject
	case m.Subject == "":
		return m.From
	default:
		return m.From + " | " + m.Subject
	}
}
