package models

import "time"

// Communication is an inbound message under analysis. It is external input
// and immutable once received; the core never persists it beyond the
// source message id recorded on a violation.
type Communication struct {
	MessageID   string       `json:"message_id"`
	SenderID    string       `json:"sender_id"`
	Recipients  []string     `json:"recipients"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	SentAt      time.Time    `json:"sent_at"`
}

// Attachment is metadata (and optionally raw content) for one attached file.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Content  []byte `json:"-"`
}

// Employee is a directory entry consulted during classification and
// remediation.
type Employee struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Department      string     `json:"department"`
	Role            string     `json:"role"`
	Email           string     `json:"email"`
	ChatUserID      string     `json:"chat_user_id"`
	MonitoringLevel int        `json:"monitoring_level"`
	MonitoringUntil *time.Time `json:"monitoring_until,omitempty"`
}
