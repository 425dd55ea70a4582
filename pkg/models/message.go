package models

import "time"

// NormalizedMessage is the parsed form of one inbound email
type NormalizedMessage struct {
	UID         uint32       `json:"uid"` // IMAP UID, unique within a mailbox
	MessageID   string       `json:"message_id"`
	Subject     string       `json:"subject"`
	From        Address      `json:"from"`
	To          []Address    `json:"to"`
	Cc          []Address    `json:"cc,omitempty"`
	Date        time.Time    `json:"date"`
	Body        string       `json:"body"`      // Plain text body
	HTMLBody    string       `json:"html_body"` // Original HTML body
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Address represents an email address
type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// String formats the address as "Name <addr>"
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return a.Name + " <" + a.Address + ">"
}

// Attachment describes an attached file without its content
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}
