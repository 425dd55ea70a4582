package models

import (
	"encoding/json"
	"time"
)

// QueueStatus is the lifecycle state of a queue entry
type QueueStatus string

const (
	QueuePending    QueueStatus = "PENDING"
	QueueProcessing QueueStatus = "PROCESSING"
	QueueCompleted  QueueStatus = "COMPLETED"
	QueueFailed     QueueStatus = "FAILED"
	QueueSkipped    QueueStatus = "SKIPPED"
)

// QueueEntry is one message waiting for extraction and case creation
type QueueEntry struct {
	ID                int64       `db:"id"`
	TeamID            int64       `db:"team_id"`
	MessageSequenceID uint32      `db:"message_sequence_id"`
	MessageID         string      `db:"message_id"`
	Subject           string      `db:"subject"`
	Sender            string      `db:"sender"`     // JSON encoded Address
	Recipients        string      `db:"recipients"` // JSON encoded []Address
	Body              string      `db:"body"`
	Attachments       string      `db:"attachments"` // JSON encoded []Attachment
	ReceivedAt        time.Time   `db:"received_at"`
	Status            QueueStatus `db:"status"`
	RetryCount        int         `db:"retry_count"`
	ErrorMessage      string      `db:"error_message"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

// NewQueueEntry builds a pending entry carrying the message payload
func NewQueueEntry(teamID int64, msg *NormalizedMessage) *QueueEntry {
	sender, _ := json.Marshal(msg.From)
	recipients, _ := json.Marshal(msg.To)
	attachments, _ := json.Marshal(msg.Attachments)

	return &QueueEntry{
		TeamID:            teamID,
		MessageSequenceID: msg.UID,
		MessageID:         msg.MessageID,
		Subject:           msg.Subject,
		Sender:            string(sender),
		Recipients:        string(recipients),
		Body:              msg.Body,
		Attachments:       string(attachments),
		ReceivedAt:        msg.Date,
		Status:            QueuePending,
	}
}

// Message rebuilds the normalized message stored in the entry
func (e *QueueEntry) Message() *NormalizedMessage {
	msg := &NormalizedMessage{
		UID:       e.MessageSequenceID,
		MessageID: e.MessageID,
		Subject:   e.Subject,
		Date:      e.ReceivedAt,
		Body:      e.Body,
	}
	_ = json.Unmarshal([]byte(e.Sender), &msg.From)
	_ = json.Unmarshal([]byte(e.Recipients), &msg.To)
	_ = json.Unmarshal([]byte(e.Attachments), &msg.Attachments)
	return msg
}

// QueueStats counts entries per status
type QueueStats map[QueueStatus]int
