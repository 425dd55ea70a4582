package models

import "time"

// FetchMode selects how a mailbox catch-up decides which messages are new
type FetchMode string

const (
	// FetchUnseen fetches messages without the \Seen flag above the watermark
	FetchUnseen FetchMode = "unseen"
	// FetchWatermark fetches every message with a UID above the watermark
	FetchWatermark FetchMode = "watermark"
)

// Team is an organizational unit that owns a mailbox and a set of specialists
type Team struct {
	ID               int64     `db:"id" yaml:"id"`
	Name             string    `db:"name" yaml:"name"`
	Responsibilities string    `db:"responsibilities" yaml:"responsibilities"`
	TelegramTopicID  int       `db:"telegram_topic_id" yaml:"telegram_topic_id"`
	CreatedAt        time.Time `db:"created_at" yaml:"-"`
}

// TeamMailboxConfig holds the IMAP connection settings of a team
type TeamMailboxConfig struct {
	TeamID                int64     `db:"team_id"`
	Host                  string    `db:"host"`
	Port                  int       `db:"port"`
	UseTLS                bool      `db:"use_tls"`
	Username              string    `db:"username"`
	PasswordEncrypted     string    `db:"password_encrypted"`
	Folder                string    `db:"folder"`
	FetchMode             FetchMode `db:"fetch_mode"`
	LastProcessedSequence uint32    `db:"last_processed_sequence"` // Highest UID already handed to the queue
	AutoProcessingEnabled bool      `db:"auto_processing_enabled"`
	UpdatedAt             time.Time `db:"updated_at"`
}

// Specialist is a team member cases can be assigned to
type Specialist struct {
	ID     int64  `db:"id"`
	TeamID int64  `db:"team_id"`
	Name   string `db:"name"`
	Email  string `db:"email"`
	Active bool   `db:"active"`
}

// SpecialistLoad is a specialist with its current open case count for one category
type SpecialistLoad struct {
	SpecialistID int64  `db:"specialist_id"`
	Name         string `db:"name"`
	OpenCases    int    `db:"open_cases"`
}

// TeamContext is the team information given to the extraction prompt
type TeamContext struct {
	TeamName         string
	Responsibilities string
	KnownPartners    []string
}
