package models

import "time"

// Case status values
const (
	CaseOpen       = "open"
	CaseInProgress = "in_progress"
	CaseResolved   = "resolved"
	CaseClosed     = "closed"
)

// ClarificationCase is a tracked question with an external partner
type ClarificationCase struct {
	ID                   int64     `db:"id"`
	Title                string    `db:"title"`
	Description          string    `db:"description"`
	Category             string    `db:"category"`
	Priority             string    `db:"priority"`
	Effort               string    `db:"effort"`
	Status               string    `db:"status"`
	TeamID               int64     `db:"team_id"`
	PartnerID            *int64    `db:"partner_id"`
	AssignedSpecialistID *int64    `db:"assigned_specialist_id"`
	SourceSequenceID     uint32    `db:"source_sequence_id"`
	OriginalEmailJSON    string    `db:"original_email_json"`
	AutoCreated          bool      `db:"auto_created"`
	IsBulk               bool      `db:"is_bulk"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

// CaseReference links one business identifier to a case
type CaseReference struct {
	ID             int64     `db:"id"`
	CaseID         int64     `db:"case_id"`
	ReferenceType  string    `db:"reference_type"`
	ReferenceValue string    `db:"reference_value"`
	AutoExtracted  bool      `db:"auto_extracted"`
	CreatedAt      time.Time `db:"created_at"`
}

// CaseItem is one element of a bulk case
type CaseItem struct {
	ID             int64     `db:"id"`
	CaseID         int64     `db:"case_id"`
	Position       int       `db:"position"`
	Description    string    `db:"description"`
	ReferenceType  string    `db:"reference_type"`
	ReferenceValue string    `db:"reference_value"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}

// ExtractionAudit keeps the full extraction result next to the case
type ExtractionAudit struct {
	ID         int64     `db:"id"`
	CaseID     int64     `db:"case_id"`
	ResultJSON string    `db:"result_json"`
	Confidence float64   `db:"confidence"`
	CreatedAt  time.Time `db:"created_at"`
}

// Partner is an external organization
type Partner struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	NameKey     string    `db:"name_key"` // Normalized name used for fuzzy lookup
	Domain      string    `db:"domain"`
	Codes       string    `db:"codes"` // Comma separated market codes
	AutoCreated bool      `db:"auto_created"`
	CreatedAt   time.Time `db:"created_at"`
}

// Activity kinds
const (
	ActivityAssigned  = "assigned"
	ActivityDrafted   = "draft_created"
	ActivityForwarded = "forward_task_created"
)

// CaseEvent is published when a case has been created
type CaseEvent struct {
	CaseID      int64     `json:"case_id"`
	TeamID      int64     `json:"team_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	PartnerName string    `json:"partner_name,omitempty"`
	Sender      string    `json:"sender"`
	References  int       `json:"references"`
	IsBulk      bool      `json:"is_bulk"`
	Items       int       `json:"items,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
