package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/clarify/pkg/models"
)

// minFuzzyKeyLen is the shortest partner key matched by prefix
const minFuzzyKeyLen = 4

// FindCaseBySource returns the case created from a team's message UID
func (tx *Tx) FindCaseBySource(ctx context.Context, teamID int64, uid uint32) (*models.ClarificationCase, error) {
	var c models.ClarificationCase
	query := tx.Rebind(`SELECT * FROM clarification_cases WHERE team_id = ? AND source_sequence_id = ?`)
	err := tx.GetContext(ctx, &c, query, teamID, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find case by source: %w", err)
	}
	return &c, nil
}

// FindPartnerByDomain returns the oldest partner with the given mail domain
func (tx *Tx) FindPartnerByDomain(ctx context.Context, domain string) (*models.Partner, error) {
	var p models.Partner
	query := tx.Rebind(`SELECT * FROM partners WHERE domain = ? ORDER BY id LIMIT 1`)
	err := tx.GetContext(ctx, &p, query, domain)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find partner by domain: %w", err)
	}
	return &p, nil
}

// FindPartnerByNameKey matches a normalized name exactly, then by prefix in either direction
func (tx *Tx) FindPartnerByNameKey(ctx context.Context, key string) (*models.Partner, error) {
	var p models.Partner
	query := tx.Rebind(`SELECT * FROM partners WHERE name_key = ? ORDER BY id LIMIT 1`)
	err := tx.GetContext(ctx, &p, query, key)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to find partner by name: %w", err)
	}

	if len(key) < minFuzzyKeyLen {
		return nil, ErrNotFound
	}

	// "stadtwerke musterstadt" matches "stadtwerke musterstadt netz" and the reverse
	query = tx.Rebind(`
		SELECT * FROM partners
		WHERE length(name_key) >= ? AND (name_key LIKE ? OR ? LIKE name_key || ' %')
		ORDER BY length(name_key), id LIMIT 1
	`)
	err = tx.GetContext(ctx, &p, query, minFuzzyKeyLen, key+" %", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find partner by name prefix: %w", err)
	}
	return &p, nil
}

// CreatePartner inserts a partner
func (tx *Tx) CreatePartner(ctx context.Context, p *models.Partner) error {
	query := tx.Rebind(`
		INSERT INTO partners (name, name_key, domain, codes, auto_created, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	now := time.Now().UTC()
	id, err := insertReturningID(ctx, tx, query, p.Name, p.NameKey, p.Domain, p.Codes, p.AutoCreated, now)
	if err != nil {
		return fmt.Errorf("failed to create partner: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	return nil
}

// CreateCase inserts a clarification case
func (tx *Tx) CreateCase(ctx context.Context, c *models.ClarificationCase) error {
	query := tx.Rebind(`
		INSERT INTO clarification_cases (title, description, category, priority, effort, status, team_id, partner_id, assigned_specialist_id, source_sequence_id, original_email_json, auto_created, is_bulk, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	now := time.Now().UTC()
	id, err := insertReturningID(ctx, tx, query,
		c.Title,
		c.Description,
		c.Category,
		c.Priority,
		c.Effort,
		c.Status,
		c.TeamID,
		c.PartnerID,
		c.AssignedSpecialistID,
		c.SourceSequenceID,
		c.OriginalEmailJSON,
		c.AutoCreated,
		c.IsBulk,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// AddReference links an identifier to a case
func (tx *Tx) AddReference(ctx context.Context, r *models.CaseReference) error {
	query := tx.Rebind(`
		INSERT INTO case_references (case_id, reference_type, reference_value, auto_extracted, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)
	now := time.Now().UTC()
	id, err := insertReturningID(ctx, tx, query, r.CaseID, r.ReferenceType, r.ReferenceValue, r.AutoExtracted, now)
	if err != nil {
		return fmt.Errorf("failed to add case reference: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	return nil
}

// AddAudit stores the extraction result of a case
func (tx *Tx) AddAudit(ctx context.Context, a *models.ExtractionAudit) error {
	query := tx.Rebind(`
		INSERT INTO extraction_audit (case_id, result_json, confidence, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`)
	now := time.Now().UTC()
	id, err := insertReturningID(ctx, tx, query, a.CaseID, a.ResultJSON, a.Confidence, now)
	if err != nil {
		return fmt.Errorf("failed to add extraction audit: %w", err)
	}
	a.ID = id
	a.CreatedAt = now
	return nil
}

// AddCaseItem stores one element of a bulk case
func (tx *Tx) AddCaseItem(ctx context.Context, item *models.CaseItem) error {
	query := tx.Rebind(`
		INSERT INTO case_items (case_id, position, description, reference_type, reference_value, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	now := time.Now().UTC()
	id, err := insertReturningID(ctx, tx, query, item.CaseID, item.Position, item.Description, item.ReferenceType, item.ReferenceValue, item.Status, now)
	if err != nil {
		return fmt.Errorf("failed to add case item: %w", err)
	}
	item.ID = id
	item.CreatedAt = now
	return nil
}

// GetCase returns a case by ID
func (db *DB) GetCase(ctx context.Context, id int64) (*models.ClarificationCase, error) {
	var c models.ClarificationCase
	err := db.GetContext(ctx, &c, db.Rebind(`SELECT * FROM clarification_cases WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return &c, nil
}

// GetPartner returns a partner by ID
func (db *DB) GetPartner(ctx context.Context, id int64) (*models.Partner, error) {
	var p models.Partner
	err := db.GetContext(ctx, &p, db.Rebind(`SELECT * FROM partners WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get partner: %w", err)
	}
	return &p, nil
}

// ListCaseReferences returns the references of a case
func (db *DB) ListCaseReferences(ctx context.Context, caseID int64) ([]*models.CaseReference, error) {
	var refs []*models.CaseReference
	query := db.Rebind(`SELECT * FROM case_references WHERE case_id = ? ORDER BY id`)
	if err := db.SelectContext(ctx, &refs, query, caseID); err != nil {
		return nil, fmt.Errorf("failed to list case references: %w", err)
	}
	return refs, nil
}

// ListCaseItems returns the items of a bulk case
func (db *DB) ListCaseItems(ctx context.Context, caseID int64) ([]*models.CaseItem, error) {
	var items []*models.CaseItem
	query := db.Rebind(`SELECT * FROM case_items WHERE case_id = ? ORDER BY position`)
	if err := db.SelectContext(ctx, &items, query, caseID); err != nil {
		return nil, fmt.Errorf("failed to list case items: %w", err)
	}
	return items, nil
}

// SpecialistLoads returns active team specialists handling category, least busy first.
// Ties are ordered by specialist ID.
func (db *DB) SpecialistLoads(ctx context.Context, teamID int64, category string) ([]models.SpecialistLoad, error) {
	query := db.Rebind(`
		SELECT s.id AS specialist_id, s.name AS name,
			(SELECT COUNT(*) FROM clarification_cases c
			 WHERE c.assigned_specialist_id = s.id AND c.category = ? AND c.status IN (?, ?)) AS open_cases
		FROM specialists s
		JOIN specialist_categories sc ON sc.specialist_id = s.id
		WHERE s.team_id = ? AND s.active = true AND sc.category = ?
		ORDER BY open_cases, s.id
	`)
	var loads []models.SpecialistLoad
	err := db.SelectContext(ctx, &loads, query, category, models.CaseOpen, models.CaseInProgress, teamID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to get specialist loads: %w", err)
	}
	return loads, nil
}

// AssignCase sets the assigned specialist of a case
func (db *DB) AssignCase(ctx context.Context, caseID, specialistID int64) error {
	query := db.Rebind(`UPDATE clarification_cases SET assigned_specialist_id = ?, updated_at = ? WHERE id = ?`)
	if _, err := db.ExecContext(ctx, query, specialistID, time.Now().UTC(), caseID); err != nil {
		return fmt.Errorf("failed to assign case: %w", err)
	}
	return nil
}

// AddActivity appends an entry to the case timeline
func (db *DB) AddActivity(ctx context.Context, caseID int64, kind, detail string) error {
	query := db.Rebind(`INSERT INTO case_activities (case_id, kind, detail, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := db.ExecContext(ctx, query, caseID, kind, detail, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to add activity: %w", err)
	}
	return nil
}

// AddDraft stores an unsent reply draft
func (db *DB) AddDraft(ctx context.Context, caseID int64, body string) error {
	query := db.Rebind(`INSERT INTO case_drafts (case_id, body, sent, created_at) VALUES (?, ?, false, ?)`)
	if _, err := db.ExecContext(ctx, query, caseID, body, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to add draft: %w", err)
	}
	return nil
}

// AddFollowUp schedules a follow-up check
func (db *DB) AddFollowUp(ctx context.Context, caseID int64, dueAt time.Time) error {
	query := db.Rebind(`INSERT INTO case_followups (case_id, due_at, done, created_at) VALUES (?, ?, false, ?)`)
	if _, err := db.ExecContext(ctx, query, caseID, dueAt.UTC(), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to add follow-up: %w", err)
	}
	return nil
}

// AddTask creates an open task on a case
func (db *DB) AddTask(ctx context.Context, caseID int64, kind, target string) error {
	query := db.Rebind(`INSERT INTO case_tasks (case_id, kind, target, status, created_at) VALUES (?, ?, ?, 'open', ?)`)
	if _, err := db.ExecContext(ctx, query, caseID, kind, target, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to add task: %w", err)
	}
	return nil
}
