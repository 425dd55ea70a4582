package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/clarify/pkg/models"
)

// UpsertTeam creates a team or updates its descriptive fields
func (db *DB) UpsertTeam(ctx context.Context, team *models.Team) error {
	query := db.Rebind(`
		INSERT INTO teams (id, name, responsibilities, telegram_topic_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			responsibilities = excluded.responsibilities,
			telegram_topic_id = excluded.telegram_topic_id
	`)
	now := time.Now().UTC()
	if _, err := db.ExecContext(ctx, query, team.ID, team.Name, team.Responsibilities, team.TelegramTopicID, now); err != nil {
		return fmt.Errorf("failed to upsert team: %w", err)
	}
	team.CreatedAt = now
	return nil
}

// GetTeam returns a team by ID
func (db *DB) GetTeam(ctx context.Context, id int64) (*models.Team, error) {
	var team models.Team
	err := db.GetContext(ctx, &team, db.Rebind(`SELECT * FROM teams WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &team, nil
}

// ListTeams returns all teams ordered by ID
func (db *DB) ListTeams(ctx context.Context) ([]*models.Team, error) {
	var teams []*models.Team
	if err := db.SelectContext(ctx, &teams, `SELECT * FROM teams ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return teams, nil
}

// CountTeams returns the number of teams with a mailbox configuration
func (db *DB) CountTeams(ctx context.Context) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM team_mailbox_config`); err != nil {
		return 0, fmt.Errorf("failed to count teams: %w", err)
	}
	return n, nil
}

// UpsertMailboxConfig stores connection settings; the watermark of an existing row is kept
func (db *DB) UpsertMailboxConfig(ctx context.Context, cfg *models.TeamMailboxConfig) error {
	if cfg.FetchMode == "" {
		cfg.FetchMode = models.FetchUnseen
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	query := db.Rebind(`
		INSERT INTO team_mailbox_config (team_id, host, port, use_tls, username, password_encrypted, folder, fetch_mode, last_processed_sequence, auto_processing_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (team_id) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			use_tls = excluded.use_tls,
			username = excluded.username,
			password_encrypted = excluded.password_encrypted,
			folder = excluded.folder,
			fetch_mode = excluded.fetch_mode,
			auto_processing_enabled = excluded.auto_processing_enabled,
			updated_at = excluded.updated_at
	`)
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, query,
		cfg.TeamID,
		cfg.Host,
		cfg.Port,
		cfg.UseTLS,
		cfg.Username,
		cfg.PasswordEncrypted,
		cfg.Folder,
		cfg.FetchMode,
		cfg.LastProcessedSequence,
		cfg.AutoProcessingEnabled,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert mailbox config: %w", err)
	}
	cfg.UpdatedAt = now
	return nil
}

// GetMailboxConfig returns the mailbox configuration of a team
func (db *DB) GetMailboxConfig(ctx context.Context, teamID int64) (*models.TeamMailboxConfig, error) {
	var cfg models.TeamMailboxConfig
	err := db.GetContext(ctx, &cfg, db.Rebind(`SELECT * FROM team_mailbox_config WHERE team_id = ?`), teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox config: %w", err)
	}
	return &cfg, nil
}

// ListEnabledMailboxConfigs returns all configurations with auto processing enabled
func (db *DB) ListEnabledMailboxConfigs(ctx context.Context) ([]*models.TeamMailboxConfig, error) {
	var cfgs []*models.TeamMailboxConfig
	query := `SELECT * FROM team_mailbox_config WHERE auto_processing_enabled = true ORDER BY team_id`
	if err := db.SelectContext(ctx, &cfgs, query); err != nil {
		return nil, fmt.Errorf("failed to list mailbox configs: %w", err)
	}
	return cfgs, nil
}

// AdvanceWatermark raises the last processed UID; lower values are ignored
func (db *DB) AdvanceWatermark(ctx context.Context, teamID int64, uid uint32) error {
	query := db.Rebind(`
		UPDATE team_mailbox_config SET last_processed_sequence = ?, updated_at = ?
		WHERE team_id = ? AND last_processed_sequence < ?
	`)
	if _, err := db.ExecContext(ctx, query, uid, time.Now().UTC(), teamID, uid); err != nil {
		return fmt.Errorf("failed to advance watermark: %w", err)
	}
	return nil
}

// SetAutoProcessing enables or disables monitoring for a team
func (db *DB) SetAutoProcessing(ctx context.Context, teamID int64, enabled bool) error {
	query := db.Rebind(`UPDATE team_mailbox_config SET auto_processing_enabled = ?, updated_at = ? WHERE team_id = ?`)
	res, err := db.ExecContext(ctx, query, enabled, time.Now().UTC(), teamID)
	if err != nil {
		return fmt.Errorf("failed to set auto processing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertSpecialist stores a specialist and replaces its categories
func (db *DB) UpsertSpecialist(ctx context.Context, s *models.Specialist, categories []string) error {
	return db.InTx(ctx, func(tx *Tx) error {
		query := tx.Rebind(`
			INSERT INTO specialists (team_id, name, email, active)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (team_id, email) DO UPDATE SET name = excluded.name, active = excluded.active
			RETURNING id
		`)
		id, err := insertReturningID(ctx, tx, query, s.TeamID, s.Name, s.Email, s.Active)
		if err != nil {
			return fmt.Errorf("failed to upsert specialist: %w", err)
		}
		s.ID = id

		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM specialist_categories WHERE specialist_id = ?`), id); err != nil {
			return fmt.Errorf("failed to clear specialist categories: %w", err)
		}
		for _, category := range categories {
			query := tx.Rebind(`INSERT INTO specialist_categories (specialist_id, category) VALUES (?, ?) ON CONFLICT DO NOTHING`)
			if _, err := tx.ExecContext(ctx, query, id, category); err != nil {
				return fmt.Errorf("failed to add specialist category: %w", err)
			}
		}
		return nil
	})
}

// AddKnownPartner records a partner name the team deals with
func (db *DB) AddKnownPartner(ctx context.Context, teamID int64, name string) error {
	query := db.Rebind(`INSERT INTO known_partners (team_id, name) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	if _, err := db.ExecContext(ctx, query, teamID, name); err != nil {
		return fmt.Errorf("failed to add known partner: %w", err)
	}
	return nil
}

// TeamContext returns the prompt context of a team
func (db *DB) TeamContext(ctx context.Context, teamID int64) (*models.TeamContext, error) {
	team, err := db.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	var partners []string
	query := db.Rebind(`SELECT name FROM known_partners WHERE team_id = ? ORDER BY name`)
	if err := db.SelectContext(ctx, &partners, query, teamID); err != nil {
		return nil, fmt.Errorf("failed to list known partners: %w", err)
	}

	return &models.TeamContext{
		TeamName:         team.Name,
		Responsibilities: team.Responsibilities,
		KnownPartners:    partners,
	}, nil
}
