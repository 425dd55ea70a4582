package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/clarify/pkg/models"
)

// InsertQueueEntry creates a pending entry (returns ErrAlreadyExists for a known team and UID)
func (db *DB) InsertQueueEntry(ctx context.Context, e *models.QueueEntry) error {
	query := db.Rebind(`
		INSERT INTO processing_queue (team_id, message_sequence_id, message_id, subject, sender, recipients, body, attachments, received_at, status, retry_count, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)
		ON CONFLICT (team_id, message_sequence_id) DO NOTHING
		RETURNING id
	`)
	now := time.Now().UTC()
	receivedAt := e.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}

	id, err := insertReturningID(ctx, db, query,
		e.TeamID,
		e.MessageSequenceID,
		e.MessageID,
		e.Subject,
		e.Sender,
		e.Recipients,
		e.Body,
		e.Attachments,
		receivedAt.UTC(),
		models.QueuePending,
		now,
		now,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert queue entry: %w", err)
	}

	e.ID = id
	e.Status = models.QueuePending
	e.RetryCount = 0
	e.ReceivedAt = receivedAt
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

// GetQueueEntry returns an entry by ID
func (db *DB) GetQueueEntry(ctx context.Context, id int64) (*models.QueueEntry, error) {
	var e models.QueueEntry
	err := db.GetContext(ctx, &e, db.Rebind(`SELECT * FROM processing_queue WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return &e, nil
}

// ListPendingQueueEntries returns up to limit pending entries, oldest first
func (db *DB) ListPendingQueueEntries(ctx context.Context, limit int) ([]*models.QueueEntry, error) {
	var entries []*models.QueueEntry
	query := db.Rebind(`SELECT * FROM processing_queue WHERE status = ? ORDER BY created_at, id LIMIT ?`)
	if err := db.SelectContext(ctx, &entries, query, models.QueuePending, limit); err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}
	return entries, nil
}

// ClaimQueueEntry moves a pending entry to PROCESSING; false means another worker owns it
func (db *DB) ClaimQueueEntry(ctx context.Context, id int64) (bool, error) {
	query := db.Rebind(`UPDATE processing_queue SET status = ?, updated_at = ? WHERE id = ? AND status = ?`)
	res, err := db.ExecContext(ctx, query, models.QueueProcessing, time.Now().UTC(), id, models.QueuePending)
	if err != nil {
		return false, fmt.Errorf("failed to claim queue entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// FinishQueueEntry records the outcome of a processing entry
func (db *DB) FinishQueueEntry(ctx context.Context, id int64, status models.QueueStatus, retryCount int, errMsg string) error {
	query := db.Rebind(`
		UPDATE processing_queue SET status = ?, retry_count = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`)
	res, err := db.ExecContext(ctx, query, status, retryCount, errMsg, time.Now().UTC(), id, models.QueueProcessing)
	if err != nil {
		return fmt.Errorf("failed to finish queue entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResubmitQueueEntry puts a FAILED or SKIPPED entry back to PENDING with a fresh retry budget
func (db *DB) ResubmitQueueEntry(ctx context.Context, id int64) error {
	query := db.Rebind(`
		UPDATE processing_queue SET status = ?, retry_count = 0, error_message = '', updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`)
	res, err := db.ExecContext(ctx, query, models.QueuePending, time.Now().UTC(), id, models.QueueFailed, models.QueueSkipped)
	if err != nil {
		return fmt.Errorf("failed to resubmit queue entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseStaleQueueEntries returns PROCESSING entries untouched since before to PENDING
func (db *DB) ReleaseStaleQueueEntries(ctx context.Context, before time.Time) (int64, error) {
	query := db.Rebind(`UPDATE processing_queue SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`)
	res, err := db.ExecContext(ctx, query, models.QueuePending, time.Now().UTC(), models.QueueProcessing, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to release stale entries: %w", err)
	}
	return res.RowsAffected()
}

// PurgeQueueEntries deletes COMPLETED entries finished before the cutoff
func (db *DB) PurgeQueueEntries(ctx context.Context, before time.Time) (int64, error) {
	query := db.Rebind(`DELETE FROM processing_queue WHERE status = ? AND updated_at < ?`)
	res, err := db.ExecContext(ctx, query, models.QueueCompleted, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue entries: %w", err)
	}
	return res.RowsAffected()
}

// QueueStats counts entries per status
func (db *DB) QueueStats(ctx context.Context) (models.QueueStats, error) {
	var rows []struct {
		Status models.QueueStatus `db:"status"`
		Count  int                `db:"n"`
	}
	if err := db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM processing_queue GROUP BY status`); err != nil {
		return nil, fmt.Errorf("failed to count queue entries: %w", err)
	}

	stats := make(models.QueueStats, len(rows))
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}
