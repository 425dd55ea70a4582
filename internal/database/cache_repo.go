package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/clarify/pkg/models"
)

// GetCacheEntry returns the cached extraction for a content hash and team
func (db *DB) GetCacheEntry(ctx context.Context, hash string, teamID int64) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	query := db.Rebind(`SELECT * FROM extraction_cache WHERE content_hash = ? AND team_id = ?`)
	err := db.GetContext(ctx, &entry, query, hash, teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return &entry, nil
}

// PutCacheEntry stores an extraction, superseding any previous entry for the same key
func (db *DB) PutCacheEntry(ctx context.Context, entry *models.CacheEntry) error {
	query := db.Rebind(`
		INSERT INTO extraction_cache (content_hash, team_id, result_json, confidence, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (content_hash, team_id) DO UPDATE SET
			result_json = excluded.result_json,
			confidence = excluded.confidence,
			created_at = excluded.created_at
	`)
	_, err := db.ExecContext(ctx, query, entry.ContentHash, entry.TeamID, entry.ResultJSON, entry.Confidence, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// DeleteExpiredCache removes entries created before the cutoff
func (db *DB) DeleteExpiredCache(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM extraction_cache WHERE created_at < ?`), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	return res.RowsAffected()
}
