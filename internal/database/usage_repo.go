package database

import (
	"context"
	"fmt"

	"github.com/mixelka/clarify/pkg/models"
)

// ListKeyUsage returns the persisted counters of every tier
func (db *DB) ListKeyUsage(ctx context.Context) ([]*models.KeyUsageState, error) {
	var states []*models.KeyUsageState
	if err := db.SelectContext(ctx, &states, `SELECT * FROM key_usage_state ORDER BY tier`); err != nil {
		return nil, fmt.Errorf("failed to list key usage: %w", err)
	}
	return states, nil
}

// SaveKeyUsage stores the counters of one tier
func (db *DB) SaveKeyUsage(ctx context.Context, s *models.KeyUsageState) error {
	query := db.Rebind(`
		INSERT INTO key_usage_state (tier, daily_count, daily_limit, minute_count, minute_limit, backoff_step, last_minute_reset, last_day_reset)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tier) DO UPDATE SET
			daily_count = excluded.daily_count,
			daily_limit = excluded.daily_limit,
			minute_count = excluded.minute_count,
			minute_limit = excluded.minute_limit,
			backoff_step = excluded.backoff_step,
			last_minute_reset = excluded.last_minute_reset,
			last_day_reset = excluded.last_day_reset
	`)
	_, err := db.ExecContext(ctx, query,
		s.Tier,
		s.DailyCount,
		s.DailyLimit,
		s.MinuteCount,
		s.MinuteLimit,
		s.BackoffStep,
		s.LastMinuteReset.UTC(),
		s.LastDayReset.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save key usage: %w", err)
	}
	return nil
}
