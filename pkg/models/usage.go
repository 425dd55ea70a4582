package models

import "time"

// Tier names a credential set of the language model provider
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// KeyUsageState tracks request counters of one tier
type KeyUsageState struct {
	Tier            Tier      `db:"tier"`
	DailyCount      int       `db:"daily_count"`
	DailyLimit      int       `db:"daily_limit"`
	MinuteCount     int       `db:"minute_count"`
	MinuteLimit     int       `db:"minute_limit"`
	BackoffStep     int       `db:"backoff_step"` // Consecutive quota rejections
	LastMinuteReset time.Time `db:"last_minute_reset"`
	LastDayReset    time.Time `db:"last_day_reset"`
}

// Refresh resets the counters whose time window rolled over
func (s *KeyUsageState) Refresh(now time.Time) {
	now = now.UTC()
	if !sameDay(s.LastDayReset.UTC(), now) {
		s.DailyCount = 0
		s.LastDayReset = now
	}
	if !s.LastMinuteReset.UTC().Truncate(time.Minute).Equal(now.Truncate(time.Minute)) {
		s.MinuteCount = 0
		s.LastMinuteReset = now
	}
}

// Available reports whether both counters are below their limits
func (s *KeyUsageState) Available() bool {
	return s.DailyCount < s.DailyLimit && s.MinuteCount < s.MinuteLimit
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
