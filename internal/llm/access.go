// Package llm selects between the free and paid credential tiers of the
// language model provider and retries once on quota rejections.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mixelka/clarify/internal/backoff"
	"github.com/mixelka/clarify/pkg/models"
)

// ErrQuotaExceeded is returned when both the call and its retry were rejected for quota
var ErrQuotaExceeded = errors.New("model quota exceeded")

// Generator sends a prompt to one credential tier
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// UsageStore persists tier counters across restarts
type UsageStore interface {
	ListKeyUsage(ctx context.Context) ([]*models.KeyUsageState, error)
	SaveKeyUsage(ctx context.Context, s *models.KeyUsageState) error
}

// Limits configures the request budget of one tier
type Limits struct {
	Daily  int
	Minute int
}

// Options configures Access
type Options struct {
	Free       Generator // nil when no free key is configured
	Paid       Generator // nil when no paid key is configured
	FreeLimits Limits
	PaidLimits Limits
	Backoff    backoff.Policy
	Timeout    time.Duration
	Store      UsageStore
	Logger     *slog.Logger
}

// Access is the single entry point to the language model
type Access struct {
	generators map[models.Tier]Generator
	policy     backoff.Policy
	timeout    time.Duration
	store      UsageStore
	logger     *slog.Logger

	mu    sync.Mutex
	usage map[models.Tier]*models.KeyUsageState
	dirty map[models.Tier]bool

	// saveMu orders snapshots so an older one never overwrites a newer one
	saveMu sync.Mutex

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAccess creates a new Access
func NewAccess(opts Options) *Access {
	now := time.Now().UTC()
	a := &Access{
		generators: make(map[models.Tier]Generator),
		policy:     opts.Backoff,
		timeout:    opts.Timeout,
		store:      opts.Store,
		logger:     opts.Logger.With("component", "model_access"),
		usage: map[models.Tier]*models.KeyUsageState{
			models.TierFree: {Tier: models.TierFree, DailyLimit: opts.FreeLimits.Daily, MinuteLimit: opts.FreeLimits.Minute, LastDayReset: now, LastMinuteReset: now},
			models.TierPaid: {Tier: models.TierPaid, DailyLimit: opts.PaidLimits.Daily, MinuteLimit: opts.PaidLimits.Minute, LastDayReset: now, LastMinuteReset: now},
		},
		dirty: make(map[models.Tier]bool),
		now:   time.Now,
		sleep: backoff.Wait,
	}
	if opts.Free != nil {
		a.generators[models.TierFree] = opts.Free
	}
	if opts.Paid != nil {
		a.generators[models.TierPaid] = opts.Paid
	}
	return a
}

// Restore loads persisted counters; configured limits win over stored ones
func (a *Access) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}

	states, err := a.store.ListKeyUsage(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore key usage: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range states {
		cur, ok := a.usage[s.Tier]
		if !ok {
			continue
		}
		s.DailyLimit = cur.DailyLimit
		s.MinuteLimit = cur.MinuteLimit
		a.usage[s.Tier] = s
	}
	return nil
}

// Usage returns a copy of the counters of a tier
func (a *Access) Usage(tier models.Tier) models.KeyUsageState {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.usage[tier]
	s.Refresh(a.now())
	return *s
}

// Generate sends the prompt to the cheapest available tier.
// A quota rejection waits the next backoff delay and retries once on the other tier.
func (a *Access) Generate(ctx context.Context, prompt string) (string, error) {
	tier, err := a.selectTier()
	if err != nil {
		return "", err
	}

	out, err := a.call(ctx, tier, prompt)
	if err == nil {
		a.recordSuccess(tier)
		return out, nil
	}
	if !IsQuotaError(err) {
		return "", fmt.Errorf("failed to generate with %s tier: %w", tier, err)
	}

	delay := a.recordRejection(tier)
	retryTier := a.alternate(tier)
	a.logger.Warn("quota rejection, switching tier",
		"tier", tier,
		"retry_tier", retryTier,
		"delay", delay,
		"error", err,
	)

	if err := a.sleep(ctx, delay); err != nil {
		return "", err
	}
	a.consume(retryTier)

	out, err = a.call(ctx, retryTier, prompt)
	if err == nil {
		a.recordSuccess(retryTier)
		return out, nil
	}
	if IsQuotaError(err) {
		a.recordRejection(retryTier)
		return "", fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	}
	return "", fmt.Errorf("failed to generate with %s tier: %w", retryTier, err)
}

func (a *Access) call(ctx context.Context, tier models.Tier, prompt string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	out, err := a.generators[tier].Generate(ctx, prompt)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		// Providers do not always wrap the context error
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return out, err
}

// selectTier refreshes the windows and takes one request from the chosen tier
func (a *Access) selectTier() (models.Tier, error) {
	defer a.flush()
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for _, s := range a.usage {
		s.Refresh(now)
	}

	free := a.usage[models.TierFree]
	var tier models.Tier
	switch {
	case a.generators[models.TierFree] != nil && free.Available():
		tier = models.TierFree
	case a.generators[models.TierPaid] != nil:
		tier = models.TierPaid
	default:
		return "", fmt.Errorf("%w: free tier limits reached and no paid tier configured", ErrQuotaExceeded)
	}

	a.consumeLocked(tier)
	return tier, nil
}

// alternate returns the other configured tier, or the same one when only one exists
func (a *Access) alternate(tier models.Tier) models.Tier {
	other := models.TierPaid
	if tier == models.TierPaid {
		other = models.TierFree
	}
	if a.generators[other] == nil {
		return tier
	}
	return other
}

func (a *Access) consume(tier models.Tier) {
	defer a.flush()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage[tier].Refresh(a.now())
	a.consumeLocked(tier)
}

func (a *Access) consumeLocked(tier models.Tier) {
	s := a.usage[tier]
	s.DailyCount++
	s.MinuteCount++
	a.dirty[tier] = true
}

func (a *Access) recordSuccess(tier models.Tier) {
	defer a.flush()
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.usage[tier]
	if s.BackoffStep == 0 {
		return
	}
	s.BackoffStep = 0
	a.dirty[tier] = true
}

// recordRejection marks the tier exhausted for this minute and returns the delay to wait
func (a *Access) recordRejection(tier models.Tier) time.Duration {
	defer a.flush()
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.usage[tier]
	if s.MinuteCount < s.MinuteLimit {
		s.MinuteCount = s.MinuteLimit
	}
	delay := a.policy.Delay(s.BackoffStep)
	s.BackoffStep++
	a.dirty[tier] = true
	return delay
}

// flush saves the counters changed since the last flush; counters stay authoritative in memory
func (a *Access) flush() {
	if a.store == nil {
		return
	}

	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	snapshots := make([]models.KeyUsageState, 0, len(a.dirty))
	for tier := range a.dirty {
		snapshots = append(snapshots, *a.usage[tier])
		delete(a.dirty, tier)
	}
	a.mu.Unlock()

	for _, s := range snapshots {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := a.store.SaveKeyUsage(ctx, &s)
		cancel()
		if err != nil {
			a.logger.Warn("failed to persist key usage", "tier", s.Tier, "error", err)
			a.mu.Lock()
			a.dirty[s.Tier] = true
			a.mu.Unlock()
		}
	}
}
