// Package scheduler starts and stops team mailbox monitoring and drives the periodic queue sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mixelka/clarify/internal/database"
	"github.com/mixelka/clarify/internal/email"
	"github.com/mixelka/clarify/pkg/models"
)

var (
	ErrNotRunning   = errors.New("scheduler is not running")
	ErrTeamNotFound = errors.New("team has no mailbox configuration")
)

// Monitor runs per-team mailbox monitors
type Monitor interface {
	StartTeamMonitoring(ctx context.Context, cfg *models.TeamMailboxConfig) error
	StopTeam(teamID int64)
	StopAll()
	MonitoredTeams() []int64
	Status() []email.TeamStatus
	TestConnection(ctx context.Context, cfg *models.TeamMailboxConfig) error
}

// Queue is the processing queue maintenance surface
type Queue interface {
	Sweep(ctx context.Context, batchSize int) (int, error)
	ReleaseStale(ctx context.Context) (int64, error)
	PurgeCompleted(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (models.QueueStats, error)
}

// CacheCleaner drops expired extraction results
type CacheCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// TeamStore provides mailbox configurations
type TeamStore interface {
	ListEnabledMailboxConfigs(ctx context.Context) ([]*models.TeamMailboxConfig, error)
	GetMailboxConfig(ctx context.Context, teamID int64) (*models.TeamMailboxConfig, error)
	CountTeams(ctx context.Context) (int, error)
}

// Options configures the scheduler
type Options struct {
	SweepInterval time.Duration
	BatchSize     int
}

// Status is the externally reported scheduler state
type Status struct {
	Running        bool    `json:"running"`
	MonitoredTeams []int64 `json:"monitoredTeams"`
	TotalTeams     int     `json:"totalTeams"`
}

// Health is the health report of the ingestion service
type Health struct {
	Service string         `json:"service"`
	Status  string         `json:"status"`
	Details map[string]any `json:"details"`
}

// Scheduler owns the lifecycle of monitoring and queue maintenance
type Scheduler struct {
	monitor Monitor
	queue   Queue
	cache   CacheCleaner
	store   TeamStore
	opts    Options
	logger  *slog.Logger

	// lifecycle serializes Start, Stop and team changes
	lifecycle sync.Mutex
	running   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates a new scheduler
func NewScheduler(monitor Monitor, queue Queue, cache CacheCleaner, store TeamStore, opts Options, logger *slog.Logger) *Scheduler {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	return &Scheduler{
		monitor: monitor,
		queue:   queue,
		cache:   cache,
		store:   store,
		opts:    opts,
		logger:  logger.With("component", "scheduler"),
	}
}

// Start starts monitoring of every enabled team and the sweep timer; a running scheduler is left alone
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.running.Load() {
		return nil
	}

	if _, err := s.queue.ReleaseStale(ctx); err != nil {
		s.logger.Error("failed to release stale entries", "error", err)
	}

	cfgs, err := s.store.ListEnabledMailboxConfigs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load teams: %w", err)
	}

	started := 0
	for _, cfg := range cfgs {
		if err := s.monitor.StartTeamMonitoring(ctx, cfg); err != nil {
			// One broken mailbox must not keep the others down
			s.logger.Error("failed to start team monitoring", "team_id", cfg.TeamID, "error", err)
			continue
		}
		started++
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)

	s.running.Store(true)
	s.logger.Info("scheduler started", "teams", started, "enabled", len(cfgs), "sweep_interval", s.opts.SweepInterval)
	return nil
}

// Stop stops the sweep timer and every monitor
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if !s.running.Load() {
		return
	}

	s.cancel()
	<-s.done
	s.monitor.StopAll()

	s.running.Store(false)
	s.logger.Info("scheduler stopped")
}

// Restart stops and starts the scheduler, reloading team configurations
func (s *Scheduler) Restart(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// AddTeamMonitoring starts monitoring of one team without touching the others
func (s *Scheduler) AddTeamMonitoring(ctx context.Context, teamID int64) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.running.Load() {
		return ErrNotRunning
	}

	cfg, err := s.store.GetMailboxConfig(ctx, teamID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrTeamNotFound
	}
	if err != nil {
		return err
	}

	if err := s.monitor.StartTeamMonitoring(ctx, cfg); err != nil {
		return fmt.Errorf("failed to start team monitoring: %w", err)
	}
	return nil
}

// TestTeamConnection opens the stored mailbox of a team once without monitoring it
func (s *Scheduler) TestTeamConnection(ctx context.Context, teamID int64) error {
	cfg, err := s.store.GetMailboxConfig(ctx, teamID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrTeamNotFound
	}
	if err != nil {
		return err
	}
	return s.monitor.TestConnection(ctx, cfg)
}

// RemoveTeamMonitoring stops monitoring of one team; unknown teams are ignored
func (s *Scheduler) RemoveTeamMonitoring(teamID int64) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.monitor.StopTeam(teamID)
}

// IsRunning reports whether the scheduler is started
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// GetStatus reports whether the scheduler runs and which teams are monitored
func (s *Scheduler) GetStatus(ctx context.Context) (Status, error) {
	total, err := s.store.CountTeams(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:        s.running.Load(),
		MonitoredTeams: s.monitor.MonitoredTeams(),
		TotalTeams:     total,
	}, nil
}

// TeamStatus returns the state of every team monitor
func (s *Scheduler) TeamStatus() []email.TeamStatus {
	return s.monitor.Status()
}

// Health reports the service state with per-team and queue details
func (s *Scheduler) Health(ctx context.Context) Health {
	h := Health{
		Service: "ingestion",
		Status:  "stopped",
		Details: map[string]any{
			"teams": s.monitor.Status(),
		},
	}
	if s.running.Load() {
		h.Status = "running"
	}

	if stats, err := s.queue.Stats(ctx); err != nil {
		h.Details["queueError"] = err.Error()
	} else {
		h.Details["queue"] = stats
	}
	return h
}

// loop runs a maintenance pass right away and then on every tick
func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.tick(ctx)

	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	// Entries whose outcome could not be recorded stay PROCESSING until released
	if _, err := s.queue.ReleaseStale(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("failed to release stale entries", "error", err)
	}

	n, err := s.queue.Sweep(ctx, s.opts.BatchSize)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("queue sweep failed", "error", err)
	}
	if n > 0 {
		s.logger.Info("queue sweep processed entries", "count", n)
	}
	if ctx.Err() != nil {
		return
	}

	if _, err := s.cache.CleanupExpired(ctx); err != nil {
		s.logger.Error("failed to clean extraction cache", "error", err)
	}
	if _, err := s.queue.PurgeCompleted(ctx); err != nil {
		s.logger.Error("failed to purge queue", "error", err)
	}
}
