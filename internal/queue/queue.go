// Package queue persists inbound messages and drives them through the
// processing handler with bounded retries.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mixelka/clarify/internal/backoff"
	"github.com/mixelka/clarify/internal/database"
	"github.com/mixelka/clarify/pkg/models"
)

// Store persists queue entries
type Store interface {
	InsertQueueEntry(ctx context.Context, e *models.QueueEntry) error
	GetQueueEntry(ctx context.Context, id int64) (*models.QueueEntry, error)
	ListPendingQueueEntries(ctx context.Context, limit int) ([]*models.QueueEntry, error)
	ClaimQueueEntry(ctx context.Context, id int64) (bool, error)
	FinishQueueEntry(ctx context.Context, id int64, status models.QueueStatus, retryCount int, errMsg string) error
	ResubmitQueueEntry(ctx context.Context, id int64) error
	ReleaseStaleQueueEntries(ctx context.Context, before time.Time) (int64, error)
	PurgeQueueEntries(ctx context.Context, before time.Time) (int64, error)
	QueueStats(ctx context.Context) (models.QueueStats, error)
}

// OutcomeKind is the result class of processing one entry
type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota
	OutcomeRetry
	OutcomeSkipped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeRetry:
		return "retry"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is what the handler reports for an entry
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// Completed reports successful processing
func Completed() Outcome { return Outcome{Kind: OutcomeCompleted} }

// Retry reports a recoverable failure
func Retry(err error) Outcome { return Outcome{Kind: OutcomeRetry, Reason: err.Error()} }

// Skip reports an entry that needs no further work
func Skip(reason string) Outcome { return Outcome{Kind: OutcomeSkipped, Reason: reason} }

// Handler processes one claimed entry
type Handler interface {
	Process(ctx context.Context, entry *models.QueueEntry) Outcome
}

// Options configures the queue
type Options struct {
	MaxRetries int
	Workers    int
	StaleAfter time.Duration
	Retention  time.Duration
}

// Queue is the durable processing queue
type Queue struct {
	store      Store
	handler    Handler
	retries    backoff.Policy
	workers    int
	staleAfter time.Duration
	retention  time.Duration
	logger     *slog.Logger

	now func() time.Time
}

// NewQueue creates a new queue
func NewQueue(store Store, handler Handler, opts Options, logger *slog.Logger) *Queue {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		store:      store,
		handler:    handler,
		retries:    backoff.Policy{MaxAttempts: opts.MaxRetries},
		workers:    workers,
		staleAfter: opts.StaleAfter,
		retention:  opts.Retention,
		logger:     logger.With("component", "queue"),
		now:        time.Now,
	}
}

// Enqueue stores msg as a pending entry. inserted is false when the team already queued this UID.
func (q *Queue) Enqueue(ctx context.Context, teamID int64, msg *models.NormalizedMessage) (entry *models.QueueEntry, inserted bool, err error) {
	entry = models.NewQueueEntry(teamID, msg)
	err = q.store.InsertQueueEntry(ctx, entry)
	if errors.Is(err, database.ErrAlreadyExists) {
		q.logger.Debug("message already queued", "team_id", teamID, "uid", msg.UID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	q.logger.Info("message queued", "team_id", teamID, "uid", msg.UID, "entry_id", entry.ID)
	return entry, true, nil
}

// Sweep processes up to batchSize pending entries, oldest first.
// It returns the number of entries this call claimed.
func (q *Queue) Sweep(ctx context.Context, batchSize int) (int, error) {
	entries, err := q.store.ListPendingQueueEntries(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	claimed := make([]bool, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.workers)
	for i, entry := range entries {
		g.Go(func() error {
			ok, err := q.run(gctx, entry)
			if err != nil {
				q.logger.Error("failed to process entry", "entry_id", entry.ID, "error", err)
			}
			claimed[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range claimed {
		if ok {
			n++
		}
	}
	q.logger.Debug("sweep finished", "pending", len(entries), "processed", n)
	return n, ctx.Err()
}

// ProcessNow processes one entry immediately if it is still pending
func (q *Queue) ProcessNow(ctx context.Context, id int64) (bool, error) {
	entry, err := q.store.GetQueueEntry(ctx, id)
	if err != nil {
		return false, err
	}
	if entry.Status != models.QueuePending {
		return false, nil
	}
	return q.run(ctx, entry)
}

// run claims the entry and records the handler outcome; false means someone else owns it
func (q *Queue) run(ctx context.Context, entry *models.QueueEntry) (bool, error) {
	ok, err := q.store.ClaimQueueEntry(ctx, entry.ID)
	if err != nil || !ok {
		return false, err
	}
	entry.Status = models.QueueProcessing

	outcome := q.handler.Process(ctx, entry)

	// Shutdown is not a processing failure
	if outcome.Kind == OutcomeRetry && ctx.Err() != nil {
		return true, q.release(context.WithoutCancel(ctx), entry)
	}

	if err := q.MarkResult(context.WithoutCancel(ctx), entry, outcome); err != nil {
		return true, err
	}
	return true, nil
}

// release returns an interrupted entry to PENDING with its retry count unchanged
func (q *Queue) release(ctx context.Context, entry *models.QueueEntry) error {
	if err := q.store.FinishQueueEntry(ctx, entry.ID, models.QueuePending, entry.RetryCount, entry.ErrorMessage); err != nil {
		return fmt.Errorf("failed to release interrupted entry: %w", err)
	}
	entry.Status = models.QueuePending
	q.logger.Info("entry released after cancellation", "entry_id", entry.ID, "retries", entry.RetryCount)
	return nil
}

// MarkResult stores the outcome of a processing entry
func (q *Queue) MarkResult(ctx context.Context, entry *models.QueueEntry, outcome Outcome) error {
	logger := q.logger.With("entry_id", entry.ID, "team_id", entry.TeamID, "uid", entry.MessageSequenceID)

	status := models.QueueCompleted
	retries := entry.RetryCount
	switch outcome.Kind {
	case OutcomeSkipped:
		status = models.QueueSkipped
	case OutcomeRetry:
		retries++
		status = models.QueuePending
		if q.retries.Exhausted(retries) {
			status = models.QueueFailed
		}
	}

	if err := q.store.FinishQueueEntry(ctx, entry.ID, status, retries, outcome.Reason); err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	entry.Status = status
	entry.RetryCount = retries
	entry.ErrorMessage = outcome.Reason

	switch status {
	case models.QueueFailed:
		logger.Error("entry failed permanently", "retries", retries, "error", outcome.Reason)
	case models.QueuePending:
		logger.Warn("entry will be retried", "retries", retries, "error", outcome.Reason)
	default:
		logger.Info("entry processed", "status", status, "reason", outcome.Reason)
	}
	return nil
}

// Resubmit puts a FAILED or SKIPPED entry back to PENDING
func (q *Queue) Resubmit(ctx context.Context, id int64) error {
	if err := q.store.ResubmitQueueEntry(ctx, id); err != nil {
		return err
	}
	q.logger.Info("entry resubmitted", "entry_id", id)
	return nil
}

// ReleaseStale returns entries stuck in PROCESSING, e.g. after a crash, to PENDING
func (q *Queue) ReleaseStale(ctx context.Context) (int64, error) {
	n, err := q.store.ReleaseStaleQueueEntries(ctx, q.now().Add(-q.staleAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.Warn("released stale entries", "count", n)
	}
	return n, nil
}

// PurgeCompleted deletes completed entries older than the retention
func (q *Queue) PurgeCompleted(ctx context.Context) (int64, error) {
	if q.retention <= 0 {
		return 0, nil
	}
	n, err := q.store.PurgeQueueEntries(ctx, q.now().Add(-q.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.Info("purged completed entries", "count", n)
	}
	return n, nil
}

// Stats counts entries per status
func (q *Queue) Stats(ctx context.Context) (models.QueueStats, error) {
	return q.store.QueueStats(ctx)
}
