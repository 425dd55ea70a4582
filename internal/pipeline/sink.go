package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/mixelka/clarify/internal/parser"
	"github.com/mixelka/clarify/pkg/models"
)

// Enqueuer is the part of the queue the sink uses
type Enqueuer interface {
	Enqueue(ctx context.Context, teamID int64, msg *models.NormalizedMessage) (*models.QueueEntry, bool, error)
	ProcessNow(ctx context.Context, id int64) (bool, error)
}

// Sink receives fetched messages from the mailbox monitors
type Sink struct {
	queue  Enqueuer
	html   *parser.HTMLParser
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	wg     sync.WaitGroup
}

// NewSink creates a new sink; at most workers messages are processed immediately at a time
func NewSink(q Enqueuer, workers int, logger *slog.Logger) *Sink {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sink{
		queue:  q,
		html:   parser.NewHTMLParser(),
		logger: logger.With("component", "sink"),
		ctx:    ctx,
		cancel: cancel,
		sem:    make(chan struct{}, workers),
	}
}

// HandleMessage queues msg and starts processing it when it is new.
// An error means the message was not stored and must be fetched again.
func (s *Sink) HandleMessage(ctx context.Context, teamID int64, msg *models.NormalizedMessage) error {
	if strings.TrimSpace(msg.Body) == "" && msg.HTMLBody != "" {
		text, err := s.html.Parse(msg.HTMLBody)
		if err != nil {
			s.logger.Warn("failed to convert HTML body", "team_id", teamID, "uid", msg.UID, "error", err)
		} else {
			msg.Body = text
		}
	}

	entry, inserted, err := s.queue.Enqueue(ctx, teamID, msg)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	// Processing belongs to the sink, not to the mailbox poll that found the message
	select {
	case s.sem <- struct{}{}:
	default:
		s.logger.Debug("immediate processing busy, leaving entry to the sweep", "entry_id", entry.ID)
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.sem }()
		if _, err := s.queue.ProcessNow(s.ctx, entry.ID); err != nil {
			s.logger.Error("immediate processing failed", "entry_id", entry.ID, "error", err)
		}
	}()
	return nil
}

// Close stops immediate processing and waits for running work
func (s *Sink) Close() {
	s.cancel()
	s.wg.Wait()
}
