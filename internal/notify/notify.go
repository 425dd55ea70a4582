// Package notify announces newly created clarification cases.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mixelka/clarify/pkg/models"
)

// Notifier announces a new case
type Notifier interface {
	NotifyCaseCreated(ctx context.Context, event *models.CaseEvent) error
}

// LogNotifier writes case events to the log
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// NotifyCaseCreated logs the event
func (n *LogNotifier) NotifyCaseCreated(ctx context.Context, event *models.CaseEvent) error {
	n.logger.Info("case created",
		"case_id", event.CaseID,
		"team_id", event.TeamID,
		"title", event.Title,
		"category", event.Category,
		"priority", event.Priority,
		"partner", event.PartnerName,
		"bulk", event.IsBulk,
	)
	return nil
}

// Multi sends every event to all notifiers
type Multi []Notifier

// NotifyCaseCreated calls every notifier and joins their errors
func (m Multi) NotifyCaseCreated(ctx context.Context, event *models.CaseEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyCaseCreated(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
