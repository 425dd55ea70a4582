// Package pipeline connects mailbox ingestion, extraction and case creation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mixelka/clarify/internal/cases"
	"github.com/mixelka/clarify/internal/parser"
	"github.com/mixelka/clarify/internal/queue"
	"github.com/mixelka/clarify/pkg/models"
)

// Extractor produces the extraction result of a message
type Extractor interface {
	ExtractDataFromEmail(ctx context.Context, msg *models.NormalizedMessage, teamID int64) (*models.ExtractionResult, error)
}

// CaseCreator opens cases
type CaseCreator interface {
	CreateClarificationFromEmail(ctx context.Context, msg *models.NormalizedMessage, res *models.ExtractionResult, teamID int64) (*models.ClarificationCase, error)
	CreateBulkClarification(ctx context.Context, msg *models.NormalizedMessage, res *models.ExtractionResult, teamID int64, items []parser.ListItem) (*models.ClarificationCase, error)
}

// Handler processes queue entries: extraction, eligibility, case creation
type Handler struct {
	extractor    Extractor
	creator      CaseCreator
	detector     *parser.ReferenceDetector
	bulkMinItems int
	logger       *slog.Logger
}

// NewHandler creates a new queue handler; bulkMinItems of zero disables bulk cases
func NewHandler(extractor Extractor, creator CaseCreator, bulkMinItems int, logger *slog.Logger) *Handler {
	return &Handler{
		extractor:    extractor,
		creator:      creator,
		detector:     parser.NewReferenceDetector(),
		bulkMinItems: bulkMinItems,
		logger:       logger.With("component", "pipeline"),
	}
}

// Process implements queue.Handler
func (h *Handler) Process(ctx context.Context, entry *models.QueueEntry) queue.Outcome {
	msg := entry.Message()
	logger := h.logger.With("entry_id", entry.ID, "team_id", entry.TeamID, "uid", msg.UID)

	res, err := h.extractor.ExtractDataFromEmail(ctx, msg, entry.TeamID)
	if err != nil {
		logger.Warn("extraction failed", "error", err)
		return queue.Retry(err)
	}

	if !cases.IsEligible(res) {
		reason := fmt.Sprintf("not eligible: category %s, %d references, confidence %.2f",
			res.Classification.Category, res.References.Count(), res.Confidence)
		logger.Info("message skipped", "reason", reason)
		return queue.Skip(reason)
	}

	var c *models.ClarificationCase
	items := h.detector.DetectListItems(msg.Body)
	if h.bulkMinItems > 0 && len(items) >= h.bulkMinItems {
		c, err = h.creator.CreateBulkClarification(ctx, msg, res, entry.TeamID, items)
	} else {
		c, err = h.creator.CreateClarificationFromEmail(ctx, msg, res, entry.TeamID)
	}
	if err != nil {
		logger.Error("case creation failed", "error", err)
		return queue.Retry(err)
	}

	logger.Info("message processed", "case_id", c.ID, "from_cache", res.FromCache)
	return queue.Completed()
}
