// Package cases opens clarification cases from extracted email and runs
// the follow-up automation around a new case.
package cases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mixelka/clarify/internal/database"
	"github.com/mixelka/clarify/internal/parser"
	"github.com/mixelka/clarify/pkg/models"
)

// MinConfidence is the lowest extraction confidence that opens a case
const MinConfidence = 0.3

const maxTitleLen = 200

// Tx is the transactional part of the case store
type Tx interface {
	FindCaseBySource(ctx context.Context, teamID int64, uid uint32) (*models.ClarificationCase, error)
	FindPartnerByDomain(ctx context.Context, domain string) (*models.Partner, error)
	FindPartnerByNameKey(ctx context.Context, key string) (*models.Partner, error)
	CreatePartner(ctx context.Context, p *models.Partner) error
	CreateCase(ctx context.Context, c *models.ClarificationCase) error
	AddReference(ctx context.Context, r *models.CaseReference) error
	AddAudit(ctx context.Context, a *models.ExtractionAudit) error
	AddCaseItem(ctx context.Context, item *models.CaseItem) error
}

// Store persists cases; Atomic commits everything fn does or nothing
type Store interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	SpecialistLoads(ctx context.Context, teamID int64, category string) ([]models.SpecialistLoad, error)
	AssignCase(ctx context.Context, caseID, specialistID int64) error
	AddActivity(ctx context.Context, caseID int64, kind, detail string) error
	AddDraft(ctx context.Context, caseID int64, body string) error
	AddFollowUp(ctx context.Context, caseID int64, dueAt time.Time) error
	AddTask(ctx context.Context, caseID int64, kind, target string) error
}

// Drafter writes reply drafts
type Drafter interface {
	SuggestReply(ctx context.Context, c *models.ClarificationCase, msg *models.NormalizedMessage, summary string) (string, error)
}

// Notifier announces new cases
type Notifier interface {
	NotifyCaseCreated(ctx context.Context, event *models.CaseEvent) error
}

// SQLStore adapts the database to Store
type SQLStore struct {
	*database.DB
}

// NewSQLStore creates a new SQL backed case store
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{DB: db}
}

// Atomic runs fn in one database transaction
func (s *SQLStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	return s.InTx(ctx, func(tx *database.Tx) error {
		return fn(tx)
	})
}

// Options configures the engine
type Options struct {
	FollowUpDelay     time.Duration
	EnrichmentTimeout time.Duration
}

// Engine creates clarification cases
type Engine struct {
	store    Store
	drafter  Drafter
	notifier Notifier
	opts     Options
	logger   *slog.Logger

	now func() time.Time
}

// NewEngine creates a new case engine; drafter and notifier may be nil
func NewEngine(store Store, drafter Drafter, notifier Notifier, opts Options, logger *slog.Logger) *Engine {
	if opts.EnrichmentTimeout <= 0 {
		opts.EnrichmentTimeout = 30 * time.Second
	}
	return &Engine{
		store:    store,
		drafter:  drafter,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With("component", "case_engine"),
		now:      time.Now,
	}
}

// IsEligible reports whether an extraction result justifies a case
func IsEligible(res *models.ExtractionResult) bool {
	if res == nil {
		return false
	}
	hasSignal := res.References.Count() > 0 || res.Classification.Category != models.CategoryUnknown
	return hasSignal && res.Confidence >= MinConfidence
}

// CreateClarificationFromEmail opens a case for msg. A message that already
// produced a case returns that case without running the automation again.
func (e *Engine) CreateClarificationFromEmail(ctx context.Context, msg *models.NormalizedMessage, res *models.ExtractionResult, teamID int64) (*models.ClarificationCase, error) {
	return e.create(ctx, msg, res, teamID, nil)
}

// CreateBulkClarification opens one parent case holding an item per list row
func (e *Engine) CreateBulkClarification(ctx context.Context, msg *models.NormalizedMessage, res *models.ExtractionResult, teamID int64, items []parser.ListItem) (*models.ClarificationCase, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("bulk case without items")
	}
	return e.create(ctx, msg, res, teamID, items)
}

func (e *Engine) create(ctx context.Context, msg *models.NormalizedMessage, res *models.ExtractionResult, teamID int64, items []parser.ListItem) (*models.ClarificationCase, error) {
	original, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode original email: %w", err)
	}
	audit, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extraction result: %w", err)
	}

	var (
		c        *models.ClarificationCase
		partner  *models.Partner
		existing bool
	)
	err = e.store.Atomic(ctx, func(tx Tx) error {
		found, err := tx.FindCaseBySource(ctx, teamID, msg.UID)
		if err == nil {
			c, existing = found, true
			return nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return err
		}

		partner, err = resolvePartner(ctx, tx, res, msg)
		if err != nil {
			return err
		}

		c = &models.ClarificationCase{
			Title:             title(msg, res, len(items)),
			Description:       description(msg, res),
			Category:          mapCategory(res.Classification.Category),
			Priority:          mapPriority(res.Classification.Priority),
			Effort:            mapEffort(res.Classification.Effort),
			Status:            models.CaseOpen,
			TeamID:            teamID,
			SourceSequenceID:  msg.UID,
			OriginalEmailJSON: string(original),
			AutoCreated:       true,
			IsBulk:            len(items) > 0,
		}
		if res.Automation.AutoHandle {
			c.Status = models.CaseInProgress
		}
		if partner != nil {
			c.PartnerID = &partner.ID
		}
		if err := tx.CreateCase(ctx, c); err != nil {
			return err
		}

		for _, ref := range res.References.All() {
			err := tx.AddReference(ctx, &models.CaseReference{
				CaseID:         c.ID,
				ReferenceType:  ref.Type,
				ReferenceValue: ref.Value,
				AutoExtracted:  true,
			})
			if err != nil {
				return err
			}
		}

		for _, item := range items {
			err := tx.AddCaseItem(ctx, &models.CaseItem{
				CaseID:         c.ID,
				Position:       item.Position,
				Description:    item.Text,
				ReferenceType:  item.ReferenceType,
				ReferenceValue: item.ReferenceValue,
				Status:         models.CaseOpen,
			})
			if err != nil {
				return err
			}
		}

		return tx.AddAudit(ctx, &models.ExtractionAudit{
			CaseID:     c.ID,
			ResultJSON: string(audit),
			Confidence: res.Confidence,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}

	logger := e.logger.With("team_id", teamID, "uid", msg.UID, "case_id", c.ID)
	if existing {
		logger.Info("case already exists for message")
		return c, nil
	}
	logger.Info("case created",
		"category", c.Category,
		"priority", c.Priority,
		"status", c.Status,
		"bulk", c.IsBulk,
	)

	e.enrich(ctx, logger, c, msg, res, partner, len(items))
	return c, nil
}

// enrich runs the post-commit automation; failures are logged and never undo the case
func (e *Engine) enrich(ctx context.Context, logger *slog.Logger, c *models.ClarificationCase, msg *models.NormalizedMessage, res *models.ExtractionResult, partner *models.Partner, items int) {
	step := func(name string, fn func(ctx context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, e.opts.EnrichmentTimeout)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			logger.Warn("case automation step failed", "step", name, "error", err)
		}
	}

	if res.Automation.AutoHandle {
		step("assign", func(ctx context.Context) error {
			return e.assign(ctx, c)
		})
	}

	if res.Automation.DraftResponse && e.drafter != nil {
		step("draft", func(ctx context.Context) error {
			body, err := e.drafter.SuggestReply(ctx, c, msg, res.Summary)
			if err != nil {
				return err
			}
			if err := e.store.AddDraft(ctx, c.ID, body); err != nil {
				return err
			}
			return e.store.AddActivity(ctx, c.ID, models.ActivityDrafted, "reply draft created")
		})
	}

	if res.Automation.ForwardingRequired {
		step("forward", func(ctx context.Context) error {
			target := res.Automation.ForwardTo
			if err := e.store.AddTask(ctx, c.ID, "forward", target); err != nil {
				return err
			}
			return e.store.AddActivity(ctx, c.ID, models.ActivityForwarded, "forward to "+orUnknown(target))
		})
	}

	step("follow_up", func(ctx context.Context) error {
		return e.store.AddFollowUp(ctx, c.ID, e.now().Add(e.opts.FollowUpDelay))
	})

	if e.notifier != nil {
		step("notify", func(ctx context.Context) error {
			event := &models.CaseEvent{
				CaseID:     c.ID,
				TeamID:     c.TeamID,
				Title:      c.Title,
				Category:   c.Category,
				Priority:   c.Priority,
				Status:     c.Status,
				Sender:     msg.From.String(),
				References: res.References.Count(),
				IsBulk:     c.IsBulk,
				Items:      items,
				CreatedAt:  c.CreatedAt,
			}
			if partner != nil {
				event.PartnerName = partner.Name
			}
			return e.notifier.NotifyCaseCreated(ctx, event)
		})
	}
}

// assign gives the case to the least busy specialist of its category
func (e *Engine) assign(ctx context.Context, c *models.ClarificationCase) error {
	loads, err := e.store.SpecialistLoads(ctx, c.TeamID, c.Category)
	if err != nil {
		return err
	}
	if len(loads) == 0 {
		return nil
	}

	chosen := loads[0]
	if err := e.store.AssignCase(ctx, c.ID, chosen.SpecialistID); err != nil {
		return err
	}
	c.AssignedSpecialistID = &chosen.SpecialistID

	detail := fmt.Sprintf("auto-assigned to %s (%d open)", chosen.Name, chosen.OpenCases)
	return e.store.AddActivity(ctx, c.ID, models.ActivityAssigned, detail)
}

func title(msg *models.NormalizedMessage, res *models.ExtractionResult, items int) string {
	t := strings.TrimSpace(msg.Subject)
	if t == "" {
		t = strings.TrimSpace(res.Summary)
	}
	if t == "" {
		t = "Clarification from " + orUnknown(msg.From.Address)
	}
	if items > 0 {
		t = fmt.Sprintf("Bulk request (%d items): %s", items, t)
	}
	return clip(t, maxTitleLen)
}

func description(msg *models.NormalizedMessage, res *models.ExtractionResult) string {
	var sb strings.Builder
	if res.Summary != "" {
		sb.WriteString(res.Summary)
		sb.WriteString("\n\n")
	}
	if len(res.NextSteps) > 0 {
		sb.WriteString("Next steps:\n")
		for _, s := range res.NextSteps {
			sb.WriteString("- ")
			sb.WriteString(s)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "From: %s\n", msg.From.String())
	if !msg.Date.IsZero() {
		fmt.Fprintf(&sb, "Received: %s\n", msg.Date.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "Confidence: %.2f", res.Confidence)
	return sb.String()
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
