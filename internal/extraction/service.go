// Package extraction turns a normalized message into a structured
// extraction result using the language model, with a per-team result cache.
package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mixelka/clarify/internal/database"
	"github.com/mixelka/clarify/internal/llm"
	"github.com/mixelka/clarify/internal/parser"
	"github.com/mixelka/clarify/pkg/models"
)

// Model generates text for a prompt
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Cache stores extraction results by content hash and team
type Cache interface {
	GetCacheEntry(ctx context.Context, hash string, teamID int64) (*models.CacheEntry, error)
	PutCacheEntry(ctx context.Context, entry *models.CacheEntry) error
	DeleteExpiredCache(ctx context.Context, before time.Time) (int64, error)
}

// TeamDirectory provides the team context for the prompt
type TeamDirectory interface {
	TeamContext(ctx context.Context, teamID int64) (*models.TeamContext, error)
}

// Service extracts structured data from email
type Service struct {
	model    Model
	cache    Cache
	teams    TeamDirectory
	detector *parser.ReferenceDetector
	ttl      time.Duration
	maxBody  int
	logger   *slog.Logger

	now func() time.Time
}

// NewService creates a new extraction service
func NewService(model Model, cache Cache, teams TeamDirectory, ttl time.Duration, maxBody int, logger *slog.Logger) *Service {
	return &Service{
		model:    model,
		cache:    cache,
		teams:    teams,
		detector: parser.NewReferenceDetector(),
		ttl:      ttl,
		maxBody:  maxBody,
		logger:   logger.With("component", "extraction"),
		now:      time.Now,
	}
}

// ExtractDataFromEmail returns the extraction result for msg.
// Quota exhaustion and timeouts are returned as errors so the caller can retry later;
// other model failures yield a low-confidence fallback.
func (s *Service) ExtractDataFromEmail(ctx context.Context, msg *models.NormalizedMessage, teamID int64) (*models.ExtractionResult, error) {
	hash := ContentHash(msg)
	logger := s.logger.With("team_id", teamID, "uid", msg.UID)

	if res, ok := s.cached(ctx, hash, teamID); ok {
		logger.Debug("extraction cache hit", "hash", hash[:12])
		return res, nil
	}

	team, err := s.teams.TeamContext(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load team context: %w", err)
	}

	hints := s.detector.DetectReferences(msg.Subject + "\n" + msg.Body)
	prompt := buildPrompt(msg, team, hints, s.maxBody)

	raw, err := s.model.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, llm.ErrQuotaExceeded) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, err
		}
		logger.Error("model call failed, using fallback", "error", err)
		return fallback(msg, hints), nil
	}

	res, err := parseResult(raw)
	if err != nil {
		logger.Warn("unusable model response, using fallback", "error", err)
		res = fallback(msg, hints)
	}

	s.store(ctx, hash, teamID, res)

	logger.Info("extracted",
		"category", res.Classification.Category,
		"confidence", res.Confidence,
		"references", res.References.Count(),
	)
	return res, nil
}

func (s *Service) cached(ctx context.Context, hash string, teamID int64) (*models.ExtractionResult, bool) {
	entry, err := s.cache.GetCacheEntry(ctx, hash, teamID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.logger.Warn("failed to read extraction cache", "error", err)
		}
		return nil, false
	}
	if entry.Expired(s.now().UTC(), s.ttl) {
		return nil, false
	}

	var res models.ExtractionResult
	if err := json.Unmarshal([]byte(entry.ResultJSON), &res); err != nil {
		s.logger.Warn("corrupt extraction cache entry", "hash", hash, "error", err)
		return nil, false
	}
	res.FromCache = true
	return &res, true
}

func (s *Service) store(ctx context.Context, hash string, teamID int64, res *models.ExtractionResult) {
	data, err := json.Marshal(res)
	if err != nil {
		s.logger.Error("failed to encode extraction result", "error", err)
		return
	}

	entry := &models.CacheEntry{
		ContentHash: hash,
		TeamID:      teamID,
		ResultJSON:  string(data),
		Confidence:  res.Confidence,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.cache.PutCacheEntry(ctx, entry); err != nil {
		s.logger.Warn("failed to store extraction result", "error", err)
	}
}

// SuggestReply drafts a response to the message that opened the case
func (s *Service) SuggestReply(ctx context.Context, c *models.ClarificationCase, msg *models.NormalizedMessage, summary string) (string, error) {
	out, err := s.model.Generate(ctx, buildReplyPrompt(c, msg, summary, s.maxBody))
	if err != nil {
		return "", fmt.Errorf("failed to draft reply: %w", err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("empty draft reply")
	}
	return out, nil
}

// CleanupExpired removes cache entries older than the TTL
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.cache.DeleteExpiredCache(ctx, s.now().UTC().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to clean extraction cache: %w", err)
	}
	if n > 0 {
		s.logger.Info("removed expired extraction results", "count", n)
	}
	return n, nil
}

// ContentHash identifies a message by the content the prompt is built from
func ContentHash(msg *models.NormalizedMessage) string {
	h := sha256.New()
	for _, part := range []string{promptVersion, msg.Subject, strings.ToLower(msg.From.Address), msg.Body} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
