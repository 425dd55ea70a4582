package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mixelka/clarify/pkg/models"
)

// RedisPublisher pushes case events onto a Redis list for downstream consumers
type RedisPublisher struct {
	rdb    *redis.Client
	key    string
	logger *slog.Logger
}

// envelope is the JSON document pushed to the list
type envelope struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	PublishedAt time.Time         `json:"published_at"`
	Case        *models.CaseEvent `json:"case"`
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(rdb *redis.Client, key string, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{
		rdb:    rdb,
		key:    key,
		logger: logger.With("component", "redis_publisher"),
	}
}

// NewRedisClient connects to the Redis URL
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return redis.NewClient(opt), nil
}

// NotifyCaseCreated publishes the event with LPUSH
func (p *RedisPublisher) NotifyCaseCreated(ctx context.Context, event *models.CaseEvent) error {
	data, err := encodeEvent(event, time.Now())
	if err != nil {
		return err
	}

	if err := p.rdb.LPush(ctx, p.key, data).Err(); err != nil {
		return fmt.Errorf("failed to publish case event: %w", err)
	}

	p.logger.Debug("published case event", "case_id", event.CaseID, "key", p.key)
	return nil
}

// Ping checks the Redis connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}

func encodeEvent(event *models.CaseEvent, now time.Time) (string, error) {
	data, err := json.Marshal(envelope{
		ID:          uuid.New().String(),
		Type:        "case.created",
		PublishedAt: now.UTC(),
		Case:        event,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode case event: %w", err)
	}
	return string(data), nil
}
