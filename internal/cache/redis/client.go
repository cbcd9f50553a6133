package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wattwise/backend/internal/storage/models"
	"github.com/wattwise/backend/pkg/logger"
	"github.com/wattwise/backend/pkg/utils"
)

// Client caches per-user baseline sets. All methods tolerate a nil receiver
// so the service can run without Redis.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func baselineKey(userID string) string {
	return fmt.Sprintf("baselines:%s", utils.HashString(userID))
}

func (c *Client) SetBaselines(ctx context.Context, userID string, baselines []models.BaselineStats) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(baselines)
	if err != nil {
		return fmt.Errorf("failed to marshal baselines: %w", err)
	}

	err = c.client.Set(ctx, baselineKey(userID), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set baseline cache: %w", err)
	}

	logger.Debug("Baselines cached", zap.String("user_id", userID), zap.Int("count", len(baselines)))
	return nil
}

func (c *Client) GetBaselines(ctx context.Context, userID string) ([]models.BaselineStats, bool, error) {
	if c == nil {
		return nil, false, nil
	}

	data, err := c.client.Get(ctx, baselineKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get baseline cache: %w", err)
	}

	var baselines []models.BaselineStats
	err = json.Unmarshal(data, &baselines)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal baselines: %w", err)
	}

	logger.Debug("Baseline cache hit", zap.String("user_id", userID))
	return baselines, true, nil
}

// InvalidateBaselines drops the cached baseline set after a recompute or a
// threshold adjustment.
func (c *Client) InvalidateBaselines(ctx context.Context, userID string) error {
	if c == nil {
		return nil
	}

	err := c.client.Del(ctx, baselineKey(userID)).Err()
	if err != nil {
		return fmt.Errorf("failed to invalidate baseline cache: %w", err)
	}

	logger.Debug("Baseline cache invalidated", zap.String("user_id", userID))
	return nil
}
