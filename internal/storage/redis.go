package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chainsage-alerts/internal/config"
	"github.com/chainsage-alerts/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when no assessment is cached for a wallet
var ErrCacheMiss = errors.New("no cached assessment")

// DefaultCacheTTL is used when the configured TTL is not positive
const DefaultCacheTTL = 24 * time.Hour

// AlertCache keeps the latest assessment per wallet in Redis
type AlertCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAlertCache connects to Redis and verifies the connection
func NewAlertCache(cfg config.RedisConfig) (*AlertCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewAlertCacheWithClient(client, cfg.TTL), nil
}

// NewAlertCacheWithClient wraps an existing client
func NewAlertCacheWithClient(client *redis.Client, ttl time.Duration) *AlertCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &AlertCache{client: client, ttl: ttl}
}

// LatestKey returns the cache key for a wallet
func LatestKey(wallet string) string {
	return "chainsage:latest:" + strings.ToLower(wallet)
}

// SetLatest stores assessment as the wallet's latest
func (c *AlertCache) SetLatest(ctx context.Context, assessment *models.Assessment) error {
	if assessment == nil {
		return fmt.Errorf("assessment is nil")
	}
	payload, err := json.Marshal(assessment)
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}
	if err := c.client.Set(ctx, LatestKey(assessment.WalletAddress), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache assessment: %w", err)
	}
	return nil
}

// GetLatest returns the wallet's latest cached assessment or ErrCacheMiss
func (c *AlertCache) GetLatest(ctx context.Context, wallet string) (*models.Assessment, error) {
	payload, err := c.client.Get(ctx, LatestKey(wallet)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached assessment: %w", err)
	}

	var assessment models.Assessment
	if err := json.Unmarshal(payload, &assessment); err != nil {
		return nil, fmt.Errorf("failed to decode cached assessment: %w", err)
	}
	return &assessment, nil
}

// Ping checks if Redis is reachable
func (c *AlertCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *AlertCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
