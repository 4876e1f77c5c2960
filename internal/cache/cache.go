/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for event configuration
// and live snapshots.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for different cache types
const (
	DefaultEventTTL    = 10 * time.Minute
	DefaultSnapshotTTL = 45 * time.Second
)

// Key prefixes for Redis cache
const (
	KeyEvent    = "showrunner:cache:event:"    // + event_id
	KeySnapshot = "showrunner:cache:snapshot:" // + event_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EventTTL    time.Duration
	SnapshotTTL time.Duration

	// DisableOnError turns the cache off after the first Redis error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		EventTTL:       DefaultEventTTL,
		SnapshotTTL:    DefaultSnapshotTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. A nil *Cache
// is valid and always misses.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a new cache instance. An unreachable Redis yields a disabled
// cache, not an error.
func New(cfg Config, logger zerolog.Logger) *Cache {
	logger = logger.With().Str("component", "cache").Logger()
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = DefaultEventTTL
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = DefaultSnapshotTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) bool {
	if !c.IsAvailable() {
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		c.handleError(err, "get")
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false
	}
	return true
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

func (c *Cache) delete(ctx context.Context, keys ...string) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}

// GetEvent returns a cached event configuration.
func (c *Cache) GetEvent(ctx context.Context, eventID string) (*models.Event, bool) {
	var ev models.Event
	if !c.get(ctx, KeyEvent+eventID, &ev) {
		return nil, false
	}
	return &ev, true
}

// SetEvent caches an event configuration.
func (c *Cache) SetEvent(ctx context.Context, ev *models.Event) error {
	if c == nil {
		return nil
	}
	return c.set(ctx, KeyEvent+ev.ID, ev, c.config.EventTTL)
}

// GetSnapshot decodes the cached live snapshot of an event into dest.
func (c *Cache) GetSnapshot(ctx context.Context, eventID string, dest any) bool {
	return c.get(ctx, KeySnapshot+eventID, dest)
}

// SetSnapshot caches the live snapshot of an event.
func (c *Cache) SetSnapshot(ctx context.Context, eventID string, snapshot any) error {
	if c == nil {
		return nil
	}
	return c.set(ctx, KeySnapshot+eventID, snapshot, c.config.SnapshotTTL)
}

// InvalidateEvent removes every cached entry of an event.
func (c *Cache) InvalidateEvent(ctx context.Context, eventID string) error {
	return c.delete(ctx, KeyEvent+eventID, KeySnapshot+eventID)
}

// Watch drops cached entries whenever another component reports a change.
// It returns when ctx is cancelled.
func (c *Cache) Watch(ctx context.Context, bus events.Broker) {
	types := []events.EventType{
		events.EventConfigUpdated,
		events.EventScheduleRecalculated,
		events.EventProgramStarted,
		events.EventProgramCompleted,
		events.EventProgramPostponed,
		events.EventProgramCreated,
		events.EventProgramUpdated,
		events.EventProgramDeleted,
	}

	merged := make(chan events.Payload, 32)
	var wg sync.WaitGroup
	for _, t := range types {
		sub := bus.Subscribe(t)
		wg.Add(1)
		go func(t events.EventType, sub events.Subscriber) {
			defer wg.Done()
			defer bus.Unsubscribe(t, sub)
			for {
				select {
				case <-ctx.Done():
					return
				case p, ok := <-sub:
					if !ok {
						return
					}
					select {
					case merged <- p:
					case <-ctx.Done():
						return
					}
				}
			}
		}(t, sub)
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case p := <-merged:
			if id := p.String("event_id"); id != "" {
				if err := c.InvalidateEvent(ctx, id); err != nil {
					c.logger.Debug().Err(err).Str("event_id", id).Msg("cache invalidation failed")
				}
			}
		}
	}
}
