// Package eventsink forwards bridge events to external consumers.
package eventsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/bridge"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

// Publisher is the part of *redis.Client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisConfig holds Redis connection and publishing configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (redis://host:port/db)
	URL string

	// Password for Redis authentication
	Password string

	// DB is the database number
	DB int

	// ChannelPrefix namespaces channels as <prefix>:<run_id> (default: "crew:events")
	ChannelPrefix string

	// Buffer bounds queued events; further events are dropped (default: 1024)
	Buffer int

	// PublishTimeout bounds each PUBLISH call
	PublishTimeout time.Duration

	// Timeouts
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		URL:            "redis://localhost:6379/0",
		ChannelPrefix:  "crew:events",
		Buffer:         1024,
		PublishTimeout: 2 * time.Second,
		DialTimeout:    5 * time.Second,
		WriteTimeout:   3 * time.Second,
	}
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg *RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}

	opts := &redis.Options{
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Password:     cfg.Password,
		DB:           cfg.DB,
	}

	// Parse URL if provided
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.Addr = parsed.Addr
		if parsed.Password != "" && cfg.Password == "" {
			opts.Password = parsed.Password
		}
		if parsed.DB != 0 && cfg.DB == 0 {
			opts.DB = parsed.DB
		}
	}

	client := redis.NewClient(opts)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisPublisher publishes every event as JSON on <prefix>:<run_id>.
// Publish only enqueues; a background goroutine talks to Redis. When the
// queue is full the event is dropped and counted.
type RedisPublisher struct {
	pub     Publisher
	prefix  string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan types.Event
	done   chan struct{}
}

// NewRedisPublisher starts a publisher over pub.
func NewRedisPublisher(pub Publisher, cfg *RedisConfig, logger *slog.Logger) *RedisPublisher {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = "crew:events"
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	p := &RedisPublisher{
		pub:     pub,
		prefix:  prefix,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan types.Event, buffer),
		done:    make(chan struct{}),
	}
	go p.loop()
	return p
}

// Channel returns the Redis channel for a run.
func (p *RedisPublisher) Channel(runID string) string {
	return p.prefix + ":" + runID
}

// Publish enqueues e without blocking.
func (p *RedisPublisher) Publish(e types.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		metrics.EventsDropped.WithLabelValues("sink_closed").Inc()
		return
	}
	select {
	case p.queue <- e:
	default:
		metrics.EventsDropped.WithLabelValues("sink_full").Inc()
	}
}

// Close stops accepting events and waits for queued ones to be published or
// for ctx to expire.
func (p *RedisPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *RedisPublisher) loop() {
	defer close(p.done)

	for e := range p.queue {
		data, err := json.Marshal(e)
		if err != nil {
			p.logger.Warn("failed to marshal event", "run_id", e.RunID, "error", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err = p.pub.Publish(ctx, p.Channel(e.RunID), data).Err()
		cancel()
		if err != nil {
			metrics.EventsDropped.WithLabelValues("publish_error").Inc()
			p.logger.Warn("failed to publish event to redis",
				"run_id", e.RunID,
				"event_type", string(e.Type),
				"error", err,
			)
		}
	}
}

// Verify interface compliance
var _ bridge.Sink = (*RedisPublisher)(nil)
