package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/boothlabs/boothflow/internal/models"
	backend "github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix is the Redis pub/sub channel prefix for session updates.
const DefaultChannelPrefix = "boothflow:session:"

// RedisBus implements Bus over Redis pub/sub so that the worker process and
// any number of engine instances observe the same session documents.
type RedisBus struct {
	client *backend.Client
	prefix string
}

var _ Bus = (*RedisBus)(nil)

// Option defines a configuration option for the Redis bus.
type Option func(*RedisBus)

// WithChannelPrefix overrides the pub/sub channel prefix.
func WithChannelPrefix(prefix string) Option {
	return func(b *RedisBus) {
		b.prefix = prefix
	}
}

// NewRedisBus creates a bus connected to the given Redis address.
func NewRedisBus(address, password string, db int, opts ...Option) *RedisBus {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisBusFromClient(rdb, opts...)
}

// NewRedisBusFromClient creates a bus from an existing client.
func NewRedisBusFromClient(client *backend.Client, opts ...Option) *RedisBus {
	bus := &RedisBus{
		client: client,
		prefix: DefaultChannelPrefix,
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

func (b *RedisBus) channel(sessionID string) string {
	return b.prefix + sessionID
}

// Publish broadcasts the full session document to the session's channel.
func (b *RedisBus) Publish(ctx context.Context, session *models.EngineSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session for publish: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(session.ID), payload).Err(); err != nil {
		slog.Error("RedisBus.Publish failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to publish session update: %w", err)
	}
	slog.Debug("RedisBus.Publish succeeded", "sessionID", session.ID)
	return nil
}

// Subscribe opens a Redis subscription for the session's channel and invokes
// the handler with every delivered document until unsubscribed.
func (b *RedisBus) Subscribe(ctx context.Context, sessionID string, handler Handler) (func(), error) {
	pubsub := b.client.Subscribe(ctx, b.channel(sessionID))

	// Force the subscription to be established before returning so callers
	// never miss an update published immediately after Subscribe.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to open redis subscription: %w", err)
	}

	ch := pubsub.Channel()
	go func() {
		for msg := range ch {
			var session models.EngineSession
			if err := json.Unmarshal([]byte(msg.Payload), &session); err != nil {
				slog.Warn("RedisBus.Subscribe: dropping malformed session payload", "error", err, "sessionID", sessionID)
				continue
			}
			handler(&session)
		}
		slog.Debug("RedisBus.Subscribe: delivery loop ended", "sessionID", sessionID)
	}()

	unsubscribe := func() {
		if err := pubsub.Close(); err != nil {
			slog.Debug("RedisBus unsubscribe close error", "error", err, "sessionID", sessionID)
		}
	}
	slog.Debug("RedisBus.Subscribe opened", "sessionID", sessionID)
	return unsubscribe, nil
}

// Close closes the underlying Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
