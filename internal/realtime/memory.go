package realtime

import (
	"context"
	"sync"

	"github.com/boothlabs/boothflow/internal/models"
)

// MemoryBus is an in-process Bus used by editor previews and tests.
type MemoryBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
	closed   bool
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string]map[int]Handler)}
}

// Publish delivers the session document synchronously to all subscribers.
func (b *MemoryBus) Publish(ctx context.Context, session *models.EngineSession) error {
	b.mu.RLock()
	subs := make([]Handler, 0, len(b.handlers[session.ID]))
	for _, h := range b.handlers[session.ID] {
		subs = append(subs, h)
	}
	b.mu.RUnlock()

	for _, h := range subs {
		h(session.Clone())
	}
	return nil
}

// Subscribe registers a handler for updates to the given session id.
func (b *MemoryBus) Subscribe(ctx context.Context, sessionID string, handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.handlers[sessionID] == nil {
		b.handlers[sessionID] = make(map[int]Handler)
	}
	b.handlers[sessionID][id] = handler

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[sessionID], id)
		if len(b.handlers[sessionID]) == 0 {
			delete(b.handlers, sessionID)
		}
	}
	return unsubscribe, nil
}

// Close drops all subscriptions.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string]map[int]Handler)
	b.closed = true
	return nil
}
