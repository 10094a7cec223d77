package cache

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/veddartha/cairn/internal/watch"
)

// subscription is one live routing of watcher batches into the engine.
type subscription struct {
	key  string
	ch   chan []string
	done chan struct{}
}

// SubscriptionManager owns the lifecycle of one active watch subscription
// per project path: open on mount, route batches into the engine, tear down
// on project switch or shutdown.
type SubscriptionManager struct {
	hub    *watch.Hub
	engine *Engine
	logger *slog.Logger

	mu     sync.Mutex
	active *subscription
}

// NewSubscriptionManager creates a manager routing hub batches into engine.
func NewSubscriptionManager(hub *watch.Hub, engine *Engine, logger *slog.Logger) *SubscriptionManager {
	return &SubscriptionManager{hub: hub, engine: engine, logger: logger}
}

// Subscribe starts watching projectPath and routes its change batches to
// the engine, returning an unsubscribe function. Any previous subscription
// is fully torn down first, so events from the old project can never leak
// into the new one. Teardown failures are logged, never propagated.
//
// The path is resolved to its absolute form before watching: event paths
// mirror the watched root, and the cache and backend key everything by
// absolute path, so a relative root would make every batch path foreign.
func (m *SubscriptionManager) Subscribe(projectPath string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()

	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("cache: resolve project path %s: %w", projectPath, err)
	}

	key := watch.ChannelKey(abs)
	if err := m.hub.StartWatching(abs); err != nil {
		return nil, fmt.Errorf("cache: start watching %s: %w", abs, err)
	}
	ch, err := m.hub.Listen(key)
	if err != nil {
		m.hub.StopWatching(key)
		return nil, fmt.Errorf("cache: listen %s: %w", key, err)
	}

	sub := &subscription{key: key, ch: ch, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for batch := range ch {
			m.engine.EnqueueBatch(batch)
		}
	}()
	m.active = sub

	m.logger.Info("cache: subscribed", slog.String("channel", key))

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.active == sub {
			m.teardownLocked()
		}
	}, nil
}

// Close tears down the active subscription, if any.
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

func (m *SubscriptionManager) teardownLocked() {
	sub := m.active
	if sub == nil {
		return
	}
	m.active = nil

	m.hub.Unlisten(sub.key, sub.ch)
	m.hub.StopWatching(sub.key)
	<-sub.done
	m.logger.Info("cache: unsubscribed", slog.String("channel", sub.key))
}
