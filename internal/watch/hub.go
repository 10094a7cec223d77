// Package watch delivers changed-path batches for watched project
// directories over named channels.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ChannelKey derives the stable event channel name for a project path.
// Path separators, colons, dots, and spaces become underscores. Subscribers
// and the hub must agree on this rule or events are silently lost, so both
// sides call this one function.
func ChannelKey(projectPath string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.', ' ':
			return '_'
		default:
			return r
		}
	}, projectPath)
}

// channel is one named event stream with its listeners.
type channel struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	listeners map[chan []string]bool // value: a batch was dropped for this listener
}

// deliver fans a batch out to all listeners without ever blocking the
// watcher loop. A listener that could not keep up is owed an empty
// reload-everything batch before any further real batches.
func (c *channel) deliver(batch []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch, missed := range c.listeners {
		if missed {
			select {
			case ch <- []string{}:
				c.listeners[ch] = false
			default:
				continue // still backed up; sentinel stays owed
			}
		}
		select {
		case ch <- batch:
		default:
			c.listeners[ch] = true
		}
	}
}

// Hub owns one watcher per channel key and fans incoming batches out to
// listeners. Start and stop are idempotent.
type Hub struct {
	window time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	channels map[string]*channel
}

// NewHub creates a hub whose watchers coalesce events over the given window.
func NewHub(window time.Duration, logger *slog.Logger) *Hub {
	if window <= 0 {
		window = 200 * time.Millisecond
	}
	return &Hub{
		window:   window,
		logger:   logger,
		channels: make(map[string]*channel),
	}
}

// StartWatching begins watching projectPath, delivering batches on the
// channel named ChannelKey(projectPath). Calling it again for the same
// project is a no-op.
func (h *Hub) StartWatching(projectPath string) error {
	key := ChannelKey(projectPath)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.channels[key]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &channel{
		cancel:    cancel,
		done:      make(chan struct{}),
		listeners: make(map[chan []string]bool),
	}
	w := &watcher{
		root:   projectPath,
		window: h.window,
		emit:   c.deliver,
		logger: h.logger,
	}
	h.channels[key] = c

	go func() {
		defer close(c.done)
		if err := w.run(ctx); err != nil {
			h.logger.Error("watcher: run failed",
				slog.String("root", projectPath),
				slog.String("error", err.Error()))
		}
	}()

	return nil
}

// StopWatching tears down the watcher for a channel key and closes all of
// its listener channels. Stopping an unknown channel is a no-op.
func (h *Hub) StopWatching(key string) {
	h.mu.Lock()
	c, ok := h.channels[key]
	if ok {
		delete(h.channels, key)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	c.cancel()
	<-c.done

	c.mu.Lock()
	for ch := range c.listeners {
		close(ch)
	}
	c.listeners = make(map[chan []string]bool)
	c.mu.Unlock()
}

// Listen attaches a new listener to a channel key. The channel must already
// be watched.
func (h *Hub) Listen(key string) (chan []string, error) {
	h.mu.Lock()
	c, ok := h.channels[key]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("watch: no such channel: %s", key)
	}

	ch := make(chan []string, 16)
	c.mu.Lock()
	c.listeners[ch] = false
	c.mu.Unlock()
	return ch, nil
}

// Unlisten detaches a listener. Safe to call after StopWatching.
func (h *Hub) Unlisten(key string, ch chan []string) {
	h.mu.Lock()
	c, ok := h.channels[key]
	h.mu.Unlock()
	if !ok {
		return
	}

	c.mu.Lock()
	if _, attached := c.listeners[ch]; attached {
		delete(c.listeners, ch)
		close(ch)
	}
	c.mu.Unlock()
}

// Close stops every active watcher.
func (h *Hub) Close() {
	h.mu.Lock()
	keys := make([]string, 0, len(h.channels))
	for k := range h.channels {
		keys = append(keys, k)
	}
	h.mu.Unlock()
	for _, k := range keys {
		h.StopWatching(k)
	}
}
