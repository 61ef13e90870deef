// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package event

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
)

// subscription is one registered callback for an event type or pattern.
type subscription struct {
	id      string
	pattern string
	matcher glob.Glob // non-nil only for wildcard patterns
	fn      Callback
}

// asyncItem is one queued PublishAsync call.
type asyncItem struct {
	eventType string
	payload   any
	onOwner   bool
}

// PublishOption modifies delivery of a single publish call.
type PublishOption func(*publishConfig)

type publishConfig struct {
	onOwner bool
}

// OnOwner defers each callback to the bus's owner goroutine instead of
// running it on the publishing goroutine. Callbacks scheduled this way run
// FIFO per publish call but interleave with other owner work. If no owner
// loop is serving, delivery falls back to inline.
func OnOwner() PublishOption {
	return func(c *publishConfig) { c.onOwner = true }
}

// Bus is a thread-safe publish/subscribe event bus with synchronous,
// deferred-to-owner, and asynchronous delivery modes.
//
// Synchronous publishes deliver to a point-in-time snapshot of the
// subscriber list, so callbacks may freely subscribe, unsubscribe, or
// publish without deadlocking. Asynchronous publishes preserve FIFO order
// relative to each other but not relative to synchronous ones.
type Bus struct {
	mu        sync.RWMutex
	exact     map[string][]subscription
	wildcards []subscription
	closed    bool

	asyncQ  *fifo[asyncItem]
	ownerQ  *fifo[func()]
	serving bool

	workerDone chan struct{}
	logger     *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for callback failure reports.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// NewBus creates a bus and starts its async delivery worker.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		exact:      make(map[string][]subscription),
		asyncQ:     newFIFO[asyncItem](),
		ownerQ:     newFIFO[func()](),
		workerDone: make(chan struct{}),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.asyncWorker()

	return b
}

// Subscribe registers a callback for an event type. The pattern may contain
// glob wildcards ("plugin.*"). Returns the subscriber ID used to cancel.
func (b *Bus) Subscribe(pattern string, fn Callback) string {
	id := ulid.Make().String()

	sub := subscription{id: id, pattern: pattern, fn: fn}
	if strings.ContainsAny(pattern, "*?[") {
		m, err := glob.Compile(pattern, '.')
		if err != nil {
			// Treat an uncompilable pattern as a literal event type.
			b.logger.Warn("invalid subscription pattern, matching literally",
				"pattern", pattern,
				"error", err)
		} else {
			sub.matcher = m
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return id
	}
	if sub.matcher != nil {
		b.wildcards = append(b.wildcards, sub)
	} else {
		b.exact[pattern] = append(b.exact[pattern], sub)
	}

	b.logger.Debug("subscribed", "pattern", pattern, "subscriber_id", id)
	return id
}

// Unsubscribe removes a subscription. Returns false if no subscription
// with that pattern and ID exists.
func (b *Bus) Unsubscribe(pattern, subscriberID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.exact[pattern]; ok {
		for i, sub := range subs {
			if sub.id == subscriberID {
				b.exact[pattern] = append(subs[:i:i], subs[i+1:]...)
				if len(b.exact[pattern]) == 0 {
					delete(b.exact, pattern)
				}
				return true
			}
		}
	}
	for i, sub := range b.wildcards {
		if sub.pattern == pattern && sub.id == subscriberID {
			b.wildcards = append(b.wildcards[:i:i], b.wildcards[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns the subscriptions matching eventType: exact matches in
// subscription order first, then wildcard matches in subscription order.
func (b *Bus) snapshot(eventType string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	var subs []subscription
	subs = append(subs, b.exact[eventType]...)
	for _, sub := range b.wildcards {
		if sub.matcher.Match(eventType) {
			subs = append(subs, sub)
		}
	}
	return subs
}

// Publish delivers an event synchronously to a snapshot of the current
// subscribers. The lock is released before callbacks run, so a callback
// that subscribes, unsubscribes, or publishes cannot deadlock; subscribers
// added during delivery do not receive this event. After Shutdown,
// Publish is a no-op.
func (b *Bus) Publish(eventType string, payload any, opts ...PublishOption) {
	var cfg publishConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	subs := b.snapshot(eventType)
	if len(subs) == 0 {
		return
	}

	deferToOwner := cfg.onOwner && b.ownerServing()

	for _, sub := range subs {
		if deferToOwner {
			sub := sub
			if !b.ownerQ.push(func() { b.invoke(eventType, sub, payload) }) {
				// Owner queue closed during shutdown, run inline.
				b.invoke(eventType, sub, payload)
			}
			continue
		}
		b.invoke(eventType, sub, payload)
	}
}

// PublishAsync enqueues an event for FIFO delivery by the bus's background
// worker. Delivery order is preserved relative to other async publishes
// but not relative to synchronous ones. After Shutdown, a no-op.
func (b *Bus) PublishAsync(eventType string, payload any, opts ...PublishOption) {
	var cfg publishConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	b.asyncQ.push(asyncItem{eventType: eventType, payload: payload, onOwner: cfg.onOwner})
}

// Flush blocks until every async event enqueued before the call has been
// delivered. Used before shutdown to avoid losing in-flight events.
func (b *Bus) Flush() {
	b.asyncQ.drained()
}

// ServeOwner claims the calling goroutine as the bus's owner and runs
// deferred callbacks until ctx is canceled or the bus shuts down.
// Intended to be run by the host's main goroutine.
func (b *Bus) ServeOwner(ctx context.Context) {
	b.mu.Lock()
	if b.serving || b.closed {
		b.mu.Unlock()
		return
	}
	b.serving = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.serving = false
		b.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { b.ownerQ.close() })
	defer stop()

	for {
		fn, ok := b.ownerQ.pop()
		if !ok {
			return
		}
		fn()
		b.ownerQ.done()
	}
}

func (b *Bus) ownerServing() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.serving
}

// Shutdown stops accepting async work, waits up to timeout for the
// background worker to exit, and clears all subscriptions. Publish and
// PublishAsync become no-ops afterward.
func (b *Bus) Shutdown(timeout time.Duration) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.asyncQ.close()
	b.ownerQ.close()

	select {
	case <-b.workerDone:
	case <-time.After(timeout):
		b.logger.Warn("async event worker did not exit in time", "timeout", timeout)
	}

	b.mu.Lock()
	b.exact = make(map[string][]subscription)
	b.wildcards = nil
	b.mu.Unlock()
}

// asyncWorker drains the async queue in FIFO order, delivering each item
// through the synchronous path.
func (b *Bus) asyncWorker() {
	defer close(b.workerDone)
	for {
		item, ok := b.asyncQ.pop()
		if !ok {
			return
		}
		if item.onOwner {
			b.Publish(item.eventType, item.payload, OnOwner())
		} else {
			b.Publish(item.eventType, item.payload)
		}
		b.asyncQ.done()
	}
}

// invoke runs one callback, converting a panic into a logged error so one
// bad subscriber cannot prevent the rest from being called.
func (b *Bus) invoke(eventType string, sub subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event callback panicked",
				"event_type", eventType,
				"subscriber_id", sub.id,
				"panic", r)
		}
	}()
	sub.fn(payload)
}
