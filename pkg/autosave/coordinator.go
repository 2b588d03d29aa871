// Package autosave debounces partial step payload writes so rapid edits
// coalesce into one persistence call per step key.
package autosave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is how long a step key stays quiet before its pending
// payload is written.
const DefaultInterval = time.Second

// WriteFunc persists the coalesced payload for a step key; typically
// engine.Session.UpdateStepData.
type WriteFunc func(ctx context.Context, stepKey string, payload json.RawMessage) error

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval overrides the debounce interval.
func WithInterval(interval time.Duration) Option {
	return func(c *Coordinator) {
		c.interval = interval
	}
}

// Coordinator holds at most one armed timer per step key. Each Schedule
// call replaces the key's pending payload and rearms its timer, so only
// the latest payload in a burst of edits is written. A payload identical
// to the key's last successful write is dropped instead of written.
type Coordinator struct {
	logger   *slog.Logger
	write    WriteFunc
	interval time.Duration

	mu          sync.Mutex
	timers      map[string]*time.Timer
	pending     map[string]json.RawMessage
	lastWritten map[string]json.RawMessage
	closed      bool

	errs chan error
	wg   sync.WaitGroup
}

// NewCoordinator creates a coordinator flushing through write.
func NewCoordinator(logger *slog.Logger, write WriteFunc, opts ...Option) *Coordinator {
	coordinator := &Coordinator{
		logger:      logger.With("module", "autosave"),
		write:       write,
		interval:    DefaultInterval,
		timers:      map[string]*time.Timer{},
		pending:     map[string]json.RawMessage{},
		lastWritten: map[string]json.RawMessage{},
		errs:        make(chan error, 16),
	}

	for _, opt := range opts {
		opt(coordinator)
	}

	return coordinator
}

// Schedule records payload as the pending write for stepKey and arms (or
// rearms) the key's debounce timer. Calling Schedule after Close is a
// silent no-op.
func (c *Coordinator) Schedule(stepKey string, payload json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.pending[stepKey] = payload

	// Rearm by replacing the timer: a stopped-in-time timer releases its
	// waitgroup slot here, one that already fired releases it in its own
	// callback.
	if previous, ok := c.timers[stepKey]; ok {
		if previous.Stop() {
			c.wg.Done()
		}
	}

	c.wg.Add(1)

	var timer *time.Timer

	timer = time.AfterFunc(c.interval, func() {
		defer c.wg.Done()

		c.mu.Lock()
		if c.timers[stepKey] == timer {
			delete(c.timers, stepKey)
		}
		c.mu.Unlock()

		c.fire(stepKey)
	})

	c.timers[stepKey] = timer
}

// Errors delivers write failures. The channel is buffered and sends are
// non-blocking; an unread backlog drops further errors rather than
// stalling timers.
func (c *Coordinator) Errors() <-chan error {
	return c.errs
}

// Flush synchronously writes every pending payload, cancelling armed
// timers. It returns the first write failure.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()

	keys := make([]string, 0, len(c.pending))
	for key, timer := range c.timers {
		if timer.Stop() {
			c.wg.Done()
		}

		delete(c.timers, key)
	}

	for key := range c.pending {
		keys = append(keys, key)
	}

	c.mu.Unlock()

	var firstErr error

	for _, key := range keys {
		if err := c.flushKey(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Close flushes pending writes, stops all timers and closes the error
// channel. The coordinator accepts no schedules afterwards.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return nil
	}

	c.closed = true
	c.mu.Unlock()

	err := c.Flush(ctx)

	c.wg.Wait()
	close(c.errs)

	return err
}

// fire runs on timer expiry.
func (c *Coordinator) fire(stepKey string) {
	if err := c.flushKey(context.Background(), stepKey); err != nil {
		c.logger.Warn("autosave write failed", "step_key", stepKey, "error", err)

		select {
		case c.errs <- err:
		default:
		}
	}
}

// flushKey writes the key's pending payload unless it matches the last
// successful write. On failure the payload stays pending so the next edit
// (or flush) retries it.
func (c *Coordinator) flushKey(ctx context.Context, stepKey string) error {
	c.mu.Lock()

	payload, ok := c.pending[stepKey]
	if !ok {
		c.mu.Unlock()

		return nil
	}

	if bytes.Equal(payload, c.lastWritten[stepKey]) {
		delete(c.pending, stepKey)
		c.mu.Unlock()

		return nil
	}

	c.mu.Unlock()

	if err := c.write(ctx, stepKey, payload); err != nil {
		return fmt.Errorf("failed to autosave step %q: %w", stepKey, err)
	}

	c.mu.Lock()
	c.lastWritten[stepKey] = payload
	// A newer edit may have arrived while the write ran; only clear the
	// pending slot if it still holds what we just wrote.
	if current, stillPending := c.pending[stepKey]; stillPending && bytes.Equal(current, payload) {
		delete(c.pending, stepKey)
	}
	c.mu.Unlock()

	return nil
}
