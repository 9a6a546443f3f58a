// Package bridge buffers the event log of a single run and fans it out to any
// number of concurrent stream consumers.
//
// A Bridge is append-only. Consumers never remove events; each one keeps its
// own cursor into the log, so late joiners replay history from index 0 and
// then continue with live events without gaps or duplicates. All consumers
// observe the same total order: the order of Push calls.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

// DefaultPollInterval bounds how long a waiting consumer sleeps before it
// re-checks the log, even without a wake-up.
const DefaultPollInterval = time.Second

// Sink receives every appended event, in log order. Publish is called with
// the bridge lock held and must not block.
type Sink interface {
	Publish(e types.Event)
}

// Config holds optional Bridge settings.
type Config struct {
	// PollInterval is the bounded wait between re-checks (default 1s).
	PollInterval time.Duration

	// Sinks are notified after each successful append.
	Sinks []Sink

	// Logger for dropped-event warnings.
	Logger *slog.Logger
}

// Bridge is the per-run event log plus its wake-all notification.
type Bridge struct {
	runID string

	mu       sync.Mutex
	events   []types.Event
	complete bool
	// notify is closed and replaced on every append and on completion,
	// waking every consumer blocked on the previous channel.
	notify chan struct{}

	pollInterval time.Duration
	sinks        []Sink
	logger       *slog.Logger
	now          func() time.Time
}

// New creates an empty, open bridge for runID.
func New(runID string, cfg *Config) *Bridge {
	if cfg == nil {
		cfg = &Config{}
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		runID:        runID,
		events:       make([]types.Event, 0, 32),
		notify:       make(chan struct{}),
		pollInterval: poll,
		sinks:        cfg.Sinks,
		logger:       logger,
		now:          time.Now,
	}
}

// RunID returns the run this bridge belongs to.
func (b *Bridge) RunID() string {
	return b.runID
}

// Push appends e to the log, stamping timestamp and run id when absent, and
// wakes all waiting consumers. It never blocks on consumers. Events pushed
// after MarkComplete are dropped.
func (b *Bridge) Push(e types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.complete {
		metrics.EventsDropped.WithLabelValues("complete").Inc()
		b.logger.Warn("event pushed after completion dropped",
			slog.String("run_id", b.runID),
			slog.String("event_type", string(e.Type)),
		)
		return
	}

	e = e.Clone()
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now().UTC()
	}
	if e.RunID == "" {
		e.RunID = b.runID
	}

	b.events = append(b.events, e)
	b.wakeLocked()
	metrics.EventsTotal.WithLabelValues(string(e.Type)).Inc()

	for _, s := range b.sinks {
		s.Publish(e.Clone())
	}
}

// MarkComplete closes the log for writing and wakes all consumers. It is
// idempotent.
func (b *Bridge) MarkComplete() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.complete {
		return
	}
	b.complete = true
	b.wakeLocked()
}

// IsComplete reports whether MarkComplete has been called.
func (b *Bridge) IsComplete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.complete
}

// Len returns the number of events in the log.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Events returns a snapshot copy of the whole log.
func (b *Bridge) Events() []types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneAll(b.events)
}

// Next returns the events at index idx and beyond. When none exist yet it
// waits until an append, completion, ctx cancellation, or the poll interval
// elapses, then re-checks. done is true once the log is complete and idx has
// reached its end.
func (b *Bridge) Next(ctx context.Context, idx int) (batch []types.Event, done bool, err error) {
	if idx < 0 {
		idx = 0
	}
	for {
		b.mu.Lock()
		if idx < len(b.events) {
			batch = cloneAll(b.events[idx:])
			b.mu.Unlock()
			return batch, false, nil
		}
		if b.complete {
			b.mu.Unlock()
			return nil, true, nil
		}
		// Taken under the same lock as the predicate check, so an append
		// between unlock and select still closes this channel.
		wake := b.notify
		b.mu.Unlock()

		timer := time.NewTimer(b.pollInterval)
		select {
		case <-wake:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, false, ctx.Err()
		}
		timer.Stop()
	}
}

// StreamFrom returns a channel yielding every event from index start onward.
// The channel is closed once the log is complete and drained, or when ctx is
// done. Cancelling ctx has no effect on the run itself.
func (b *Bridge) StreamFrom(ctx context.Context, start int) <-chan types.Event {
	out := make(chan types.Event)
	go func() {
		defer close(out)
		idx := start
		if idx < 0 {
			idx = 0
		}
		for {
			batch, done, err := b.Next(ctx, idx)
			if err != nil || done {
				return
			}
			for _, e := range batch {
				select {
				case out <- e:
					idx++
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (b *Bridge) wakeLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

func cloneAll(events []types.Event) []types.Event {
	out := make([]types.Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}
