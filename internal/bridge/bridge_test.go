package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

func newTestBridge(sinks ...Sink) *Bridge {
	return New("run-1", &Config{PollInterval: 20 * time.Millisecond, Sinks: sinks})
}

func output(i int) types.Event {
	return types.Event{Type: types.EventTypeAgentOutput, Agent: "researcher", Content: fmt.Sprintf("step %d", i)}
}

func drain(t *testing.T, ch <-chan types.Event) []types.Event {
	t.Helper()
	var got []types.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, e)
		case <-timeout:
			t.Errorf("stream did not terminate; received %d events", len(got))
			return got
		}
	}
}

func contents(events []types.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Content
	}
	return out
}

func TestPushStampsEvents(t *testing.T) {
	b := newTestBridge()
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	b.Push(output(0))
	b.Push(types.Event{Type: types.EventTypeAgentOutput, Timestamp: fixed.Add(time.Hour), RunID: "other"})

	events := b.Events()
	require.Len(t, events, 2)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, "run-1", events[0].RunID)
	assert.Equal(t, fixed.Add(time.Hour), events[1].Timestamp, "existing timestamp kept")
	assert.Equal(t, "other", events[1].RunID, "existing run id kept")
}

func TestLateJoinReplaysHistory(t *testing.T) {
	b := newTestBridge()
	for i := 0; i < 50; i++ {
		b.Push(output(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.StreamFrom(ctx, 0)

	for i := 0; i < 50; i++ {
		e := <-ch
		assert.Equal(t, fmt.Sprintf("step %d", i), e.Content)
	}

	b.Push(output(50))
	e := <-ch
	assert.Equal(t, "step 50", e.Content)

	b.MarkComplete()
	_, ok := <-ch
	assert.False(t, ok, "stream closes after completion")
}

func TestConsumersObserveSameOrder(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()

	early := b.StreamFrom(ctx, 0)
	var wg sync.WaitGroup
	var earlyGot []types.Event
	wg.Add(1)
	go func() {
		defer wg.Done()
		earlyGot = drain(t, early)
	}()

	for i := 0; i < 20; i++ {
		b.Push(output(i))
	}
	late := b.StreamFrom(ctx, 0)
	var lateGot []types.Event
	wg.Add(1)
	go func() {
		defer wg.Done()
		lateGot = drain(t, late)
	}()
	for i := 20; i < 40; i++ {
		b.Push(output(i))
	}
	b.MarkComplete()
	wg.Wait()

	require.Len(t, earlyGot, 40)
	assert.Equal(t, contents(earlyGot), contents(lateGot))
	seen := map[string]bool{}
	for _, c := range contents(earlyGot) {
		assert.False(t, seen[c], "duplicate %q", c)
		seen[c] = true
	}
}

func TestConcurrentPushersKeepSingleOrder(t *testing.T) {
	b := newTestBridge()
	ctx := context.Background()
	a := b.StreamFrom(ctx, 0)
	c := b.StreamFrom(ctx, 0)

	var wg sync.WaitGroup
	var aGot, cGot []types.Event
	wg.Add(2)
	go func() { defer wg.Done(); aGot = drain(t, a) }()
	go func() { defer wg.Done(); cGot = drain(t, c) }()

	var pushers sync.WaitGroup
	for p := 0; p < 4; p++ {
		pushers.Add(1)
		go func(p int) {
			defer pushers.Done()
			for i := 0; i < 25; i++ {
				b.Push(output(p*100 + i))
			}
		}(p)
	}
	pushers.Wait()
	b.MarkComplete()
	wg.Wait()

	assert.Len(t, aGot, 100)
	assert.Equal(t, contents(b.Events()), contents(aGot))
	assert.Equal(t, contents(aGot), contents(cGot))
}

func TestCompletionIsTerminal(t *testing.T) {
	b := newTestBridge()
	b.Push(output(0))
	b.MarkComplete()
	b.MarkComplete()
	b.Push(output(1))

	assert.True(t, b.IsComplete())
	assert.Equal(t, 1, b.Len())

	got := drain(t, b.StreamFrom(context.Background(), 0))
	assert.Equal(t, []string{"step 0"}, contents(got))
}

func TestWaitingConsumerSeesCompletionWithoutPush(t *testing.T) {
	b := New("run-1", &Config{PollInterval: time.Hour})
	ch := b.StreamFrom(context.Background(), 0)

	go func() {
		time.Sleep(30 * time.Millisecond)
		b.MarkComplete()
	}()

	got := drain(t, ch)
	assert.Empty(t, got)
}

func TestNextPollsAndHonorsContext(t *testing.T) {
	b := newTestBridge()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	batch, done, err := b.Next(ctx, 0)
	assert.Nil(t, batch)
	assert.False(t, done)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	b.Push(output(0))
	b.Push(output(1))
	batch, done, err = b.Next(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, []string{"step 1"}, contents(batch))
}

func TestStreamStopsOnCancel(t *testing.T) {
	b := newTestBridge()
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.StreamFrom(ctx, 0)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}
	assert.False(t, b.IsComplete(), "consumer cancel does not complete the run")
}

func TestStreamFromOffset(t *testing.T) {
	b := newTestBridge()
	for i := 0; i < 5; i++ {
		b.Push(output(i))
	}
	b.MarkComplete()

	got := drain(t, b.StreamFrom(context.Background(), 3))
	assert.Equal(t, []string{"step 3", "step 4"}, contents(got))

	got = drain(t, b.StreamFrom(context.Background(), 10))
	assert.Empty(t, got)
}

func TestDeliveredEventsAreCopies(t *testing.T) {
	b := newTestBridge()
	b.Push(types.Event{Type: types.EventTypeCrewComplete, Charts: []string{"/output/charts/a.png"}})

	events := b.Events()
	events[0].Charts[0] = "mutated"

	assert.Equal(t, "/output/charts/a.png", b.Events()[0].Charts[0])
}

type recordingSink struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recordingSink) Publish(e types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestSinksReceiveEventsInLogOrder(t *testing.T) {
	sink := &recordingSink{}
	b := newTestBridge(sink)
	for i := 0; i < 5; i++ {
		b.Push(output(i))
	}
	b.MarkComplete()
	b.Push(output(99))

	assert.Equal(t, contents(b.Events()), contents(sink.events))
	assert.Equal(t, "run-1", sink.events[0].RunID)
}
