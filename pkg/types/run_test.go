package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to RunStatus
		want     bool
	}{
		{RunStatusPending, RunStatusRunning, true},
		{RunStatusPending, RunStatusError, true},
		{RunStatusRunning, RunStatusCompleted, true},
		{RunStatusRunning, RunStatusError, true},
		{RunStatusRunning, RunStatusPending, false},
		{RunStatusRunning, RunStatusRunning, false},
		{RunStatusCompleted, RunStatusError, false},
		{RunStatusError, RunStatusRunning, false},
		{RunStatusPending, RunStatus("bogus"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestElapsed(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("not started", func(t *testing.T) {
		assert.Nil(t, Elapsed(nil, nil, start))
	})

	t.Run("running uses now", func(t *testing.T) {
		got := Elapsed(&start, nil, start.Add(1234*time.Millisecond))
		require.NotNil(t, got)
		assert.Equal(t, 1.2, *got)
	})

	t.Run("completed uses completion time", func(t *testing.T) {
		end := start.Add(5260 * time.Millisecond)
		got := Elapsed(&start, &end, start.Add(time.Hour))
		require.NotNil(t, got)
		assert.Equal(t, 5.3, *got)
	})
}

func TestEventJSON(t *testing.T) {
	t.Run("omits unused payload fields", func(t *testing.T) {
		data, err := json.Marshal(Event{Type: EventTypeAgentComplete, Agent: "writer", Role: "Report Writer"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"agent_complete","agent":"writer","role":"Report Writer"}`, string(data))
	})

	t.Run("keeps explicit false and empty chart list", func(t *testing.T) {
		data, err := json.Marshal(Event{
			Type:         EventTypeCrewComplete,
			TotalSeconds: Float(0),
			Charts:       []string{},
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"crew_complete","total_seconds":0,"charts":[]}`, string(data))

		data, err = json.Marshal(Event{Type: EventTypeError, Recoverable: Bool(false)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"error","recoverable":false}`, string(data))
	})
}

func TestEventClone(t *testing.T) {
	orig := Event{Type: EventTypeCrewComplete, Charts: []string{"a.png"}}
	clone := orig.Clone()
	clone.Charts[0] = "b.png"
	assert.Equal(t, "a.png", orig.Charts[0])
}
