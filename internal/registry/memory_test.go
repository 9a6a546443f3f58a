package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry("ollama/gemma3:27b", "ollama/gemma3:12b")

	t.Run("manager", func(t *testing.T) {
		m := r.Manager()
		assert.Equal(t, "manager", m.Key)
		assert.Equal(t, "Senior Research Director", m.Role)
		assert.Equal(t, "gemma3:27b", m.Model)
		assert.Equal(t, VenueOrchestrator, m.VM)
	})

	t.Run("stages in pipeline order", func(t *testing.T) {
		stages := r.Stages()
		require.Len(t, stages, 4)
		keys := []string{stages[0].Key, stages[1].Key, stages[2].Key, stages[3].Key}
		assert.Equal(t, []string{"researcher", "analyst", "visualizer", "writer"}, keys)
		for _, s := range stages {
			assert.Equal(t, "gemma3:12b", s.Model)
			assert.Equal(t, VenueSpecialist, s.VM)
		}
		assert.Equal(t, []string{ToolChart}, stages[2].Tools)
		assert.Equal(t, []string{ToolFile}, stages[3].Tools)
	})

	t.Run("stages returns a copy", func(t *testing.T) {
		s := r.Stages()
		s[0].Key = "mutated"
		assert.Equal(t, "researcher", r.Stages()[0].Key)
	})

	t.Run("get", func(t *testing.T) {
		a, err := r.Get("writer")
		require.NoError(t, err)
		assert.Equal(t, "Report Writer", a.Role)

		_, err = r.Get("nobody")
		assert.ErrorIs(t, err, ErrAgentNotFound)
	})

	t.Run("list", func(t *testing.T) {
		all := r.List()
		require.Len(t, all, 5)
		assert.Equal(t, "manager", all[0].Key)
	})
}

func TestModelName(t *testing.T) {
	assert.Equal(t, "gemma3:27b", ModelName("ollama/gemma3:27b"))
	assert.Equal(t, "gemma3:12b", ModelName("gemma3:12b"))
	assert.Equal(t, "", ModelName(""))
}
