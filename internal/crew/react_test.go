package crew

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	t.Run("final answer", func(t *testing.T) {
		text := "Thought: I now know the final answer\nFinal Answer: # Report\nBody"
		got, ok := ParseReply(text).(FinalAnswer)
		require.True(t, ok)
		assert.Equal(t, "# Report\nBody", got.Output)
		assert.Equal(t, text, got.Text)
	})

	t.Run("action", func(t *testing.T) {
		text := "Thought: chart it\nAction: ChartTool\nAction Input: {\"chart_type\": \"bar\"}"
		got, ok := ParseReply(text).(ToolAction)
		require.True(t, ok)
		assert.Equal(t, "ChartTool", got.Tool)
		assert.Equal(t, `{"chart_type": "bar"}`, got.ToolInput)
		assert.Equal(t, text, got.Log)
	})

	t.Run("action with fenced input and hallucinated observation", func(t *testing.T) {
		text := "Action: `FileTool`\nAction Input: ```json\n{\"filename\": \"report\"}\n```\nObservation: saved"
		got, ok := ParseReply(text).(ToolAction)
		require.True(t, ok)
		assert.Equal(t, "FileTool", got.Tool)
		assert.Equal(t, `{"filename": "report"}`, got.ToolInput)
	})

	t.Run("quoted input", func(t *testing.T) {
		got, ok := ParseReply("Action: ChartTool\nAction Input: '{\"a\": 1}'").(ToolAction)
		require.True(t, ok)
		assert.Equal(t, `{"a": 1}`, got.ToolInput)
	})

	t.Run("final answer wins over action", func(t *testing.T) {
		_, ok := ParseReply("Action: ChartTool\nAction Input: {}\nFinal Answer: done").(FinalAnswer)
		assert.True(t, ok)
	})

	t.Run("progress", func(t *testing.T) {
		got, ok := ParseReply("Let me think about the market.").(Progress)
		require.True(t, ok)
		assert.Equal(t, "Let me think about the market.", got.Text)
	})
}
