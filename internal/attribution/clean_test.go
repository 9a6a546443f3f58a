package attribution

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCleanContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace", "   \n\t", ""},
		{"plain text trimmed", "  hello world \n", "hello world"},
		{
			"tool result with result_as_answer",
			`ToolResult(result='Chart saved to: charts/share.png', result_as_answer=False)`,
			"Chart saved to: charts/share.png",
		},
		{
			"tool result simple close",
			`ToolResult(result="Report saved to: report.md")`,
			"Report saved to: report.md",
		},
		{
			"agent finish with closing",
			"AgentFinish(thought='done', output='Final report body')",
			"Final report body",
		},
		{"assistant prefix", "### Assistant: Here is the plan", "Here is the plan"},
		{"short assistant prefix case insensitive", "## assistant:   plan", "plan"},
		{"multiline tool result", "ToolResult(result='line one\nline two', result_as_answer=True)", "line one\nline two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanContent(tt.in))
		})
	}
}

func TestCleanContentTruncates(t *testing.T) {
	long := strings.Repeat("é", MaxContent+200)
	got := CleanContent(long)

	assert.True(t, strings.HasSuffix(got, truncatedMarker))
	assert.Equal(t, MaxContent+utf8.RuneCountInString(truncatedMarker), utf8.RuneCountInString(got))

	exact := strings.Repeat("a", MaxContent)
	assert.Equal(t, exact, CleanContent(exact))
}

func TestCleanContentIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"### Assistant: hi there",
		`ToolResult(result='saved', result_as_answer=False)`,
		"AgentFinish(thought='x', output='the answer')",
		strings.Repeat("word ", 600),
		"  padded  ",
	}
	for _, in := range inputs {
		once := CleanContent(in)
		assert.Equal(t, once, CleanContent(once), "input %q", in)
	}
}
