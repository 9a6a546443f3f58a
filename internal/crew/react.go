package crew

import (
	"regexp"
	"strings"
)

const (
	finalAnswerMarker = "Final Answer:"
	observationMarker = "Observation:"
)

var actionRe = regexp.MustCompile(`(?s)Action:\s*(.*?)\s*Action Input:\s*(.*)`)

// ParseReply classifies one ReAct-formatted model reply. A final answer takes
// precedence over an action; anything else is progress.
func ParseReply(text string) StepOutcome {
	if i := strings.LastIndex(text, finalAnswerMarker); i >= 0 {
		return FinalAnswer{
			Output: strings.TrimSpace(text[i+len(finalAnswerMarker):]),
			Text:   text,
		}
	}

	if m := actionRe.FindStringSubmatch(text); m != nil {
		tool := strings.TrimSpace(firstLine(m[1]))
		input := m[2]
		if j := strings.Index(input, observationMarker); j >= 0 {
			input = input[:j]
		}
		return ToolAction{
			Tool:      strings.Trim(tool, "`*\"' "),
			ToolInput: unwrapInput(input),
			Log:       text,
		}
	}

	return Progress{Text: text}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// unwrapInput strips a code fence or a pair of matching quotes around a
// tool input.
func unwrapInput(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[\"") {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		return strings.TrimSpace(s)
	}
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
