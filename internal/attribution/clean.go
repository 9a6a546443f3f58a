package attribution

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxContent bounds streamed agent output.
	MaxContent = 1500

	truncatedMarker = "... [truncated]"
)

var (
	toolResultRe      = regexp.MustCompile(`(?s)^ToolResult\(result=['"](.+)`)
	toolResultTailRe  = regexp.MustCompile(`(?s)['"],\s*result_as_answer=\w+\)\s*$`)
	closingQuoteRe    = regexp.MustCompile(`['"]\)\s*$`)
	agentFinishRe     = regexp.MustCompile(`(?s)^AgentFinish\(thought=['"].*?['"],\s*output=['"](.+)`)
	assistantPrefixRe = regexp.MustCompile(`(?i)^###?\s*Assistant:\s*`)
)

// CleanContent strips framework wrappers from raw step text, bounds its
// length and trims it. It never fails and returns "" for empty input.
func CleanContent(content string) string {
	if content == "" {
		return ""
	}

	if m := toolResultRe.FindStringSubmatch(content); m != nil {
		inner := toolResultTailRe.ReplaceAllString(m[1], "")
		inner = closingQuoteRe.ReplaceAllString(inner, "")
		content = strings.TrimSpace(inner)
	}

	if m := agentFinishRe.FindStringSubmatch(content); m != nil {
		inner := closingQuoteRe.ReplaceAllString(m[1], "")
		content = strings.TrimSpace(inner)
	}

	content = assistantPrefixRe.ReplaceAllString(content, "")

	if needsTruncation(content) {
		content = string([]rune(content)[:MaxContent]) + truncatedMarker
	}

	return strings.TrimSpace(content)
}

// needsTruncation reports whether content exceeds MaxContent and has not
// already been truncated by CleanContent.
func needsTruncation(content string) bool {
	n := utf8.RuneCountInString(content)
	if n <= MaxContent {
		return false
	}
	if strings.HasSuffix(content, truncatedMarker) && n <= MaxContent+utf8.RuneCountInString(truncatedMarker) {
		return false
	}
	return true
}
