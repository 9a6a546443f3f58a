package reconcile

import (
	"strings"
)

const (
	thoughtPrefix = "Thought:"
	fence         = "```"
)

// StripArtifacts removes a leading "Thought:" preamble up to the first
// heading line or code fence, whichever comes first, then unwraps a
// surrounding code fence with or without a language tag. A closing fence is
// only removed together with an opening one.
func StripArtifacts(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, thoughtPrefix) {
		if cut := preambleEnd(text); cut > 0 {
			text = strings.TrimSpace(text[cut:])
		}
	}

	rest, ok := strings.CutPrefix(text, fence)
	if !ok {
		return text
	}
	text = strings.TrimSpace(rest)
	if tag, body, found := strings.Cut(rest, "\n"); found && !strings.ContainsAny(tag, " \t`") {
		text = strings.TrimSpace(body)
	}
	if strings.HasSuffix(text, fence) {
		text = strings.TrimSpace(strings.TrimSuffix(text, fence))
	}
	return text
}

// preambleEnd returns the offset of the earliest line-initial '#' or code
// fence after the preamble start, or -1 if there is neither.
func preambleEnd(text string) int {
	heading := -1
	for off := 0; off < len(text); {
		if text[off] == '#' && off > 0 {
			heading = off
			break
		}
		nl := strings.IndexByte(text[off:], '\n')
		if nl < 0 {
			break
		}
		off += nl + 1
	}

	fenceAt := strings.Index(text, fence)

	switch {
	case heading < 0:
		return fenceAt
	case fenceAt < 0:
		return heading
	default:
		return min(heading, fenceAt)
	}
}
