// Package reconcile picks the canonical report text out of several
// unreliable candidates and repairs its chart references.
package reconcile

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/metrics"
)

// MinLength is the plausibility threshold. A candidate must be longer than
// this many characters (after trimming) to be considered.
const MinLength = 200

// ErrNoArtifact is returned when no candidate passes the threshold.
var ErrNoArtifact = errors.New("no report candidate above plausibility threshold")

// Source names where a candidate came from.
type Source string

const (
	SourceFile   Source = "file"
	SourceResult Source = "result"
	SourceStream Source = "stream"
)

// Candidate is one possible report text.
type Candidate struct {
	Source Source
	Text   string
}

// Plausible reports whether the candidate passes the length threshold.
func (c Candidate) Plausible() bool {
	return utf8.RuneCountInString(strings.TrimSpace(c.Text)) > MinLength
}

// Reconcile selects the longest plausible candidate. Ties go to the earlier
// candidate. The returned text is trimmed but otherwise untouched.
//
// Longest-wins is a heuristic: a shorter correct report loses to a longer
// malformed one.
func Reconcile(candidates []Candidate) (Candidate, error) {
	var (
		best    Candidate
		bestLen = -1
	)
	for _, c := range candidates {
		if !c.Plausible() {
			continue
		}
		text := strings.TrimSpace(c.Text)
		if n := utf8.RuneCountInString(text); n > bestLen {
			best = Candidate{Source: c.Source, Text: text}
			bestLen = n
		}
	}

	if bestLen < 0 {
		metrics.ReconcileTotal.WithLabelValues("none").Inc()
		return Candidate{}, ErrNoArtifact
	}
	metrics.ReconcileTotal.WithLabelValues(string(best.Source)).Inc()
	return best, nil
}

// Longest returns the longest string in texts, or "" when texts is empty.
func Longest(texts []string) string {
	var (
		best    string
		bestLen = -1
	)
	for _, t := range texts {
		if n := utf8.RuneCountInString(t); n > bestLen {
			best, bestLen = t, n
		}
	}
	return best
}

// Clean strips model artifacts from text and repairs its chart references
// against charts.
func Clean(text string, charts []string) string {
	text = StripArtifacts(text)
	if len(charts) > 0 {
		text = FixChartReferences(text, charts)
	}
	return text
}
