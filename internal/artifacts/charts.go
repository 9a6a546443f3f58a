package artifacts

import (
	"os"
	"path"
	"sort"
	"strings"
	"unicode"
)

// ChartURLPrefix is where chart files are served over HTTP.
const ChartURLPrefix = OutputURLPrefix + ChartsSubdir + "/"

// ListCharts returns the set of PNG file names currently in dir. A missing
// directory yields an empty set.
func ListCharts(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		set[e.Name()] = struct{}{}
	}
	return set, nil
}

// NewCharts returns served paths of PNGs in dir that are absent from before,
// sorted by name.
func NewCharts(dir string, before map[string]struct{}) ([]string, error) {
	after, err := ListCharts(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for name := range after {
		if _, existed := before[name]; !existed {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = ChartURLPrefix + name
	}
	return paths, nil
}

// ChartTitle derives a display title from a chart path:
// "/output/charts/q3_market_growth.png" becomes "Q3 Market Growth".
func ChartTitle(p string) string {
	stem := strings.TrimSuffix(path.Base(p), ".png")
	stem = strings.ReplaceAll(stem, "_", " ")

	var b strings.Builder
	prevLetter := false
	for _, r := range stem {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
