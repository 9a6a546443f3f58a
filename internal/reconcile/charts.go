package reconcile

import (
	"path"
	"regexp"
	"strings"
)

const chartExt = ".png"

var (
	imageRefRe = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)
	extRe      = regexp.MustCompile(`\.\w+$`)
)

// FixChartReferences rewrites every markdown image reference in text so it
// points at one of charts. Matching is by filename stem: exact, then
// case-insensitive, then substring in either direction. A reference with no
// match keeps its path with the extension normalized to .png.
func FixChartReferences(text string, charts []string) string {
	type chart struct {
		stem  string
		lower string
		path  string
	}
	known := make([]chart, 0, len(charts))
	for _, c := range charts {
		s := stem(c)
		known = append(known, chart{stem: s, lower: strings.ToLower(s), path: c})
	}

	resolve := func(ref string) string {
		s := stem(ref)
		for _, c := range known {
			if c.stem == s {
				return c.path
			}
		}
		ls := strings.ToLower(s)
		for _, c := range known {
			if c.lower == ls {
				return c.path
			}
		}
		if ls != "" {
			for _, c := range known {
				if strings.Contains(ls, c.lower) || strings.Contains(c.lower, ls) {
					return c.path
				}
			}
		}
		return normalizeExt(ref)
	}

	return imageRefRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := imageRefRe.FindStringSubmatch(m)
		alt, ref := sub[1], sub[2]
		return "![" + alt + "](" + resolve(ref) + ")"
	})
}

// stem returns the base filename without its extension.
func stem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

func normalizeExt(ref string) string {
	fixed := extRe.ReplaceAllString(ref, chartExt)
	if !strings.HasSuffix(fixed, chartExt) {
		fixed += chartExt
	}
	return fixed
}
