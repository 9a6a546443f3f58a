package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ReportFilename is the canonical report file in the output directory.
	ReportFilename = "report.md"

	// OutputURLPrefix is where the output directory is served over HTTP.
	OutputURLPrefix = "/output/"

	reportExt = ".md"
)

// ReportWriter saves text artifacts into the output directory.
type ReportWriter struct {
	dir string
}

// NewReportWriter creates a writer rooted at dir.
func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{dir: dir}
}

// Dir returns the output directory.
func (w *ReportWriter) Dir() string { return w.dir }

// Save writes content under a sanitized filename and returns that name.
func (w *ReportWriter) Save(filename, content string) (string, error) {
	name := SanitizeReportName(filename)
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, name), []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return name, nil
}

// Read returns the content of a file previously saved by name.
func (w *ReportWriter) Read(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, SanitizeReportName(name)))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SanitizeReportName replaces characters other than letters, digits, '-',
// '_' and '.' with '_' and ensures the .md extension.
func SanitizeReportName(filename string) string {
	name := sanitize(strings.TrimSpace(filename), "-_.")
	if name == "" {
		name = "report"
	}
	if !strings.HasSuffix(name, reportExt) {
		name += reportExt
	}
	return name
}

// RunReportName is the file holding runID's copy of the canonical report.
// Concurrent runs overwrite report.md; this name stays with the run.
func RunReportName(runID string) string {
	return SanitizeReportName("report_" + runID)
}

// ReportURL maps a saved report name to its served path.
func ReportURL(name string) string {
	return OutputURLPrefix + name
}

// ResolveOutputURL maps a served /output/ path back to a file under dir.
// It rejects paths that would escape dir.
func ResolveOutputURL(dir, url string) (string, error) {
	rel := strings.TrimPrefix(url, OutputURLPrefix)
	clean := filepath.Clean("/" + rel)
	if clean == "/" {
		return "", fmt.Errorf("invalid output path %q", url)
	}
	return filepath.Join(dir, clean), nil
}
