package dataflow

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOutput(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "charts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.md"), []byte("# Report"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "charts", "growth.png"), []byte("\x89PNG"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "charts", "share.png"), []byte("\x89PNG"), 0o644))
	return dir
}

func TestNew_Types(t *testing.T) {
	ctx := context.Background()

	svc, err := New(ctx, &Config{Type: TypeNone}, nil)
	require.NoError(t, err)
	assert.Nil(t, svc)

	svc, err = New(ctx, &Config{Type: TypeMemory}, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)

	_, err = New(ctx, &Config{Type: "ftp"}, nil)
	assert.Error(t, err)

	_, err = New(ctx, &Config{Type: TypeS3}, nil)
	assert.Error(t, err, "bucket is required")
}

func TestMirrorRun(t *testing.T) {
	ctx := context.Background()
	dir := writeOutput(t)
	backend := NewMemoryBackend()
	svc := NewWithBackend(backend, 2, nil)

	refs, err := svc.MirrorRun(ctx, "ab12cd34", dir, []string{
		"report.md",
		"charts/growth.png",
		"charts/share.png",
	})
	require.NoError(t, err)
	require.Len(t, refs, 3)

	assert.Equal(t, "memory://runs/ab12cd34/report.md", refs[0].URI)
	assert.Equal(t, "text/markdown; charset=utf-8", refs[0].ContentType)
	assert.Equal(t, int64(len("# Report")), refs[0].Size)
	assert.Len(t, refs[0].Checksum, 64)
	assert.Equal(t, "image/png", refs[1].ContentType)

	listed, err := svc.ListRunArtifacts(ctx, "ab12cd34")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.True(t, strings.HasSuffix(listed[0].URI, "charts/growth.png"))

	rc, err := svc.GetArtifact(ctx, refs[0])
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "# Report", string(body))

	other, err := svc.ListRunArtifacts(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMirrorRun_MissingFile(t *testing.T) {
	svc := NewWithBackend(NewMemoryBackend(), 0, nil)

	_, err := svc.MirrorRun(context.Background(), "run1", t.TempDir(), []string{"report.md"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror report.md")
}

func TestMemoryBackend_PresignUnsupported(t *testing.T) {
	svc := NewWithBackend(NewMemoryBackend(), 1, nil)
	_, err := svc.GetDownloadURL(context.Background(), &ArtifactRef{URI: "memory://x"}, 0)
	assert.Error(t, err)
}

func TestS3Backend_Keys(t *testing.T) {
	b := &S3Backend{bucket: "reports", prefix: "analyst"}
	assert.Equal(t, "analyst/runs/r1/report.md", b.key(ArtifactPath("r1", "report.md")))
	assert.Equal(t, "s3://reports/analyst/runs/r1/report.md", b.uri(b.key(ArtifactPath("r1", "report.md"))))

	key, err := b.keyFromURI("s3://reports/analyst/runs/r1/report.md")
	require.NoError(t, err)
	assert.Equal(t, "analyst/runs/r1/report.md", key)

	_, err = b.keyFromURI("s3://other/analyst/runs/r1/report.md")
	assert.Error(t, err)

	unprefixed := &S3Backend{bucket: "reports"}
	assert.Equal(t, "runs/r1/charts/a.png", unprefixed.key("runs/r1/charts/a.png"))
}

func TestRunIDFromPath(t *testing.T) {
	assert.Equal(t, "r1", runIDFromPath("runs/r1/report.md"))
	assert.Equal(t, "r1", runIDFromPath("runs/r1/charts/a.png"))
	assert.Empty(t, runIDFromPath("runs/r1"))
	assert.Empty(t, runIDFromPath("other/r1/report.md"))
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://minio:9000", endpointURL("minio:9000", false))
	assert.Equal(t, "https://minio:9000", endpointURL("minio:9000", true))
	assert.Equal(t, "http://localhost:9000", endpointURL("http://localhost:9000", true))
}
