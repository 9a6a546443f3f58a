// Package dataflow mirrors a run's artifacts (report and charts) to object
// storage so they outlive the local output directory.
package dataflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/metrics"
)

// ArtifactRef represents a reference to an artifact in storage.
type ArtifactRef struct {
	// URI is the full artifact path (e.g., "s3://bucket/path/to/artifact")
	URI string `json:"uri"`

	// ContentType is the MIME type
	ContentType string `json:"content_type,omitempty"`

	// Size in bytes
	Size int64 `json:"size,omitempty"`

	// Checksum (SHA256)
	Checksum string `json:"checksum,omitempty"`

	// CreatedAt timestamp
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Backend defines the storage backend interface.
type Backend interface {
	// Put stores data and returns an artifact reference
	Put(ctx context.Context, path string, data io.Reader, contentType string) (*ArtifactRef, error)

	// Get retrieves data for an artifact
	Get(ctx context.Context, ref *ArtifactRef) (io.ReadCloser, error)

	// List lists artifacts with a prefix
	List(ctx context.Context, prefix string) ([]*ArtifactRef, error)

	// PresignGet generates a presigned URL for download
	PresignGet(ctx context.Context, ref *ArtifactRef, expiry time.Duration) (string, error)
}

// Backend types accepted by Config.Type.
const (
	TypeNone   = "none"
	TypeMemory = "memory"
	TypeS3     = "s3"
	TypeMinio  = "minio"
)

// DefaultUploadConcurrency bounds parallel uploads per run.
const DefaultUploadConcurrency = 4

// Config holds dataflow service configuration.
type Config struct {
	// Backend type: "none", "memory", "s3", "minio"
	Type string

	// S3/MinIO configuration
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool

	// Path prefix for all artifacts
	PathPrefix string

	// UploadConcurrency bounds parallel uploads (default: DefaultUploadConcurrency)
	UploadConcurrency int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Type:              TypeMemory,
		PathPrefix:        "artifacts",
		UploadConcurrency: DefaultUploadConcurrency,
	}
}

// Service mirrors run artifacts to a Backend.
type Service struct {
	backend     Backend
	concurrency int
	logger      *slog.Logger
}

// New creates a new dataflow service. It returns (nil, nil) for type "none"
// or an empty type, meaning mirroring is disabled.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var backend Backend
	switch cfg.Type {
	case "", TypeNone:
		return nil, nil
	case TypeMemory:
		backend = NewMemoryBackend()
	case TypeS3, TypeMinio:
		s3Backend, err := NewS3Backend(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create s3 backend: %w", err)
		}
		backend = s3Backend
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}

	return NewWithBackend(backend, cfg.UploadConcurrency, logger), nil
}

// NewWithBackend creates a service over an existing backend.
func NewWithBackend(backend Backend, concurrency int, logger *slog.Logger) *Service {
	if concurrency <= 0 {
		concurrency = DefaultUploadConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, concurrency: concurrency, logger: logger}
}

// RunPrefix is the storage prefix for every artifact of a run.
func RunPrefix(runID string) string {
	return fmt.Sprintf("runs/%s/", runID)
}

// ArtifactPath generates the storage path for a file relative to the output
// directory, e.g. "charts/growth.png".
func ArtifactPath(runID, rel string) string {
	return RunPrefix(runID) + filepath.ToSlash(rel)
}

// MirrorRun uploads files, given relative to outputDir, under the run's
// prefix. Uploads run in parallel up to the configured bound; the first
// failure cancels the rest and is returned.
func (s *Service) MirrorRun(ctx context.Context, runID, outputDir string, files []string) ([]*ArtifactRef, error) {
	refs := make([]*ArtifactRef, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, rel := range files {
		g.Go(func() error {
			ref, err := s.upload(gctx, runID, outputDir, rel)
			if err != nil {
				metrics.ArtifactUploads.WithLabelValues("error").Inc()
				return fmt.Errorf("mirror %s: %w", rel, err)
			}
			metrics.ArtifactUploads.WithLabelValues("success").Inc()
			refs[i] = ref
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("run artifacts mirrored",
		"run_id", runID,
		"count", len(refs),
	)
	return refs, nil
}

func (s *Service) upload(ctx context.Context, runID, outputDir, rel string) (*ArtifactRef, error) {
	f, err := os.Open(filepath.Join(outputDir, rel))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return s.backend.Put(ctx, ArtifactPath(runID, rel), f, contentTypeFor(rel))
}

// ListRunArtifacts lists all mirrored artifacts for a run, sorted by URI.
func (s *Service) ListRunArtifacts(ctx context.Context, runID string) ([]*ArtifactRef, error) {
	refs, err := s.backend.List(ctx, RunPrefix(runID))
	if err != nil {
		return nil, err
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].URI < refs[j].URI })
	return refs, nil
}

// GetArtifact retrieves an artifact.
func (s *Service) GetArtifact(ctx context.Context, ref *ArtifactRef) (io.ReadCloser, error) {
	return s.backend.Get(ctx, ref)
}

// GetDownloadURL generates a presigned download URL.
func (s *Service) GetDownloadURL(ctx context.Context, ref *ArtifactRef, expiry time.Duration) (string, error) {
	return s.backend.PresignGet(ctx, ref, expiry)
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".png":
		return "image/png"
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// MemoryBackend provides an in-memory storage backend for testing and
// single-process deployments.
type MemoryBackend struct {
	mu        sync.RWMutex
	artifacts map[string]*memoryArtifact
}

type memoryArtifact struct {
	ref  *ArtifactRef
	data []byte
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		artifacts: make(map[string]*memoryArtifact),
	}
}

func (m *MemoryBackend) Put(ctx context.Context, path string, data io.Reader, contentType string) (*ArtifactRef, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	ref := &ArtifactRef{
		URI:         fmt.Sprintf("memory://%s", path),
		ContentType: contentType,
		Size:        int64(len(content)),
		Checksum:    checksum(content),
		CreatedAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.artifacts[path] = &memoryArtifact{ref: ref, data: content}
	m.mu.Unlock()
	return ref, nil
}

func (m *MemoryBackend) Get(ctx context.Context, ref *ArtifactRef) (io.ReadCloser, error) {
	path := strings.TrimPrefix(ref.URI, "memory://")

	m.mu.RLock()
	artifact, ok := m.artifacts[path]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s", ref.URI)
	}
	return io.NopCloser(strings.NewReader(string(artifact.data))), nil
}

func (m *MemoryBackend) List(ctx context.Context, prefix string) ([]*ArtifactRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var refs []*ArtifactRef
	for path, artifact := range m.artifacts {
		if strings.HasPrefix(path, prefix) {
			refs = append(refs, artifact.ref)
		}
	}
	return refs, nil
}

func (m *MemoryBackend) PresignGet(ctx context.Context, ref *ArtifactRef, expiry time.Duration) (string, error) {
	// Memory backend doesn't support presigned URLs
	return "", fmt.Errorf("presigned URLs not supported for memory backend")
}

// Verify interface compliance
var (
	_ Backend = (*MemoryBackend)(nil)
	_ Backend = (*S3Backend)(nil)
)
