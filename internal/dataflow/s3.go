package dataflow

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// minioRegion is used when no region is configured; MinIO ignores it.
const minioRegion = "us-east-1"

// Object metadata keys stamped on every mirrored artifact.
const (
	metaRunID    = "run-id"
	metaChecksum = "sha256"
)

// S3Backend mirrors run artifacts to an S3 bucket or a MinIO server.
type S3Backend struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string
}

// NewS3Backend connects to the bucket named in cfg. A non-empty
// cfg.Endpoint selects MinIO style path addressing.
func NewS3Backend(ctx context.Context, cfg *Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = minioRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint == "" {
			return
		}
		o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		o.UsePathStyle = true
	})

	return &S3Backend{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.PathPrefix, "/"),
	}, nil
}

// endpointURL accepts "host:port" or a full URL.
func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func (b *S3Backend) key(p string) string {
	if b.prefix == "" {
		return p
	}
	return path.Join(b.prefix, p)
}

func (b *S3Backend) uri(key string) string {
	return "s3://" + b.bucket + "/" + key
}

// keyFromURI strips the scheme and bucket from an s3:// uri.
func (b *S3Backend) keyFromURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "s3://"+b.bucket+"/")
	if !ok || rest == "" {
		return "", fmt.Errorf("artifact %q is not in bucket %s", uri, b.bucket)
	}
	return rest, nil
}

// Put uploads one artifact. Objects under runs/{id}/ carry the run id as
// metadata so the bucket can be audited without the service.
func (b *S3Backend) Put(ctx context.Context, p string, data io.Reader, contentType string) (*ArtifactRef, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	sum := checksum(content)
	meta := map[string]string{metaChecksum: sum}
	if runID := runIDFromPath(p); runID != "" {
		meta[metaRunID] = runID
	}

	key := b.key(p)
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(content))),
		Metadata:      meta,
	})
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", key, err)
	}

	return &ArtifactRef{
		URI:         b.uri(key),
		ContentType: contentType,
		Size:        int64(len(content)),
		Checksum:    sum,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (b *S3Backend) Get(ctx context.Context, ref *ArtifactRef) (io.ReadCloser, error) {
	key, err := b.keyFromURI(ref.URI)
	if err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return out.Body, nil
}

func (b *S3Backend) List(ctx context.Context, prefix string) ([]*ArtifactRef, error) {
	full := b.key(prefix)
	if strings.HasSuffix(prefix, "/") && !strings.HasSuffix(full, "/") {
		full += "/"
	}

	var refs []*ArtifactRef
	pages := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(full),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			refs = append(refs, &ArtifactRef{
				URI:         b.uri(key),
				ContentType: contentTypeFor(key),
				Size:        aws.ToInt64(obj.Size),
				CreatedAt:   aws.ToTime(obj.LastModified),
			})
		}
	}
	return refs, nil
}

func (b *S3Backend) PresignGet(ctx context.Context, ref *ArtifactRef, expiry time.Duration) (string, error) {
	key, err := b.keyFromURI(ref.URI)
	if err != nil {
		return "", err
	}
	req, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// runIDFromPath returns the id segment of "runs/{id}/...", or "".
func runIDFromPath(p string) string {
	rest, ok := strings.CutPrefix(p, "runs/")
	if !ok {
		return ""
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return id
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
