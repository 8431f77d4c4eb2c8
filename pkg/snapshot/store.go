package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store persists a validated Snapshot somewhere an operator or dashboard can
// read it back from. The default implementation writes to local disk; an
// S3-backed implementation is available for deployments that serve
// snapshots out of a bucket instead.
type Store interface {
	Put(ctx context.Context, s Snapshot) error
}

// FileStore writes each snapshot to dir/<scenarioId>.json, the local
// default every CLI invocation falls back to when no remote store is
// configured.
type FileStore struct {
	dir string
}

// NewFileStore returns a Store rooted at dir, creating it if necessary.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: failed to create store directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Put writes s as indented JSON to <dir>/<scenarioId>.json, overwriting any
// prior snapshot for the same scenario.
func (f *FileStore) Put(_ context.Context, s Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: failed to marshal snapshot: %w", err)
	}
	path := filepath.Join(f.dir, fmt.Sprintf("%s.json", s.ScenarioID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: failed to write %s: %w", path, err)
	}
	return nil
}

// S3Store writes each snapshot as an object in an S3 bucket, under
// <prefix>/<scenarioId>.json, for deployments that serve the dashboard
// straight out of object storage instead of local disk.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store loads AWS configuration for region and wraps an S3 client
// bound to bucket. prefix is joined in front of every object key; an empty
// prefix writes directly under the bucket root.
func NewS3Store(ctx context.Context, region, bucket, prefix string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to load AWS configuration: %w", err)
	}
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.TrimSuffix(prefix, "/"),
	}, nil
}

// Put marshals s and uploads it as a single JSON object.
func (st *S3Store) Put(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("snapshot: failed to marshal snapshot: %w", err)
	}

	uploadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	key := fmt.Sprintf("%s.json", s.ScenarioID)
	if st.prefix != "" {
		key = st.prefix + "/" + key
	}

	_, err = st.client.PutObject(uploadCtx, &s3.PutObjectInput{
		Bucket:      aws.String(st.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(string(data)),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("snapshot: failed to upload %s to s3://%s: %w", key, st.bucket, err)
	}
	return nil
}
