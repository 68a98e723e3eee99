package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultGCSEndpoint is the S3-interoperable endpoint of Cloud Storage.
const DefaultGCSEndpoint = "storage.googleapis.com"

// objectClient is the subset of *minio.Client used by GCSStore.
type objectClient interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
}

// GCSStore moves files to and from gs:// locations through the XML API using
// HMAC interoperability keys.
type GCSStore struct {
	client objectClient
}

// NewGCSStore connects to endpoint with the given HMAC key pair.
func NewGCSStore(endpoint, accessID, secret string) (*GCSStore, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultGCSEndpoint
	}
	secure := true
	if strings.HasPrefix(endpoint, "http://") {
		secure = false
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(accessID, secret, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("gcs connection: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// UploadFile copies localPath to gs://bucket/object and returns that URI.
func (g *GCSStore) UploadFile(ctx context.Context, bucket, object, localPath string) (string, error) {
	if strings.TrimSpace(bucket) == "" || strings.TrimSpace(object) == "" {
		return "", errors.New("gcs: bucket and object are required")
	}
	opts := minio.PutObjectOptions{ContentType: MIMEForPath(localPath)}
	if _, err := g.client.FPutObject(ctx, bucket, object, localPath, opts); err != nil {
		return "", fmt.Errorf("gcs upload %s/%s: %w", bucket, object, err)
	}
	return "gs://" + bucket + "/" + object, nil
}

// DownloadToFile fetches a gs:// URI into localPath, creating parent directories.
func (g *GCSStore) DownloadToFile(ctx context.Context, uri, localPath string) error {
	bucket, key, err := ParseGSURI(uri)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("gcs: uri %q has no object key", uri)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("gcs: ensure directory: %w", err)
	}
	if err := g.client.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("gcs download %s: %w", uri, err)
	}
	return nil
}

// ParseGSURI splits gs://bucket/key. The key may be empty.
func ParseGSURI(uri string) (string, string, error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid gcs uri %q", uri)
	}
	rest := strings.TrimPrefix(uri, "gs://")
	if rest == "" {
		return "", "", fmt.Errorf("invalid gcs uri %q", uri)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid gcs uri %q", uri)
	}
	return bucket, key, nil
}
