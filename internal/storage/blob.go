package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ErrNotStorageURL is returned for file URLs that do not point into object storage
var ErrNotStorageURL = errors.New("file url is not a storage object url")

var objectPrefixes = []string{
	"/storage/v1/object/public/",
	"/storage/v1/object/sign/",
	"/storage/v1/object/authenticated/",
	"/storage/v1/object/",
}

// ObjectLocation resolves the bucket and key behind a public storage URL such as
// https://<project>.supabase.co/storage/v1/object/public/<bucket>/<key>
func ObjectLocation(fileURL string) (bucket, key string, err error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid file url: %w", err)
	}

	rest, generic := "", false
	for i, prefix := range objectPrefixes {
		if strings.HasPrefix(u.Path, prefix) {
			rest = strings.TrimPrefix(u.Path, prefix)
			generic = i == len(objectPrefixes)-1
			break
		}
	}
	if rest == "" {
		return "", "", ErrNotStorageURL
	}

	bucket, key, ok := strings.Cut(rest, "/")
	if generic {
		switch bucket {
		case "public", "sign", "authenticated":
			// access mode segment without a bucket after it
			return "", "", ErrNotStorageURL
		}
	}
	if !ok || bucket == "" || key == "" {
		return "", "", ErrNotStorageURL
	}
	return bucket, key, nil
}

// BlobConfig for the S3-compatible object store holding uploaded audio
type BlobConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// BlobStore removes audio objects once their record is deleted
type BlobStore struct {
	client *minio.Client
	logger *zap.Logger
}

func NewBlobStore(cfg BlobConfig, logger *zap.Logger) (*BlobStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	logger.Info("Blob store initialized", zap.String("endpoint", cfg.Endpoint))
	return &BlobStore{client: client, logger: logger}, nil
}

// Remove deletes the object behind fileURL. Removing an absent object is not an error.
func (s *BlobStore) Remove(ctx context.Context, fileURL string) error {
	bucket, key, err := ObjectLocation(fileURL)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	s.logger.Info("Audio object removed", zap.String("bucket", bucket), zap.String("key", key))
	return nil
}
