package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BerylCAtieno/iac-workitem-api/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type s3Storage struct {
	client     *minio.Client
	bucketName string
}

func NewS3Storage(ctx context.Context, cfg *config.Config) (Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	// Ensure bucket exists
	exists, err := client.BucketExists(ctx, cfg.S3BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.S3BucketName, minio.MakeBucketOptions{Region: cfg.S3Region})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &s3Storage{
		client:     client,
		bucketName: cfg.S3BucketName,
	}, nil
}

func (s *s3Storage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(
		ctx,
		s.bucketName,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{
			ContentType: contentType,
		},
	)
	if err != nil {
		return classify(fmt.Errorf("failed to upload %s: %w", key, err))
	}

	return nil
}

func (s *s3Storage) Download(ctx context.Context, key string) (*Object, error) {
	object, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get %s: %w", key, err))
	}
	defer object.Close()

	// GetObject is lazy; Stat surfaces NoSuchKey.
	info, err := object.Stat()
	if err != nil {
		return nil, classify(fmt.Errorf("failed to stat %s: %w", key, err))
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(object); err != nil {
		return nil, classify(fmt.Errorf("failed to read %s: %w", key, err))
	}

	return &Object{Data: buf.Bytes(), ContentType: info.ContentType}, nil
}

func (s *s3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, classify(fmt.Errorf("failed to list %s: %w", prefix, obj.Err))
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *s3Storage) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objects <- minio.ObjectInfo{Key: key}
	}
	close(objects)

	var errs []error
	for rErr := range s.client.RemoveObjects(ctx, s.bucketName, objects, minio.RemoveObjectsOptions{}) {
		if rErr.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rErr.ObjectName, rErr.Err))
		}
	}
	if len(errs) > 0 {
		return classify(fmt.Errorf("failed to delete %d of %d objects: %w", len(errs), len(keys), errors.Join(errs...)))
	}

	return nil
}

// classify maps minio error responses onto ErrNotFound and TransientError.
func classify(err error) error {
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return err
	}
	switch {
	case resp.Code == "NoSuchKey":
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case resp.Code == "SlowDown" || resp.Code == "RequestTimeout" || resp.StatusCode >= http.StatusInternalServerError:
		return &TransientError{Err: err}
	}
	return err
}
