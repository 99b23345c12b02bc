package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"monasterywatch/internal/config"
	"monasterywatch/internal/ids"
)

// ObjectStore wraps the MinIO client behind the narrow blob contract the
// rest of the service needs: put bytes, get bytes, stream bytes, remove.
// Keys are opaque to callers.
type ObjectStore struct {
	client *minio.Client
	cfg    config.StorageConfig
}

// ObjectInfo carries the stored metadata a streaming response needs.
type ObjectInfo struct {
	ContentType string
	Size        int64
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ObjectStore{
		client: client,
		cfg:    cfg,
	}, nil
}

func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.BucketImages)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.cfg.BucketImages, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.BucketImages, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.cfg.BucketImages, err)
		}
	}
	return nil
}

// Put stores data under a fresh date-prefixed key and returns the key.
func (s *ObjectStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	key := s.buildObjectKey()

	_, err := s.client.PutObject(ctx, s.cfg.BucketImages, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

// Get fetches the full object into memory. The scorer needs whole buffers,
// so there is no point streaming here.
func (s *ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.BucketImages, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// GetStream opens the object for streaming and stats it so the caller can
// set Content-Type and Content-Length before copying.
func (s *ObjectStore) GetStream(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.BucketImages, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("get object: %w", err)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat object %s: %w", key, err)
	}

	return obj, ObjectInfo{ContentType: stat.ContentType, Size: stat.Size}, nil
}

// Remove deletes the object. Removing a missing key is not an error.
func (s *ObjectStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.BucketImages, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// IsNotFound reports whether err is the object store saying the key does
// not exist.
func IsNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
	}
	return false
}

func (s *ObjectStore) buildObjectKey() string {
	datePrefix := time.Now().UTC().Format("2006/01/02")
	return path.Join(datePrefix, ids.New())
}
