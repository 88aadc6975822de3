package blob

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures an S3-compatible bucket (AWS S3, R2, MinIO).
type S3Options struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// objectAPI is the subset of the minio client used by S3Store.
type objectAPI interface {
	stat(ctx context.Context, bucket, key string) error
	get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	remove(ctx context.Context, bucket, key string) error
}

// minioAPI adapts *minio.Client to objectAPI.
type minioAPI struct {
	client *minio.Client
}

func (m *minioAPI) stat(ctx context.Context, bucket, key string) error {
	_, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	return err
}

func (m *minioAPI) get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing key before the first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func (m *minioAPI) put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (m *minioAPI) remove(ctx context.Context, bucket, key string) error {
	return m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

// S3Store is a Store backed by an S3-compatible bucket.
type S3Store struct {
	api    objectAPI
	bucket string
}

// NewS3Store connects to the endpoint and checks that the bucket exists.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("blob: connect %s: %w", opts.Endpoint, err)
	}
	ok, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("blob: check bucket %s: %w", opts.Bucket, err)
	}
	if !ok {
		return nil, fmt.Errorf("blob: bucket %s does not exist", opts.Bucket)
	}
	return &S3Store{api: &minioAPI{client: client}, bucket: opts.Bucket}, nil
}

// Exists reports whether key is in the bucket.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.api.stat(ctx, s.bucket, key); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("blob: stat %s: %w", key, err)
	}
	return true, nil
}

// Get opens key for reading.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.api.get(ctx, s.bucket, key)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("blob: get %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("blob: get %s: %w", key, err)
	}
	return rc, nil
}

// Put uploads size bytes from r under key.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	if err := s.api.put(ctx, s.bucket, key, r, size, ct); err != nil {
		return "", fmt.Errorf("blob: put %s: %w", key, err)
	}
	return key, nil
}

// Delete removes key. S3 treats deleting a missing key as success.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := s.api.remove(ctx, s.bucket, key); err != nil && !isNotFound(err) {
		return fmt.Errorf("blob: delete %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}
