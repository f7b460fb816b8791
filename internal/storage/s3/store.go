// Package s3 serves exemplar artifacts from any S3-compatible endpoint
// (MinIO, AWS S3) through minio-go.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sqlchat/sqlchat/internal/storage"
)

type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
	// CreateBucket makes New create a missing bucket. Only publishers set it.
	CreateBucket bool
}

// objectAPI is the minio surface the store calls, addressed by Location.
type objectAPI interface {
	PutObject(ctx context.Context, loc storage.Location, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	GetObject(ctx context.Context, loc storage.Location) (io.ReadCloser, error)
	StatObject(ctx context.Context, loc storage.Location) (storage.ObjectInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
}

// Store implements storage.ObjectStore for a single bucket, optionally
// scoped below a key prefix.
type Store struct {
	api    objectAPI
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	switch {
	case strings.TrimSpace(cfg.Endpoint) == "":
		return nil, errors.New("s3: endpoint is required")
	case bucket == "":
		return nil, errors.New("s3: bucket is required")
	}

	host, secure, err := endpointHost(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: new client for %s: %w", host, err)
	}

	store := newStore(minioAPI{client}, bucket, cfg.Prefix)
	if cfg.CreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(api objectAPI, bucket, prefix string) *Store {
	prefix = path.Clean("/" + strings.TrimSpace(prefix))[1:]
	return &Store{api: api, bucket: bucket, prefix: prefix}
}

func (s *Store) Bucket() string {
	return s.bucket
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	loc, err := s.locate(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.api.PutObject(ctx, loc, body, size, opts.ContentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("s3: put %s: %w", loc, err)
	}
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	loc, err := s.locate(key)
	if err != nil {
		return nil, err
	}
	rc, err := s.api.GetObject(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("s3: get %s: %w", loc, err)
	}
	return rc, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	loc, err := s.locate(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.api.StatObject(ctx, loc)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("s3: stat %s: %w", loc, err)
	}
	return info, nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	ok, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("s3: look up bucket %s: %w", s.bucket, err)
	}
	if ok {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("s3: make bucket %s: %w", s.bucket, err)
	}
	return nil
}

// locate maps a caller key to its full location, refusing keys that are
// empty or climb out of the prefix.
func (s *Store) locate(key string) (storage.Location, error) {
	trimmed := strings.Trim(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return storage.Location{}, errors.New("s3: object key is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return storage.Location{}, fmt.Errorf("s3: object key %q escapes the bucket prefix", key)
	}
	return storage.Location{Bucket: s.bucket, Key: path.Join(s.prefix, cleaned)}, nil
}

// endpointHost accepts host:port or an http(s) URL. An https URL forces TLS.
func endpointHost(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("s3: endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("s3: endpoint %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("s3: endpoint %q has no host", raw)
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, useSSL, nil
	}
	return "", false, fmt.Errorf("s3: endpoint scheme %q is not http or https", u.Scheme)
}

type minioAPI struct {
	client *minio.Client
}

func (m minioAPI) PutObject(ctx context.Context, loc storage.Location, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	up, err := m.client.PutObject(ctx, loc.Bucket, loc.Key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, translate(err)
	}
	return storage.ObjectInfo{Key: up.Key, Size: up.Size, ETag: up.ETag, LastModified: up.LastModified}, nil
}

func (m minioAPI) GetObject(ctx context.Context, loc storage.Location) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	// GetObject does no I/O until the first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, translate(err)
	}
	return obj, nil
}

func (m minioAPI) StatObject(ctx context.Context, loc storage.Location) (storage.ObjectInfo, error) {
	st, err := m.client.StatObject(ctx, loc.Bucket, loc.Key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, translate(err)
	}
	return storage.ObjectInfo{Key: st.Key, Size: st.Size, ETag: st.ETag, LastModified: st.LastModified}, nil
}

func (m minioAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := m.client.BucketExists(ctx, bucket)
	return ok, translate(err)
}

func (m minioAPI) MakeBucket(ctx context.Context, bucket, region string) error {
	return translate(m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}))
}

// translate turns minio's missing-object responses into storage.ErrObjectNotFound.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return fmt.Errorf("%w: %v", storage.ErrObjectNotFound, err)
	}
	return err
}
