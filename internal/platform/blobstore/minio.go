package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds the connection settings for an S3-compatible backend.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	MaxSize   int64
}

// MinIOBlobStore stores blobs in a single S3 bucket. File name, hash and page
// count travel as object user metadata so GetMetadata needs no database.
type MinIOBlobStore struct {
	client  *minio.Client
	bucket  string
	region  string
	maxSize int64
}

const (
	metaFileName  = "File-Name"
	metaHash      = "Sha256"
	metaPageCount = "Page-Count"
)

// NewMinIOBlobStore creates the client. Call EnsureBucket before first use.
func NewMinIOBlobStore(cfg MinIOConfig) (*MinIOBlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	return &MinIOBlobStore{client: client, bucket: cfg.Bucket, region: cfg.Region, maxSize: maxSize}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinIOBlobStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinIOBlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content, s.maxSize)
	if err != nil {
		return nil, err
	}

	userMeta := map[string]string{
		metaFileName: url.QueryEscape(meta.FileName),
		metaHash:     meta.Hash,
	}
	if meta.PageCount > 0 {
		userMeta[metaPageCount] = strconv.Itoa(meta.PageCount)
	}
	opts := minio.PutObjectOptions{
		ContentType:  meta.ContentType,
		UserMetadata: userMeta,
		UserTags:     meta.Tags,
	}
	if _, err := s.client.PutObject(ctx, s.bucket, meta.Key, bytes.NewReader(data), meta.Size, opts); err != nil {
		return nil, fmt.Errorf("put object %s: %w", meta.Key, err)
	}
	return &meta, nil
}

func (s *MinIOBlobStore) Download(ctx context.Context, key string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.GetMetadata(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, mapMinIOError(key, err)
	}
	return obj, meta, nil
}

func (s *MinIOBlobStore) Delete(ctx context.Context, key string) error {
	if _, err := s.GetMetadata(ctx, key); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func (s *MinIOBlobStore) GetMetadata(ctx context.Context, key string) (*BlobMetadata, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, mapMinIOError(key, err)
	}
	return metadataFromInfo(info), nil
}

// List returns the objects under prefix. Listing does not carry user
// metadata, so only key, size, content type and time are filled in.
func (s *MinIOBlobStore) List(ctx context.Context, prefix string) ([]*BlobMetadata, error) {
	var out []*BlobMetadata
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		out = append(out, &BlobMetadata{
			Key:         obj.Key,
			ContentType: obj.ContentType,
			Size:        obj.Size,
			CreatedAt:   obj.LastModified,
		})
	}
	return out, nil
}

// PresignDownload returns a time-limited GET URL for the object. The
// response is served as an attachment named fileName.
func (s *MinIOBlobStore) PresignDownload(ctx context.Context, key, fileName string, expiry time.Duration) (string, error) {
	params := url.Values{}
	if fileName != "" {
		params.Set("response-content-disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return u.String(), nil
}

func metadataFromInfo(info minio.ObjectInfo) *BlobMetadata {
	meta := &BlobMetadata{
		Key:         info.Key,
		ContentType: info.ContentType,
		Size:        info.Size,
		CreatedAt:   info.LastModified,
		FileName:    info.Key,
	}
	if name := info.UserMetadata[metaFileName]; name != "" {
		if decoded, err := url.QueryUnescape(name); err == nil {
			meta.FileName = decoded
		}
	}
	meta.Hash = info.UserMetadata[metaHash]
	if n, err := strconv.Atoi(info.UserMetadata[metaPageCount]); err == nil {
		meta.PageCount = n
	}
	return meta
}

func mapMinIOError(key string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && (resp.Code == "NoSuchKey" || resp.StatusCode == 404) {
		return ErrBlobNotFound
	}
	return fmt.Errorf("object %s: %w", key, err)
}
