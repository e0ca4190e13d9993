package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/digicoders/feeledger/internal"
	"github.com/google/uuid"
)

// OSSStore keeps attachments in an Alibaba Cloud OSS bucket. The object key is the storage id.
type OSSStore struct {
	bucket     *oss.Bucket
	bucketName string
	endpoint   string
	prefix     string
	publicBase string
	maxBytes   int64
	logger     *slog.Logger
}

func NewOSSStore(cfg internal.StorageConfig, logger *slog.Logger) (*OSSStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := cfg.OSS
	if o.Endpoint == "" || o.Bucket == "" || o.AccessKeyID == "" || o.AccessKeySecret == "" {
		return nil, errors.New("oss store requires endpoint, bucket and access keys")
	}

	var opts []oss.ClientOption
	if o.SecurityToken != "" {
		opts = append(opts, oss.SecurityToken(o.SecurityToken))
	}
	client, err := oss.New(o.Endpoint, o.AccessKeyID, o.AccessKeySecret, opts...)
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}
	bucket, err := client.Bucket(o.Bucket)
	if err != nil {
		return nil, fmt.Errorf("client.Bucket: %w", err)
	}

	return &OSSStore{
		bucket:     bucket,
		bucketName: o.Bucket,
		endpoint:   o.Endpoint,
		prefix:     strings.Trim(o.Prefix, "/"),
		publicBase: strings.TrimRight(o.PublicBaseURL, "/"),
		maxBytes:   cfg.MaxUploadBytes,
		logger:     logger,
	}, nil
}

func (s *OSSStore) Upload(ctx context.Context, filename, contentType string, content io.Reader) (*StoredFile, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, internal.NewValidationFieldError("image", "image must be a jpg, png, webp or pdf file", internal.ErrCodeValidationFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader := content
	if s.maxBytes > 0 {
		reader = io.LimitReader(content, s.maxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	if s.maxBytes > 0 && int64(len(body)) > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	key := s.objectKey(uuid.NewString() + ext)
	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentDisposition("inline"),
		oss.CacheControl("public, max-age=31536000, immutable"),
	}
	if contentType != "" {
		opts = append(opts, oss.ContentType(contentType))
	}
	if err := s.bucket.PutObject(key, bytes.NewReader(body), opts...); err != nil {
		return nil, fmt.Errorf("failed to put object: %w", err)
	}

	s.logger.Debug("attachment stored", "storage_id", key, "bucket", s.bucketName, "bytes", len(body))
	return &StoredFile{
		URL:       s.PublicURL(key),
		StorageID: key,
	}, nil
}

// Delete removes an object. Missing objects are not an error.
func (s *OSSStore) Delete(ctx context.Context, storageID string) error {
	if storageID == "" || strings.Contains(storageID, "..") {
		return fmt.Errorf("invalid storage id %q", storageID)
	}
	if err := s.bucket.DeleteObject(storageID, oss.WithContext(ctx)); err != nil {
		var se oss.ServiceError
		if errors.As(err, &se) && se.StatusCode == 404 {
			return nil
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// PublicURL is where an object key is served from, preferring the configured CDN base.
func (s *OSSStore) PublicURL(key string) string {
	if s.publicBase != "" {
		return s.publicBase + "/" + key
	}
	host := strings.TrimPrefix(strings.TrimPrefix(s.endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", s.bucketName, host, key)
}

func (s *OSSStore) objectKey(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}
