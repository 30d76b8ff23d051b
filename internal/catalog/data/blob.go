package data

import (
	"context"
	"fmt"
	"io"

	"github.com/lk2023060901/file-catalog/internal/catalog/biz"
	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	pkgminio "github.com/lk2023060901/file-catalog/internal/pkg/minio"
	pkgs3 "github.com/lk2023060901/file-catalog/internal/pkg/s3"
	"go.uber.org/zap"
)

// MinIOBlobStore 从 MinIO 读取文件内容
type MinIOBlobStore struct {
	client *pkgminio.Client
	logger *logger.Logger
}

func NewMinIOBlobStore(client *pkgminio.Client, log *logger.Logger) *MinIOBlobStore {
	return &MinIOBlobStore{client: client, logger: log.Named("minio_blobs")}
}

// Open 打开对象，对象不存在时返回 biz.ErrBlobNotFound
func (s *MinIOBlobStore) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	rc, err := s.client.GetObject(ctx, locator)
	if err != nil {
		return nil, s.mapError(ctx, "open", locator, err)
	}
	return rc, nil
}

// PresignGet 确认对象存在后生成带文件名的临时下载地址，避免重定向到 404
func (s *MinIOBlobStore) PresignGet(ctx context.Context, locator, filename string) (string, error) {
	if _, err := s.client.StatObject(ctx, locator); err != nil {
		return "", s.mapError(ctx, "stat", locator, err)
	}
	u, err := s.client.PresignedGetObject(ctx, locator, filename)
	if err != nil {
		return "", s.mapError(ctx, "presign", locator, err)
	}
	return u.String(), nil
}

func (s *MinIOBlobStore) mapError(ctx context.Context, op, locator string, err error) error {
	log := s.logger.WithContext(ctx).With(zap.String("op", op), zap.String("key", locator))
	switch {
	case pkgminio.IsNotFound(err):
		return fmt.Errorf("%w: %s", biz.ErrBlobNotFound, locator)
	case pkgminio.IsAccessDenied(err):
		log.Error("storage denied access, check credentials", zap.Error(err))
	default:
		log.Warn("storage request failed", zap.Error(err))
	}
	return fmt.Errorf("%w: %w", biz.ErrTransport, err)
}

// S3BlobStore 从 S3 兼容存储（如 R2）读取文件内容
type S3BlobStore struct {
	client *pkgs3.Client
	logger *logger.Logger
}

func NewS3BlobStore(client *pkgs3.Client, log *logger.Logger) *S3BlobStore {
	return &S3BlobStore{client: client, logger: log.Named("s3_blobs")}
}

func (s *S3BlobStore) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	rc, _, err := s.client.GetObject(ctx, locator)
	if err != nil {
		if pkgs3.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", biz.ErrBlobNotFound, locator)
		}
		s.logger.WithContext(ctx).Warn("open object failed", zap.String("key", locator), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", biz.ErrTransport, err)
	}
	return rc, nil
}

func (s *S3BlobStore) PresignGet(ctx context.Context, locator, filename string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, locator, filename)
	if err != nil {
		return "", fmt.Errorf("%w: %w", biz.ErrTransport, err)
	}
	return u, nil
}
