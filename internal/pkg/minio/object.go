package minio

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
}

// StatObject returns object metadata, wrapping a missing key as ErrObjectNotFound
func (c *Client) StatObject(ctx context.Context, key string) (ObjectInfo, error) {
	if err := c.checkClosed(); err != nil {
		return ObjectInfo{}, err
	}

	info, err := c.client.StatObject(ctx, c.config.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if IsNotFound(err) {
			return ObjectInfo{}, WrapError("StatObject", ErrObjectNotFound, c.config.Bucket, key)
		}
		return ObjectInfo{}, WrapError("StatObject", err, c.config.Bucket, key)
	}

	return ObjectInfo{
		Key:         info.Key,
		Size:        info.Size,
		ContentType: info.ContentType,
		ETag:        info.ETag,
	}, nil
}

// GetObject opens key for reading. The object is stat'ed first so a missing
// key fails here rather than on the first Read.
func (c *Client) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	obj, err := c.client.GetObject(ctx, c.config.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, WrapError("GetObject", err, c.config.Bucket, key)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if IsNotFound(err) {
			return nil, WrapError("GetObject", ErrObjectNotFound, c.config.Bucket, key)
		}
		return nil, WrapError("GetObject", err, c.config.Bucket, key)
	}

	c.logger.Debug("object opened", zap.String("bucket", c.config.Bucket), zap.String("key", key))
	return obj, nil
}
