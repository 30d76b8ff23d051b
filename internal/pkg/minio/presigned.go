package minio

import (
	"context"
	"fmt"
	"mime"
	"net/url"

	"go.uber.org/zap"
)

// PresignedGetObject returns a time-limited GET URL for key. A non-empty
// filename is sent back as the attachment name.
func (c *Client) PresignedGetObject(ctx context.Context, key, filename string) (*url.URL, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, WrapError("PresignedGetObject", ErrInvalidArgument, c.config.Bucket, key)
	}

	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", AttachmentDisposition(filename))
	}

	u, err := c.client.PresignedGetObject(ctx, c.config.Bucket, key, c.config.PresignExpiry, params)
	if err != nil {
		return nil, WrapError("PresignedGetObject", err, c.config.Bucket, key)
	}

	c.logger.Debug("presigned GET URL generated",
		zap.String("key", key),
		zap.Duration("expiry", c.config.PresignExpiry),
	)
	return u, nil
}

// AttachmentDisposition builds a Content-Disposition value for filename
func AttachmentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return fmt.Sprintf("attachment; filename=%q", filename)
}
