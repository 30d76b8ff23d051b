package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

var ErrObjectNotFound = errors.New("s3: object not found")

// Client is an S3 client bound to one bucket
type Client struct {
	api     *awss3.Client
	presign *awss3.PresignClient
	config  *Config
	logger  *zap.Logger
}

// NewClient builds a client with static credentials and an optional custom endpoint
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("s3: config is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	awsCfg := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Region:      cfg.Region,
	}
	api := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Info("s3 client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket),
		zap.String("region", cfg.Region),
	)

	return &Client{
		api:     api,
		presign: awss3.NewPresignClient(api),
		config:  cfg,
		logger:  logger,
	}, nil
}

func (c *Client) Bucket() string {
	return c.config.Bucket
}

// Ping checks that the bucket is reachable with the configured credentials
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(c.config.Bucket)})
	if err != nil {
		return fmt.Errorf("s3: head bucket %s: %w", c.config.Bucket, err)
	}
	return nil
}

// GetObject opens key for reading
func (c *Client) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	out, err := c.api.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, c.wrap("GetObject", key, err)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

// Exists reports whether key is present in the bucket
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.api.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, c.wrap("HeadObject", key, err)
	}
	return true, nil
}

// PresignedGetObject returns a time-limited download URL. A non-empty
// filename is returned to the client as the attachment name.
func (c *Client) PresignedGetObject(ctx context.Context, key, filename string) (string, error) {
	in := &awss3.GetObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(key),
	}
	if filename != "" {
		in.ResponseContentDisposition = aws.String(mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}

	req, err := c.presign.PresignGetObject(ctx, in, awss3.WithPresignExpires(c.config.PresignExpiry))
	if err != nil {
		return "", c.wrap("PresignGetObject", key, err)
	}
	c.logger.Debug("presigned GET URL generated", zap.String("key", key), zap.Duration("expiry", c.config.PresignExpiry))
	return req.URL, nil
}

func (c *Client) wrap(op, key string, err error) error {
	if IsNotFound(err) {
		return fmt.Errorf("s3: %s bucket=%s key=%s: %w", op, c.config.Bucket, key, ErrObjectNotFound)
	}
	return fmt.Errorf("s3: %s bucket=%s key=%s: %w", op, c.config.Bucket, key, err)
}

// IsNotFound reports a missing object, whichever way the service phrased it
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrObjectNotFound) {
		return true
	}

	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
