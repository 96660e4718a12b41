package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned by every operation when storage credentials are absent.
var ErrNotConfigured = errors.New("object storage not configured")

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// S3 provides object operations on the recordings bucket. When credentials or
// the bucket are missing the client constructs in disabled mode and every
// operation returns ErrNotConfigured; callers check Enabled() up front.
type S3 struct {
	client *s3.Client
	cfg    S3Config
	logger *zap.Logger
}

// NewS3 creates an S3 client. A missing bucket or credentials yields a disabled
// client rather than an error so recording degrades instead of blocking startup.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RecordingsBucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		logger.Warn("object storage disabled (bucket or credentials not set)")
		return &S3{cfg: cfg, logger: logger}, nil
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	logger.Info("S3 client ready", zap.String("region", cfg.Region), zap.String("recordings_bucket", cfg.RecordingsBucket))
	return &S3{client: s3.NewFromConfig(awsCfg), cfg: cfg, logger: logger}, nil
}

// Enabled reports whether storage operations are available.
func (s *S3) Enabled() bool { return s != nil && s.client != nil }

// Bucket returns the recordings bucket name.
func (s *S3) Bucket() string { return s.cfg.RecordingsBucket }

// Region returns the configured AWS region.
func (s *S3) Region() string { return s.cfg.Region }

// Credentials returns the raw access key pair, handed to the egress provider
// so it can write the composite file into the bucket directly.
func (s *S3) Credentials() (accessKey, secretKey string) {
	return s.cfg.AccessKeyID, s.cfg.SecretAccessKey
}

// ArtifactKey returns the intermediate artifact object key:
// session-<sessionID>-<timestamp>.mp4, timestamp in UTC RFC3339 with ':' and '.'
// replaced by '-' so the key is portable.
func ArtifactKey(sessionID string, t time.Time) string {
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format(time.RFC3339))
	return fmt.Sprintf("session-%s-%s.mp4", sessionID, ts)
}

// Exists reports whether the object is still present in the recordings bucket.
func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	if !s.Enabled() {
		return false, ErrNotConfigured
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.RecordingsBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("head object: %w", err)
	}
	return true, nil
}

// Delete removes an object from the recordings bucket.
func (s *S3) Delete(ctx context.Context, key string) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.RecordingsBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// PresignGet returns a pre-signed GET URL for an object. Used as the source URL
// for the hosted platform's pull upload.
func (s *S3) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrNotConfigured
	}
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.RecordingsBucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}
