package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"reviwa-server/internal/domain"
)

// Store is the media storage collaborator: report photos go in, a public URL
// and a storage id come out. Failures are the caller's problem to tolerate.
type Store interface {
	Upload(ctx context.Context, content []byte, contentType string) (domain.Image, error)
	Delete(ctx context.Context, storageID string) error
}

// Config holds S3 connection settings.
type Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	PublicURL string // base URL for serving objects; endpoint/bucket if empty
}

// Configured reports whether the minimum S3 settings are present.
func (c Config) Configured() bool {
	return c.Bucket != "" && c.Region != "" && c.AccessKey != "" && c.SecretKey != ""
}

// S3Store stores report images in an S3 bucket.
type S3Store struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

// NewS3Store builds an S3-backed media store.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithBaseEndpoint(cfg.Endpoint),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "")))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}

	return &S3Store{
		client:    s3.NewFromConfig(awsCfg),
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// Upload stores one image under a unique key and returns its public URL.
func (s *S3Store) Upload(ctx context.Context, content []byte, contentType string) (domain.Image, error) {
	key := fmt.Sprintf("reports/%d_%s", time.Now().Unix(), uuid.New().String())

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return domain.Image{}, fmt.Errorf("failed to upload image: %w", err)
	}

	return domain.Image{
		URL:       s.publicURL + "/" + key,
		StorageID: key,
	}, nil
}

// Delete removes a stored image by its storage id.
func (s *S3Store) Delete(ctx context.Context, storageID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storageID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete image %s: %w", storageID, err)
	}
	return nil
}
