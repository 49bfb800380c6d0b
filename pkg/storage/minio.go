package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinioOpts configures a MinioStore.
type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	useSSL          bool
	expiry          time.Duration
	logger          zerolog.Logger
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) { c.endpoint = endpoint }
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) { c.bucket = bucket }
}

func WithCredentials(accessKey, secretAccessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
		c.secretAccessKey = secretAccessKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) { c.useSSL = useSSL }
}

func WithSignedURLExpiry(expiry time.Duration) MinioOpts {
	return func(c *minioConfig) { c.expiry = expiry }
}

func WithLogger(logger zerolog.Logger) MinioOpts {
	return func(c *minioConfig) { c.logger = logger }
}

// MinioStore uploads renditions to an S3 compatible bucket.
type MinioStore struct {
	cfg    *minioConfig
	client *minio.Client
	logger zerolog.Logger
}

// NewMinioStore builds a store from opts. The bucket must already exist.
func NewMinioStore(opts ...MinioOpts) (*MinioStore, error) {
	cfg := &minioConfig{expiry: DefaultSignedURLExpiry, logger: zerolog.Nop()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.endpoint == "" || cfg.bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket must be provided")
	}
	if cfg.expiry <= 0 {
		cfg.expiry = DefaultSignedURLExpiry
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio: %w", err)
	}

	return &MinioStore{
		cfg:    cfg,
		client: client,
		logger: cfg.logger.With().Str("component", "minio").Logger(),
	}, nil
}

// Name identifies the provider in call logs.
func (s *MinioStore) Name() string { return "minio" }

// Upload puts the file and presigns a GET URL valid for the configured expiry.
func (s *MinioStore) Upload(ctx context.Context, localPath, objectKey string) (Object, error) {
	info, err := s.client.FPutObject(ctx, s.cfg.bucket, objectKey, localPath, minio.PutObjectOptions{
		ContentType: contentTypeFor(localPath),
	})
	if err != nil {
		return Object{}, fmt.Errorf("failed to upload object: %w", err)
	}

	signed, err := s.client.PresignedGetObject(ctx, s.cfg.bucket, objectKey, s.cfg.expiry, url.Values{})
	if err != nil {
		return Object{}, fmt.Errorf("failed to sign object url: %w", err)
	}

	s.logger.Info().Str("bucket", s.cfg.bucket).Str("key", objectKey).Int64("bytes", info.Size).Msg("object uploaded to minio")

	return Object{
		RemoteURL: s.remoteURL(objectKey),
		SignedURL: signed.String(),
		ByteSize:  info.Size,
	}, nil
}

func (s *MinioStore) remoteURL(objectKey string) string {
	endpoint := s.client.EndpointURL()
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(endpoint.String(), "/"), s.cfg.bucket, strings.TrimLeft(objectKey, "/"))
}
