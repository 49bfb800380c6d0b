package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// CloudinaryConfig contains credentials required to talk to Cloudinary.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// CloudinaryStore uploads renditions as Cloudinary video assets. Audio is stored under the video
// resource type, as Cloudinary requires.
type CloudinaryStore struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// NewCloudinaryStore constructs a Cloudinary backed store.
func NewCloudinaryStore(cfg CloudinaryConfig, logger zerolog.Logger) (*CloudinaryStore, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &CloudinaryStore{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Name identifies the provider in call logs.
func (s *CloudinaryStore) Name() string { return "cloudinary" }

// Upload sends the file and returns its secure URL plus a signed delivery URL.
func (s *CloudinaryStore) Upload(ctx context.Context, localPath, objectKey string) (Object, error) {
	publicID := buildPublicID(objectKey)
	overwrite := true

	result, err := s.client.Upload.Upload(ctx, localPath, uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     publicID,
		ResourceType: "video",
		Overwrite:    &overwrite,
	})
	if err != nil {
		return Object{}, fmt.Errorf("failed to upload asset: %w", err)
	}
	if result.Error.Message != "" {
		return Object{}, fmt.Errorf("failed to upload asset: %s", result.Error.Message)
	}

	asset, err := s.client.Video(result.PublicID)
	if err != nil {
		return Object{}, fmt.Errorf("failed to build asset url: %w", err)
	}
	asset.Config.URL.SignURL = true
	asset.Config.URL.Secure = true
	signed, err := asset.String()
	if err != nil {
		return Object{}, fmt.Errorf("failed to sign asset url: %w", err)
	}

	s.logger.Info().Str("public_id", result.PublicID).Int("bytes", result.Bytes).Msg("file uploaded to cloudinary")

	return Object{
		RemoteURL: result.SecureURL,
		SignedURL: signed,
		ByteSize:  int64(result.Bytes),
	}, nil
}

func buildPublicID(objectKey string) string {
	base := filepath.Base(objectKey)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "upload"
	}
	return base
}
