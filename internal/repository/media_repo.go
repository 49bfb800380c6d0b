package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-api/internal/models"
)

// ErrDuplicateMedia is returned when a media row of the same type already exists for a submission.
var ErrDuplicateMedia = errors.New("media already exists for submission and type")

// MediaRepository persists uploaded media renditions.
type MediaRepository interface {
	Create(ctx context.Context, media *models.SubmissionMedia) error
	FindBySubmissionAndType(ctx context.Context, submissionID uint, mediaType string) (*models.SubmissionMedia, error)
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmissionMedia, error)
}

// NewMediaRepository constructs a media repository.
func NewMediaRepository(db *gorm.DB) MediaRepository {
	return &mediaRepository{db: db}
}

type mediaRepository struct {
	db *gorm.DB
}

func (r *mediaRepository) Create(ctx context.Context, media *models.SubmissionMedia) error {
	if err := conn(ctx, r.db).Create(media).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateMedia
		}
		return err
	}
	return nil
}

func (r *mediaRepository) FindBySubmissionAndType(ctx context.Context, submissionID uint, mediaType string) (*models.SubmissionMedia, error) {
	var media models.SubmissionMedia
	err := conn(ctx, r.db).
		Where("submission_id = ? AND media_type = ?", submissionID, mediaType).
		Take(&media).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &media, nil
}

func (r *mediaRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmissionMedia, error) {
	var items []models.SubmissionMedia
	if err := conn(ctx, r.db).
		Where("submission_id = ?", submissionID).
		Order("media_type ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
