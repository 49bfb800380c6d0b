package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-api/internal/models"
)

// ErrDuplicateSubmission is returned when the (student, component type) pair already exists.
var ErrDuplicateSubmission = errors.New("submission already exists for student and component type")

// SubmissionRepository exposes persistence helpers for essay submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetDetailed(ctx context.Context, id uint) (models.Submission, error)
	FindByStudentAndComponent(ctx context.Context, studentID uint, componentType string) (*models.Submission, error)
	MarkCompleted(ctx context.Context, id uint, score int, feedback string, highlights []string) error
	MarkFailed(ctx context.Context, id uint) error
	MarkRetried(ctx context.Context, id uint) error
	ClaimRetry(ctx context.Context, id uint) (bool, error)
	ListRetryCandidates(ctx context.Context, limit int) ([]models.Submission, error)
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.Status == "" {
		submission.Status = models.SubmissionStatusPending
	}
	if err := conn(ctx, r.db).Create(submission).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSubmission
		}
		return err
	}
	return nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := conn(ctx, r.db).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetDetailed(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	err := conn(ctx, r.db).
		Preload("Media", func(db *gorm.DB) *gorm.DB { return db.Order("media_type ASC") }).
		Preload("Revisions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&submission, id).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) FindByStudentAndComponent(ctx context.Context, studentID uint, componentType string) (*models.Submission, error) {
	var submission models.Submission
	err := conn(ctx, r.db).
		Where("student_id = ? AND component_type = ?", studentID, componentType).
		Take(&submission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &submission, nil
}

func (r *submissionRepository) MarkCompleted(ctx context.Context, id uint, score int, feedback string, highlights []string) error {
	if highlights == nil {
		highlights = []string{}
	}
	return r.update(ctx, id, map[string]interface{}{
		"status":     models.SubmissionStatusCompleted,
		"score":      score,
		"feedback":   feedback,
		"highlights": datatypes.NewJSONSlice(highlights),
	})
}

func (r *submissionRepository) MarkFailed(ctx context.Context, id uint) error {
	return r.update(ctx, id, map[string]interface{}{
		"status": models.SubmissionStatusFailed,
	})
}

func (r *submissionRepository) MarkRetried(ctx context.Context, id uint) error {
	return r.update(ctx, id, map[string]interface{}{
		"retried": true,
	})
}

// ClaimRetry sets retried only when it is still false and reports whether this call set it.
func (r *submissionRepository) ClaimRetry(ctx context.Context, id uint) (bool, error) {
	result := conn(ctx, r.db).Model(&models.Submission{}).
		Where("id = ? AND retried = ?", id, false).
		Update("retried", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *submissionRepository) ListRetryCandidates(ctx context.Context, limit int) ([]models.Submission, error) {
	query := conn(ctx, r.db).
		Where("status = ? AND retried = ?", models.SubmissionStatusFailed, false).
		Where("EXISTS (SELECT 1 FROM submission_media m WHERE m.submission_id = submissions.id AND m.media_type = ?)", models.MediaTypeVideo).
		Where("EXISTS (SELECT 1 FROM submission_media m WHERE m.submission_id = submissions.id AND m.media_type = ?)", models.MediaTypeAudio).
		Order("updated_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var submissions []models.Submission
	if err := query.Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) update(ctx context.Context, id uint, values map[string]interface{}) error {
	result := conn(ctx, r.db).Model(&models.Submission{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
}
