package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-api/internal/models"
)

// ErrRevisionFinalized is returned when a terminal revision status would be overwritten.
var ErrRevisionFinalized = errors.New("revision already finalized")

// RevisionRepository persists retry attempts.
type RevisionRepository interface {
	Create(ctx context.Context, revision *models.Revision) error
	UpdateStatus(ctx context.Context, id uint, status string) error
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.Revision, error)
}

// NewRevisionRepository constructs a revision repository.
func NewRevisionRepository(db *gorm.DB) RevisionRepository {
	return &revisionRepository{db: db}
}

type revisionRepository struct {
	db *gorm.DB
}

func (r *revisionRepository) Create(ctx context.Context, revision *models.Revision) error {
	if revision.Status == "" {
		revision.Status = models.RevisionStatusPending
	}
	return conn(ctx, r.db).Create(revision).Error
}

// UpdateStatus moves a pending revision to status. Terminal revisions are left untouched.
func (r *revisionRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	db := conn(ctx, r.db)
	result := db.Model(&models.Revision{}).
		Where("id = ? AND status = ?", id, models.RevisionStatusPending).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var existing models.Revision
	if err := db.First(&existing, id).Error; err != nil {
		return err
	}
	return ErrRevisionFinalized
}

func (r *revisionRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.Revision, error) {
	var items []models.Revision
	if err := conn(ctx, r.db).
		Where("submission_id = ?", submissionID).
		Order("created_at ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
