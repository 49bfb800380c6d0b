package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-review-api/internal/models"
)

// CallLogRepository stores the audit trail of a pipeline run.
type CallLogRepository interface {
	RecordCall(ctx context.Context, entry *models.ExternalCallLog) error
	ListCallsByTrace(ctx context.Context, traceID string) ([]models.ExternalCallLog, error)
	UpsertRequest(ctx context.Context, entry *models.RequestLog) error
	GetRequest(ctx context.Context, traceID string) (models.RequestLog, error)
}

// NewCallLogRepository constructs a call log repository.
func NewCallLogRepository(db *gorm.DB) CallLogRepository {
	return &callLogRepository{db: db}
}

type callLogRepository struct {
	db *gorm.DB
}

func (r *callLogRepository) RecordCall(ctx context.Context, entry *models.ExternalCallLog) error {
	if entry == nil {
		return errors.New("call log entry is nil")
	}
	return conn(ctx, r.db).Create(entry).Error
}

func (r *callLogRepository) ListCallsByTrace(ctx context.Context, traceID string) ([]models.ExternalCallLog, error) {
	var items []models.ExternalCallLog
	if err := conn(ctx, r.db).
		Where("trace_id = ?", traceID).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpsertRequest writes the run level record; a second write for the same trace id replaces it.
func (r *callLogRepository) UpsertRequest(ctx context.Context, entry *models.RequestLog) error {
	if entry == nil {
		return errors.New("request log entry is nil")
	}
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trace_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"submission_id", "stage", "success", "latency_ms", "error_message", "log_info", "updated_at"}),
	}).Create(entry).Error
}

func (r *callLogRepository) GetRequest(ctx context.Context, traceID string) (models.RequestLog, error) {
	var entry models.RequestLog
	if err := conn(ctx, r.db).Where("trace_id = ?", traceID).Take(&entry).Error; err != nil {
		return models.RequestLog{}, err
	}
	return entry, nil
}
