package models

import (
	"time"

	"gorm.io/datatypes"
)

// ExternalCallLog records one call to an external collaborator (transcoder, storage, AI provider).
type ExternalCallLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TraceID      string    `gorm:"size:128;not null;index" json:"trace_id"`
	Provider     string    `gorm:"size:32;not null" json:"provider"`
	Operation    string    `gorm:"size:64;not null" json:"operation"`
	Description  string    `gorm:"size:255" json:"description"`
	Success      bool      `gorm:"not null" json:"success"`
	LatencyMs    int64     `gorm:"not null;default:0" json:"latency_ms"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}

// RequestLog is the per-run audit record, one row per trace id.
type RequestLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	TraceID      string            `gorm:"size:128;not null;uniqueIndex" json:"trace_id"`
	SubmissionID *uint             `gorm:"index" json:"submission_id"`
	Stage        string            `gorm:"size:32;not null" json:"stage"`
	Success      bool              `gorm:"not null" json:"success"`
	LatencyMs    int64             `gorm:"not null;default:0" json:"latency_ms"`
	ErrorMessage string            `gorm:"type:text" json:"error_message"`
	LogInfo      datatypes.JSONMap `gorm:"type:json" json:"log_info"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
