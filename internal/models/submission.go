package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission lifecycle states.
const (
	SubmissionStatusPending   = "PENDING"
	SubmissionStatusCompleted = "COMPLETED"
	SubmissionStatusFailed    = "FAILED"
)

// Submission is one essay-plus-video review request from a student for a component type.
type Submission struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	StudentID     uint                        `gorm:"not null;uniqueIndex:idx_submissions_student_component" json:"student_id"`
	ComponentType string                      `gorm:"size:128;not null;uniqueIndex:idx_submissions_student_component" json:"component_type"`
	Text          string                      `gorm:"type:text;not null" json:"text"`
	Status        string                      `gorm:"size:16;not null;index" json:"status"`
	Score         *int                        `json:"score"`
	Feedback      *string                     `gorm:"type:text" json:"feedback"`
	Highlights    datatypes.JSONSlice[string] `json:"highlights"`
	Retried       bool                        `gorm:"not null;default:false" json:"retried"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
	Media         []SubmissionMedia           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"media,omitempty"`
	Revisions     []Revision                  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"revisions,omitempty"`
}

// IsCompleted reports whether the submission finished with a full evaluation.
func (s Submission) IsCompleted() bool {
	return s.Status == SubmissionStatusCompleted && s.Score != nil && s.Feedback != nil && s.Highlights != nil
}

// IsFailed reports whether the last pipeline run for the submission failed.
func (s Submission) IsFailed() bool {
	return s.Status == SubmissionStatusFailed
}

// MediaOfType returns the loaded media row of the given type, if present.
func (s Submission) MediaOfType(mediaType string) (SubmissionMedia, bool) {
	for _, media := range s.Media {
		if media.MediaType == mediaType {
			return media, true
		}
	}
	return SubmissionMedia{}, false
}
