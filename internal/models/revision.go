package models

import "time"

// Revision lifecycle states.
const (
	RevisionStatusPending   = "PENDING"
	RevisionStatusCompleted = "COMPLETED"
	RevisionStatusFailed    = "FAILED"
)

// Revision is a retry attempt that re-runs the evaluation of an existing submission.
type Revision struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	Status       string    `gorm:"size:16;not null" json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsTerminal reports whether the revision reached a final state.
func (r Revision) IsTerminal() bool {
	return r.Status == RevisionStatusCompleted || r.Status == RevisionStatusFailed
}
