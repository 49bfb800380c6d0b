package models

import "time"

// Media types stored per submission.
const (
	MediaTypeVideo = "VIDEO"
	MediaTypeAudio = "AUDIO"
)

// SubmissionMedia is an uploaded rendition of the submission recording. At most one row exists per
// submission and media type; rows are never updated.
type SubmissionMedia struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;uniqueIndex:idx_submission_media_type" json:"submission_id"`
	MediaType    string    `gorm:"size:8;not null;uniqueIndex:idx_submission_media_type" json:"media_type"`
	FileURL      string    `gorm:"type:text;not null" json:"file_url"`
	SignedURL    string    `gorm:"type:text" json:"signed_url"`
	ByteSize     int64     `gorm:"not null;default:0" json:"byte_size"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName keeps the singular table name used by the media queries.
func (SubmissionMedia) TableName() string {
	return "submission_media"
}
