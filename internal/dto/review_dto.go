package dto

import (
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/gema-review-api/internal/evaluation"
	"github.com/noah-isme/gema-review-api/internal/models"
	"github.com/noah-isme/gema-review-api/internal/service"
)

var highlightPolicy = newHighlightPolicy()

func newHighlightPolicy() *bluemonday.Policy {
	policy := bluemonday.NewPolicy()
	policy.AllowElements("b")
	return policy
}

// ReviewCreateRequest describes the text fields of the multipart review upload. The video file
// travels as the "video" form file.
type ReviewCreateRequest struct {
	ComponentType string `form:"component_type" validate:"required,max=128"`
	Text          string `form:"text" validate:"required"`
}

// ReviewMediaResponse serializes one uploaded rendition.
type ReviewMediaResponse struct {
	MediaType string    `json:"media_type"`
	FileURL   string    `json:"file_url"`
	SignedURL string    `json:"signed_url"`
	ByteSize  int64     `json:"byte_size"`
	CreatedAt time.Time `json:"created_at"`
}

// RevisionResponse serializes one revision attempt.
type RevisionResponse struct {
	ID        uint      `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReviewResponse is returned to API clients for a submission under review.
type ReviewResponse struct {
	ID              uint                  `json:"id"`
	StudentID       uint                  `json:"student_id"`
	ComponentType   string                `json:"component_type"`
	Status          string                `json:"status"`
	Text            string                `json:"text"`
	HighlightedText string                `json:"highlighted_text"`
	Score           *int                  `json:"score"`
	Feedback        *string               `json:"feedback"`
	Highlights      []string              `json:"highlights"`
	Retried         bool                  `json:"retried"`
	Media           []ReviewMediaResponse `json:"media"`
	Revisions       []RevisionResponse    `json:"revisions"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// RevisionResultResponse is returned after a synchronous revision run.
type RevisionResultResponse struct {
	Revision RevisionResponse `json:"revision"`
	Review   ReviewResponse   `json:"review"`
}

// RevisionQueuedResponse acknowledges an asynchronous revision request.
type RevisionQueuedResponse struct {
	SubmissionID uint      `json:"submission_id"`
	TraceID      string    `json:"trace_id"`
	RequestedAt  time.Time `json:"requested_at"`
}

// NewReviewResponse converts a Submission model into a DTO. The highlighted text only ever
// carries <b> markup; everything else in the essay is escaped.
func NewReviewResponse(model models.Submission) ReviewResponse {
	highlights := []string(model.Highlights)
	if highlights == nil {
		highlights = []string{}
	}

	response := ReviewResponse{
		ID:              model.ID,
		StudentID:       model.StudentID,
		ComponentType:   model.ComponentType,
		Status:          model.Status,
		Text:            model.Text,
		HighlightedText: highlightPolicy.Sanitize(evaluation.Highlight(model.Text, highlights)),
		Score:           model.Score,
		Feedback:        model.Feedback,
		Highlights:      highlights,
		Retried:         model.Retried,
		Media:           make([]ReviewMediaResponse, 0, len(model.Media)),
		Revisions:       make([]RevisionResponse, 0, len(model.Revisions)),
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}

	for _, media := range model.Media {
		response.Media = append(response.Media, ReviewMediaResponse{
			MediaType: media.MediaType,
			FileURL:   media.FileURL,
			SignedURL: media.SignedURL,
			ByteSize:  media.ByteSize,
			CreatedAt: media.CreatedAt,
		})
	}
	for _, revision := range model.Revisions {
		response.Revisions = append(response.Revisions, NewRevisionResponse(revision))
	}

	return response
}

// NewRevisionResponse converts a Revision model into a DTO.
func NewRevisionResponse(model models.Revision) RevisionResponse {
	return RevisionResponse{
		ID:        model.ID,
		Status:    model.Status,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// NewRevisionResultResponse converts a finished revision run into a DTO.
func NewRevisionResultResponse(outcome service.RevisionOutcome) RevisionResultResponse {
	return RevisionResultResponse{
		Revision: NewRevisionResponse(outcome.Revision),
		Review:   NewReviewResponse(outcome.Submission),
	}
}

// NewRevisionQueuedResponse acknowledges a queued revision job.
func NewRevisionQueuedResponse(job service.RevisionJob) RevisionQueuedResponse {
	return RevisionQueuedResponse{
		SubmissionID: job.SubmissionID,
		TraceID:      job.TraceID,
		RequestedAt:  job.RequestedAt,
	}
}
