package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-api/internal/models"
	"github.com/noah-isme/gema-review-api/internal/observability"
	"github.com/noah-isme/gema-review-api/internal/pipeline"
	"github.com/noah-isme/gema-review-api/internal/repository"
)

// Failure messages returned by the review pipeline.
const (
	MsgAlreadySubmitted       = "Already submitted"
	MsgSubmissionNotFound     = "Submission not found"
	MsgVideoMediaNotFound     = "Video media not found"
	MsgAudioMediaNotFound     = "Audio media not found"
	MsgAlreadyRetried         = "Submission already retried"
	msgSubmissionLookupFailed = "Submission lookup failed"
	msgSubmissionNotCreated   = "Submission could not be created"
	msgSubmissionNotPersisted = "Submission could not be persisted"
	msgRevisionNotPersisted   = "Revision could not be persisted"
)

const (
	flowSubmission = "submission"
	flowRevision   = "revision"
)

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// SubmitRequest is a new essay-plus-video review request. VideoPath points at the stored upload.
type SubmitRequest struct {
	StudentID     uint   `validate:"required"`
	ComponentType string `validate:"required,max=128"`
	Text          string `validate:"required,max=20000"`
	VideoPath     string `validate:"required"`
}

// ReviewService runs the submission pipeline and serves the read side.
type ReviewService interface {
	Submit(ctx context.Context, audit pipeline.AuditContext, req SubmitRequest) (pipeline.Result[models.Submission], error)
	Get(ctx context.Context, id uint) (models.Submission, error)
}

type reviewService struct {
	submissions repository.SubmissionRepository
	media       *MediaStage
	evaluation  *EvaluationStage
	outcome     outcomeRecorder
	guard       SubmissionGuard
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewReviewService constructs the submission orchestrator.
func NewReviewService(submissions repository.SubmissionRepository, callLogs repository.CallLogRepository, media *MediaStage, evaluation *EvaluationStage, guard SubmissionGuard, validate *validator.Validate, logger zerolog.Logger) ReviewService {
	if guard == nil {
		guard = NoopSubmissionGuard{}
	}
	if validate == nil {
		validate = validator.New()
	}
	serviceLogger := logger.With().Str("component", "review_service").Logger()
	return &reviewService{
		submissions: submissions,
		media:       media,
		evaluation:  evaluation,
		outcome:     outcomeRecorder{submissions: submissions, logs: callLogs, logger: serviceLogger},
		guard:       guard,
		validator:   validate,
		logger:      serviceLogger,
	}
}

// Submit runs dedup, record creation, media and evaluation stages, then persists the verdict.
// The returned error is set for invalid requests and infrastructure failures only; pipeline
// failures travel in the Result.
func (s *reviewService) Submit(ctx context.Context, audit pipeline.AuditContext, req SubmitRequest) (pipeline.Result[models.Submission], error) {
	req.ComponentType = strings.TrimSpace(req.ComponentType)
	req.Text = strings.TrimSpace(req.Text)
	if err := s.validator.Struct(req); err != nil {
		return pipeline.Fail[models.Submission](err.Error()), err
	}

	ctx, span := tracer.Start(ctx, "review.submit", trace.WithAttributes(
		attribute.String("trace_id", audit.TraceID()),
		attribute.Int("student_id", int(req.StudentID)),
	))
	defer span.End()

	audit = audit.With(map[string]any{
		"student_id":     req.StudentID,
		"component_type": req.ComponentType,
	})

	existing, err := s.submissions.FindByStudentAndComponent(ctx, req.StudentID, req.ComponentType)
	if err != nil {
		return s.finish(pipeline.Fail[models.Submission](msgSubmissionLookupFailed)), err
	}
	if existing != nil {
		return s.reject(audit), nil
	}

	release, acquired, err := s.guard.Acquire(ctx, req.StudentID, req.ComponentType)
	if err != nil {
		s.logger.Warn().Err(err).Str("trace_id", audit.TraceID()).Msg("submission guard unavailable")
	} else if !acquired {
		return s.reject(audit), nil
	}
	defer release()

	submission := models.Submission{
		StudentID:     req.StudentID,
		ComponentType: req.ComponentType,
		Text:          req.Text,
		Status:        models.SubmissionStatusPending,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			return s.reject(audit), nil
		}
		return s.finish(pipeline.Fail[models.Submission](msgSubmissionNotCreated)), err
	}
	audit = audit.WithValue("submission_id", submission.ID)

	media, audit := s.media.Run(ctx, audit, MediaInput{SubmissionID: submission.ID, InputPath: req.VideoPath})
	if media.IsFailure() {
		return s.fail(ctx, audit, submission.ID, stageMedia, media.Err())
	}

	verdict, audit := s.evaluation.Run(ctx, audit, submission.Text)
	if verdict.IsFailure() {
		return s.fail(ctx, audit, submission.ID, stageEvaluation, verdict.Err())
	}

	if err := s.outcome.complete(ctx, audit, submission.ID, stageEvaluation, verdict.Data()); err != nil {
		return s.finish(pipeline.Fail[models.Submission](msgSubmissionNotPersisted)), err
	}

	stored, err := s.submissions.GetDetailed(context.WithoutCancel(ctx), submission.ID)
	if err != nil {
		return s.finish(pipeline.Fail[models.Submission](msgSubmissionNotPersisted)), err
	}
	return s.finish(pipeline.Ok(stored)), nil
}

func (s *reviewService) Get(ctx context.Context, id uint) (models.Submission, error) {
	submission, err := s.submissions.GetDetailed(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}

func (s *reviewService) reject(audit pipeline.AuditContext) pipeline.Result[models.Submission] {
	s.logger.Info().
		Str("trace_id", audit.TraceID()).
		Interface("student_id", audit.LogInfo()["student_id"]).
		Msg("duplicate submission rejected")
	observability.Submissions().WithLabelValues(flowSubmission, "duplicate").Inc()
	return pipeline.Fail[models.Submission](MsgAlreadySubmitted)
}

func (s *reviewService) fail(ctx context.Context, audit pipeline.AuditContext, submissionID uint, stage, message string) (pipeline.Result[models.Submission], error) {
	failure := pipeline.Fail[models.Submission](message)
	if err := s.outcome.fail(ctx, audit, submissionID, stage, message); err != nil {
		s.logger.Error().Err(err).Str("trace_id", audit.TraceID()).Msg("failed to mark submission failed")
		return s.finish(failure), err
	}
	return s.finish(failure), nil
}

func (s *reviewService) finish(result pipeline.Result[models.Submission]) pipeline.Result[models.Submission] {
	observability.Submissions().WithLabelValues(flowSubmission, observability.Outcome(result.IsSuccess())).Inc()
	return result
}
