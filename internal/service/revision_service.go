package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-api/internal/models"
	"github.com/noah-isme/gema-review-api/internal/observability"
	"github.com/noah-isme/gema-review-api/internal/pipeline"
	"github.com/noah-isme/gema-review-api/internal/repository"
)

// RevisionRequest asks for the evaluation of an existing submission to be re-run.
type RevisionRequest struct {
	SubmissionID uint
	// SkipIfRetried rejects submissions that were already retried once. Set by automatic sweeps.
	SkipIfRetried bool
}

// RevisionOutcome is returned when the revision ran to completion, successful or not.
type RevisionOutcome struct {
	Revision   models.Revision
	Submission models.Submission
}

// RevisionService re-runs only the evaluation stage for a processed submission, reusing its media.
type RevisionService interface {
	Revise(ctx context.Context, audit pipeline.AuditContext, req RevisionRequest) (pipeline.Result[RevisionOutcome], error)
}

type revisionService struct {
	transactor  repository.Transactor
	submissions repository.SubmissionRepository
	media       repository.MediaRepository
	revisions   repository.RevisionRepository
	evaluation  *EvaluationStage
	outcome     outcomeRecorder
	logger      zerolog.Logger
}

// NewRevisionService constructs the revision orchestrator.
func NewRevisionService(transactor repository.Transactor, submissions repository.SubmissionRepository, mediaRepo repository.MediaRepository, revisions repository.RevisionRepository, callLogs repository.CallLogRepository, evaluation *EvaluationStage, logger zerolog.Logger) RevisionService {
	serviceLogger := logger.With().Str("component", "revision_service").Logger()
	return &revisionService{
		transactor:  transactor,
		submissions: submissions,
		media:       mediaRepo,
		revisions:   revisions,
		evaluation:  evaluation,
		outcome:     outcomeRecorder{submissions: submissions, logs: callLogs, logger: serviceLogger},
		logger:      serviceLogger,
	}
}

// Revise checks the preconditions, then marks the submission retried, creates the revision,
// evaluates and finalizes both rows inside one transaction. With SkipIfRetried the retried flag is
// claimed with a conditional update, so concurrent sweep jobs run at most one revision. A pipeline failure is committed as a
// FAILED revision; only database errors roll the transaction back.
func (s *revisionService) Revise(ctx context.Context, audit pipeline.AuditContext, req RevisionRequest) (pipeline.Result[RevisionOutcome], error) {
	ctx, span := tracer.Start(ctx, "review.revise", trace.WithAttributes(
		attribute.String("trace_id", audit.TraceID()),
		attribute.Int("submission_id", int(req.SubmissionID)),
	))
	defer span.End()

	submission, err := s.submissions.GetByID(ctx, req.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.finish(pipeline.Fail[RevisionOutcome](MsgSubmissionNotFound)), nil
		}
		return s.finish(pipeline.Fail[RevisionOutcome](msgSubmissionLookupFailed)), err
	}

	video, err := s.media.FindBySubmissionAndType(ctx, submission.ID, models.MediaTypeVideo)
	if err != nil {
		return s.finish(pipeline.Fail[RevisionOutcome](msgSubmissionLookupFailed)), err
	}
	if video == nil {
		return s.finish(pipeline.Fail[RevisionOutcome](MsgVideoMediaNotFound)), nil
	}

	audio, err := s.media.FindBySubmissionAndType(ctx, submission.ID, models.MediaTypeAudio)
	if err != nil {
		return s.finish(pipeline.Fail[RevisionOutcome](msgSubmissionLookupFailed)), err
	}
	if audio == nil {
		return s.finish(pipeline.Fail[RevisionOutcome](MsgAudioMediaNotFound)), nil
	}

	if req.SkipIfRetried && submission.Retried {
		return s.finish(pipeline.Fail[RevisionOutcome](MsgAlreadyRetried)), nil
	}

	audit = audit.With(map[string]any{
		"submission_id":    submission.ID,
		"flow":             flowRevision,
		"video_signed_url": video.SignedURL,
		"audio_signed_url": audio.SignedURL,
	})

	var result pipeline.Result[RevisionOutcome]
	err = s.transactor.WithinTransaction(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		if req.SkipIfRetried {
			claimed, err := s.submissions.ClaimRetry(txCtx, submission.ID)
			if err != nil {
				return err
			}
			if !claimed {
				result = pipeline.Fail[RevisionOutcome](MsgAlreadyRetried)
				return nil
			}
		} else if err := s.submissions.MarkRetried(txCtx, submission.ID); err != nil {
			return err
		}

		revision := models.Revision{SubmissionID: submission.ID, Status: models.RevisionStatusPending}
		if err := s.revisions.Create(txCtx, &revision); err != nil {
			return err
		}
		audit = audit.WithValue("revision_id", revision.ID)

		runCtx, cancel := bindDeadline(ctx, txCtx)
		defer cancel()

		verdict, updated := s.evaluation.Run(runCtx, audit, submission.Text)
		audit = updated

		status := models.RevisionStatusCompleted
		if verdict.IsFailure() {
			status = models.RevisionStatusFailed
			if err := s.outcome.fail(txCtx, audit, submission.ID, flowRevision, verdict.Err()); err != nil {
				return err
			}
		} else if err := s.outcome.complete(txCtx, audit, submission.ID, flowRevision, verdict.Data()); err != nil {
			return err
		}

		if err := s.revisions.UpdateStatus(txCtx, revision.ID, status); err != nil {
			return err
		}
		revision.Status = status

		if verdict.IsFailure() {
			result = pipeline.FailAs[RevisionOutcome](verdict)
			return nil
		}

		stored, err := s.submissions.GetDetailed(txCtx, submission.ID)
		if err != nil {
			return err
		}
		result = pipeline.Ok(RevisionOutcome{Revision: revision, Submission: stored})
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("trace_id", audit.TraceID()).
			Uint("submission_id", submission.ID).
			Msg("revision rolled back")
		return s.finish(pipeline.Fail[RevisionOutcome](msgRevisionNotPersisted)), err
	}

	return s.finish(result), nil
}

func (s *revisionService) finish(result pipeline.Result[RevisionOutcome]) pipeline.Result[RevisionOutcome] {
	observability.Submissions().WithLabelValues(flowRevision, observability.Outcome(result.IsSuccess())).Inc()
	return result
}
