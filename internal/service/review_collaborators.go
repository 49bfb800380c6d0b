package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/noah-isme/gema-review-api/internal/models"
	"github.com/noah-isme/gema-review-api/internal/pipeline"
	"github.com/noah-isme/gema-review-api/internal/repository"
	"github.com/noah-isme/gema-review-api/pkg/media"
	"github.com/noah-isme/gema-review-api/pkg/storage"
)

var tracer = otel.Tracer("github.com/noah-isme/gema-review-api/internal/service")

// Transcoder produces the processed video and extracted audio for an upload.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath string, submissionID uint) (media.Output, error)
	Cleanup(out media.Output)
}

// ObjectStorage uploads a local rendition.
type ObjectStorage interface {
	Upload(ctx context.Context, localPath, objectKey string) (storage.Object, error)
	Name() string
}

// callRecorder appends external call outcomes to the audit trail. Write failures are logged and
// never change the pipeline outcome.
type callRecorder struct {
	logs   repository.CallLogRepository
	logger zerolog.Logger
}

func (r callRecorder) record(ctx context.Context, audit pipeline.AuditContext, provider, operation, description string, started time.Time, errMessage string) {
	if r.logs == nil {
		return
	}
	entry := &models.ExternalCallLog{
		TraceID:      audit.TraceID(),
		Provider:     provider,
		Operation:    operation,
		Description:  description,
		Success:      errMessage == "",
		LatencyMs:    time.Since(started).Milliseconds(),
		ErrorMessage: errMessage,
	}
	if err := r.logs.RecordCall(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Warn().Err(err).
			Str("trace_id", audit.TraceID()).
			Str("provider", provider).
			Str("operation", operation).
			Msg("failed to record external call")
	}
}

// outcomeRecorder persists the terminal state of a run: the submission row and the request log.
type outcomeRecorder struct {
	submissions repository.SubmissionRepository
	logs        repository.CallLogRepository
	logger      zerolog.Logger
}

func (r outcomeRecorder) complete(ctx context.Context, audit pipeline.AuditContext, submissionID uint, stage string, evaluation Evaluation) error {
	ctx = context.WithoutCancel(ctx)
	if err := r.submissions.MarkCompleted(ctx, submissionID, evaluation.Score, evaluation.Feedback, evaluation.Highlights); err != nil {
		return err
	}
	r.writeRequestLog(ctx, audit, submissionID, stage, "")
	r.logger.Info().
		Str("trace_id", audit.TraceID()).
		Uint("submission_id", submissionID).
		Int("score", evaluation.Score).
		Dur("elapsed", audit.Elapsed()).
		Msg("submission evaluated")
	return nil
}

func (r outcomeRecorder) fail(ctx context.Context, audit pipeline.AuditContext, submissionID uint, stage, message string) error {
	ctx = context.WithoutCancel(ctx)
	if err := r.submissions.MarkFailed(ctx, submissionID); err != nil {
		return err
	}
	r.writeRequestLog(ctx, audit, submissionID, stage, message)
	r.logger.Warn().
		Str("trace_id", audit.TraceID()).
		Uint("submission_id", submissionID).
		Str("stage", stage).
		Str("error", message).
		Dur("elapsed", audit.Elapsed()).
		Msg("submission failed")
	return nil
}

func (r outcomeRecorder) writeRequestLog(ctx context.Context, audit pipeline.AuditContext, submissionID uint, stage, message string) {
	if r.logs == nil {
		return
	}
	id := submissionID
	entry := &models.RequestLog{
		TraceID:      audit.TraceID(),
		SubmissionID: &id,
		Stage:        stage,
		Success:      message == "",
		LatencyMs:    audit.Elapsed().Milliseconds(),
		ErrorMessage: message,
		LogInfo:      audit.LogInfo(),
	}
	if err := r.logs.UpsertRequest(ctx, entry); err != nil {
		r.logger.Warn().Err(err).Str("trace_id", audit.TraceID()).Msg("failed to write request log")
	}
}

// bindDeadline derives a context that carries the values of base (such as an open transaction)
// and the deadline and cancellation of parent.
func bindDeadline(parent, base context.Context) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := parent.Deadline(); ok {
		ctx, cancel = context.WithDeadline(base, deadline)
	} else {
		ctx, cancel = context.WithCancel(base)
	}
	stop := context.AfterFunc(parent, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
