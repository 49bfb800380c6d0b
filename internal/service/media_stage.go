package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-review-api/internal/models"
	"github.com/noah-isme/gema-review-api/internal/observability"
	"github.com/noah-isme/gema-review-api/internal/pipeline"
	"github.com/noah-isme/gema-review-api/internal/repository"
	"github.com/noah-isme/gema-review-api/pkg/storage"
)

const stageMedia = "media"

// MediaInput is the uploaded recording of a freshly created submission.
type MediaInput struct {
	SubmissionID uint
	InputPath    string
}

// MediaOutput holds the persisted renditions.
type MediaOutput struct {
	Video                    models.SubmissionMedia
	Audio                    models.SubmissionMedia
	OriginalDurationSeconds  float64
	ProcessedDurationSeconds float64
}

// MediaStage transcodes the recording, uploads both renditions and persists one media row per type.
type MediaStage struct {
	transcoder Transcoder
	store      ObjectStorage
	media      repository.MediaRepository
	calls      callRecorder
	keyPrefix  string
	logger     zerolog.Logger
}

// NewMediaStage wires the media stage collaborators.
func NewMediaStage(transcoder Transcoder, store ObjectStorage, mediaRepo repository.MediaRepository, callLogs repository.CallLogRepository, keyPrefix string, logger zerolog.Logger) *MediaStage {
	stageLogger := logger.With().Str("component", "media_stage").Logger()
	return &MediaStage{
		transcoder: transcoder,
		store:      store,
		media:      mediaRepo,
		calls:      callRecorder{logs: callLogs, logger: stageLogger},
		keyPrefix:  keyPrefix,
		logger:     stageLogger,
	}
}

// Run executes transcode, video upload and audio upload in order and stops at the first failure.
func (s *MediaStage) Run(ctx context.Context, audit pipeline.AuditContext, input MediaInput) (pipeline.Result[MediaOutput], pipeline.AuditContext) {
	ctx, span := tracer.Start(ctx, "review.media_stage", trace.WithAttributes(
		attribute.Int("submission_id", int(input.SubmissionID)),
	))
	defer span.End()

	start := time.Now()
	result, audit := s.run(ctx, audit, input)
	observability.StageDuration().WithLabelValues(stageMedia, observability.Outcome(result.IsSuccess())).Observe(time.Since(start).Seconds())
	if result.IsFailure() {
		span.SetStatus(codes.Error, result.Err())
	}
	return result, audit
}

func (s *MediaStage) run(ctx context.Context, audit pipeline.AuditContext, input MediaInput) (pipeline.Result[MediaOutput], pipeline.AuditContext) {
	started := time.Now()
	rendition, err := s.transcoder.Transcode(ctx, input.InputPath, input.SubmissionID)
	if err != nil {
		failure := pipeline.FromError[MediaOutput]("transcode", err)
		s.calls.record(ctx, audit, "ffmpeg", "transcode", input.InputPath, started, failure.Err())
		return failure, audit.WithValue("media_error", failure.Err())
	}
	s.calls.record(ctx, audit, "ffmpeg", "transcode", input.InputPath, started, "")
	defer s.transcoder.Cleanup(rendition)

	audit = audit.With(map[string]any{
		"local_video_path":           rendition.LocalVideoPath,
		"local_audio_path":           rendition.LocalAudioPath,
		"original_duration_seconds":  rendition.OriginalDurationSeconds,
		"processed_duration_seconds": rendition.ProcessedDurationSeconds,
	})

	video, audit := s.upload(ctx, audit, input.SubmissionID, models.MediaTypeVideo, rendition.LocalVideoPath)
	if video.IsFailure() {
		return pipeline.FailAs[MediaOutput](video), audit
	}

	audio, audit := s.upload(ctx, audit, input.SubmissionID, models.MediaTypeAudio, rendition.LocalAudioPath)
	if audio.IsFailure() {
		return pipeline.FailAs[MediaOutput](audio), audit
	}

	return pipeline.Ok(MediaOutput{
		Video:                    video.Data(),
		Audio:                    audio.Data(),
		OriginalDurationSeconds:  rendition.OriginalDurationSeconds,
		ProcessedDurationSeconds: rendition.ProcessedDurationSeconds,
	}), audit
}

func (s *MediaStage) upload(ctx context.Context, audit pipeline.AuditContext, submissionID uint, mediaType, localPath string) (pipeline.Result[models.SubmissionMedia], pipeline.AuditContext) {
	prefix := strings.ToLower(mediaType)
	key := storage.ObjectKey(s.keyPrefix, submissionID, mediaType, localPath)

	started := time.Now()
	object, err := s.store.Upload(ctx, localPath, key)
	if err != nil {
		failure := pipeline.FromError[models.SubmissionMedia](prefix+" upload", err)
		s.calls.record(ctx, audit, s.store.Name(), "upload", key, started, failure.Err())
		return failure, audit.WithValue("media_error", failure.Err())
	}
	s.calls.record(ctx, audit, s.store.Name(), "upload", key, started, "")

	row := models.SubmissionMedia{
		SubmissionID: submissionID,
		MediaType:    mediaType,
		FileURL:      object.RemoteURL,
		SignedURL:    object.SignedURL,
		ByteSize:     object.ByteSize,
	}
	if err := s.media.Create(ctx, &row); err != nil {
		s.logger.Error().Err(err).
			Str("trace_id", audit.TraceID()).
			Uint("submission_id", submissionID).
			Str("media_type", mediaType).
			Msg("failed to persist media row")
		if ctx.Err() != nil {
			return pipeline.FromError[models.SubmissionMedia](prefix+" upload", ctx.Err()), audit
		}
		return pipeline.Fail[models.SubmissionMedia](fmt.Sprintf("Failed to save %s media", prefix)), audit
	}

	return pipeline.Ok(row), audit.With(map[string]any{
		prefix + "_url":        object.RemoteURL,
		prefix + "_signed_url": object.SignedURL,
		prefix + "_byte_size":  object.ByteSize,
	})
}
