package service

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-review-api/internal/models"
	"github.com/noah-isme/gema-review-api/internal/pipeline"
	"github.com/noah-isme/gema-review-api/pkg/media"
)

func TestReviewServiceSubmitCompletes(t *testing.T) {
	f := setupReviewFixture(t, nil)
	ctx := context.Background()

	result := f.submit(t, "trace-submit-1", 10, "speaking")
	require.True(t, result.IsSuccess(), result.Err())

	stored := result.Data()
	require.True(t, stored.IsCompleted())
	require.Equal(t, models.SubmissionStatusCompleted, stored.Status)
	require.Equal(t, 8, *stored.Score)
	require.Equal(t, "Clear structure.", *stored.Feedback)
	require.Equal(t, []string{"technology"}, []string(stored.Highlights))
	require.False(t, stored.Retried)
	require.Len(t, stored.Media, 2)

	video, ok := stored.MediaOfType(models.MediaTypeVideo)
	require.True(t, ok)
	require.Equal(t, int64(2048), video.ByteSize)
	require.Contains(t, video.SignedURL, "?sig=")
	require.Equal(t, []string{"reviews/submission-1-video.mp4", "reviews/submission-1-audio.mp3"}, f.storage.keys)
	require.Equal(t, 1, f.transcoder.cleanups)

	request, err := f.callLogs.GetRequest(ctx, "trace-submit-1")
	require.NoError(t, err)
	require.True(t, request.Success)
	require.Equal(t, stageEvaluation, request.Stage)
	require.NotNil(t, request.SubmissionID)
	require.Equal(t, stored.ID, *request.SubmissionID)
	require.Equal(t, "speaking", request.LogInfo["component_type"])
	require.Contains(t, request.LogInfo, "video_signed_url")
	require.Contains(t, request.LogInfo, "audio_signed_url")

	calls, err := f.callLogs.ListCallsByTrace(ctx, "trace-submit-1")
	require.NoError(t, err)
	require.Len(t, calls, 4)
	require.Equal(t, "ffmpeg", calls[0].Provider)
	require.Equal(t, "stub-storage", calls[1].Provider)
	require.Equal(t, "stub-storage", calls[2].Provider)
	require.Equal(t, "stub-ai", calls[3].Provider)
}

func TestReviewServiceRejectsDuplicateWithoutNewRow(t *testing.T) {
	f := setupReviewFixture(t, nil)

	first := f.submit(t, "trace-dup-1", 11, "speaking")
	require.True(t, first.IsSuccess())

	second := f.submit(t, "trace-dup-2", 11, "speaking")
	require.True(t, second.IsFailure())
	require.Equal(t, MsgAlreadySubmitted, second.Err())
	require.Equal(t, 1, f.transcoder.calls)

	var count int64
	require.NoError(t, f.db.Model(&models.Submission{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	_, err := f.callLogs.GetRequest(context.Background(), "trace-dup-2")
	require.Error(t, err, "a duplicate must not leave a request log")
}

func TestReviewServiceMediaFailureMarksSubmissionFailed(t *testing.T) {
	f := setupReviewFixture(t, nil)
	f.storage.failOn = "reviews/submission-1-audio.mp3"

	result := f.submit(t, "trace-media-fail", 12, "speaking")
	require.True(t, result.IsFailure())
	require.Equal(t, "bucket unavailable", result.Err())
	require.Equal(t, 0, f.completer.calls)

	stored, err := f.submissions.FindByStudentAndComponent(context.Background(), 12, "speaking")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, models.SubmissionStatusFailed, stored.Status)
	require.Nil(t, stored.Score)

	items, err := f.media.ListBySubmission(context.Background(), stored.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, models.MediaTypeVideo, items[0].MediaType)

	request, err := f.callLogs.GetRequest(context.Background(), "trace-media-fail")
	require.NoError(t, err)
	require.False(t, request.Success)
	require.Equal(t, stageMedia, request.Stage)
	require.Equal(t, "bucket unavailable", request.ErrorMessage)
}

func TestReviewServiceTranscodeFailureSkipsUploads(t *testing.T) {
	f := setupReviewFixture(t, nil)
	f.transcoder.err = media.ErrInputTooLong

	result := f.submit(t, "trace-transcode-fail", 13, "speaking")
	require.True(t, result.IsFailure())
	require.Equal(t, media.ErrInputTooLong.Error(), result.Err())
	require.Empty(t, f.storage.keys)
	require.Equal(t, 0, f.transcoder.cleanups)
}

func TestReviewServiceEvaluationFailurePersistsLastError(t *testing.T) {
	f := setupReviewFixture(t, nil)
	f.completer.script = []completion{
		{err: errors.New("timeout talking to provider")},
		{text: "not json"},
		{text: `{"score": 5, "feedback": "", "highlights": []}`},
	}

	result := f.submit(t, "trace-eval-fail", 14, "speaking")
	require.True(t, result.IsFailure())
	require.Equal(t, "Invalid response format", result.Err())

	stored, err := f.submissions.FindByStudentAndComponent(context.Background(), 14, "speaking")
	require.NoError(t, err)
	require.True(t, stored.IsFailed())

	request, err := f.callLogs.GetRequest(context.Background(), "trace-eval-fail")
	require.NoError(t, err)
	require.False(t, request.Success)
	require.Equal(t, "Invalid response format", request.ErrorMessage)
	require.GreaterOrEqual(t, request.LatencyMs, int64(0))
}

func TestReviewServiceTimeoutIsDistinguished(t *testing.T) {
	f := setupReviewFixture(t, nil)
	f.transcoder.err = context.DeadlineExceeded

	result := f.submit(t, "trace-timeout", 15, "speaking")
	require.True(t, result.IsFailure())
	require.Equal(t, "transcode timed out", result.Err())
}

func TestReviewServiceValidatesRequest(t *testing.T) {
	f := setupReviewFixture(t, nil)

	result, err := f.reviews.Submit(context.Background(), pipeline.NewAuditContext("trace-invalid"), SubmitRequest{
		StudentID:     1,
		ComponentType: "speaking",
		Text:          "   ",
		VideoPath:     "/uploads/clip.mp4",
	})
	require.Error(t, err)
	var validationErrs validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrs))
	require.True(t, result.IsFailure())
	require.Equal(t, 0, f.transcoder.calls)
}

func TestReviewServiceGuardRejectsInFlightSubmission(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	f := setupReviewFixture(t, NewRedisSubmissionGuard(client, time.Minute, testLogger()))
	require.NoError(t, server.Set(guardKey(16, "speaking"), "other-run"))

	result := f.submit(t, "trace-guarded", 16, "speaking")
	require.True(t, result.IsFailure())
	require.Equal(t, MsgAlreadySubmitted, result.Err())
	require.Equal(t, 0, f.transcoder.calls)

	server.Del(guardKey(16, "speaking"))
	result = f.submit(t, "trace-guarded-2", 16, "speaking")
	require.True(t, result.IsSuccess())
	require.False(t, server.Exists(guardKey(16, "speaking")), "guard must be released after the run")
}

func TestReviewServiceGetMapsNotFound(t *testing.T) {
	f := setupReviewFixture(t, nil)

	_, err := f.reviews.Get(context.Background(), 404)
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	created := f.submit(t, "trace-get", 17, "speaking")
	stored, err := f.reviews.Get(context.Background(), created.Data().ID)
	require.NoError(t, err)
	require.Len(t, stored.Media, 2)
}

func TestRedisSubmissionGuardReleaseOnlyOwnKey(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	guard := NewRedisSubmissionGuard(client, time.Minute, testLogger())
	ctx := context.Background()

	release, acquired, err := guard.Acquire(ctx, 1, " Speaking ")
	require.NoError(t, err)
	require.True(t, acquired)
	require.True(t, server.Exists("gema:review:inflight:1:speaking"))

	_, acquired, err = guard.Acquire(ctx, 1, "speaking")
	require.NoError(t, err)
	require.False(t, acquired)

	server.FastForward(2 * time.Minute)
	otherRelease, acquired, err := guard.Acquire(ctx, 1, "speaking")
	require.NoError(t, err)
	require.True(t, acquired)

	release()
	require.True(t, server.Exists("gema:review:inflight:1:speaking"), "a stale release must not drop another run's key")

	otherRelease()
	require.False(t, server.Exists("gema:review:inflight:1:speaking"))
}
