package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-review-api/internal/models"
	"github.com/noah-isme/gema-review-api/internal/pipeline"
	"github.com/noah-isme/gema-review-api/internal/repository"
	"github.com/noah-isme/gema-review-api/pkg/media"
	"github.com/noah-isme/gema-review-api/pkg/storage"
)

const validVerdict = "```json\n{\"score\": 7.5, \"feedback\": \"  Clear structure. \", \"highlights\": [\"technology\", \"\", 3]}\n```"

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type completion struct {
	text string
	err  error
}

type stubCompleter struct {
	mu      sync.Mutex
	script  []completion
	calls   int
	prompts []string
}

func (s *stubCompleter) Name() string { return "stub-ai" }

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.prompts = append(s.prompts, prompt)
	idx := s.calls
	s.calls++
	if len(s.script) == 0 {
		return validVerdict, nil
	}
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	return s.script[idx].text, s.script[idx].err
}

type stubTranscoder struct {
	err      error
	calls    int
	cleanups int
}

func (s *stubTranscoder) Transcode(_ context.Context, inputPath string, submissionID uint) (media.Output, error) {
	s.calls++
	if s.err != nil {
		return media.Output{}, s.err
	}
	return media.Output{
		LocalVideoPath:           fmt.Sprintf("/work/%d/video.mp4", submissionID),
		LocalAudioPath:           fmt.Sprintf("/work/%d/audio.mp3", submissionID),
		OriginalDurationSeconds:  61.2,
		ProcessedDurationSeconds: 61,
	}, nil
}

func (s *stubTranscoder) Cleanup(media.Output) { s.cleanups++ }

type stubStorage struct {
	failOn string
	keys   []string
}

func (s *stubStorage) Name() string { return "stub-storage" }

func (s *stubStorage) Upload(_ context.Context, localPath, objectKey string) (storage.Object, error) {
	if s.failOn != "" && objectKey == s.failOn {
		return storage.Object{}, errors.New("bucket unavailable")
	}
	s.keys = append(s.keys, objectKey)
	return storage.Object{
		RemoteURL: "https://objects.test/" + objectKey,
		SignedURL: "https://objects.test/" + objectKey + "?sig=abc",
		ByteSize:  2048,
	}, nil
}

type reviewFixture struct {
	db          *gorm.DB
	submissions repository.SubmissionRepository
	media       repository.MediaRepository
	revisions   repository.RevisionRepository
	callLogs    repository.CallLogRepository
	completer   *stubCompleter
	transcoder  *stubTranscoder
	storage     *stubStorage
	evaluation  *EvaluationStage
	reviews     ReviewService
	revise      RevisionService
}

func setupReviewFixture(t *testing.T, guard SubmissionGuard) *reviewFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:review_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.ReviewModels()...))

	f := &reviewFixture{
		db:          db,
		submissions: repository.NewSubmissionRepository(db),
		media:       repository.NewMediaRepository(db),
		revisions:   repository.NewRevisionRepository(db),
		callLogs:    repository.NewCallLogRepository(db),
		completer:   &stubCompleter{},
		transcoder:  &stubTranscoder{},
		storage:     &stubStorage{},
	}

	logger := testLogger()
	mediaStage := NewMediaStage(f.transcoder, f.storage, f.media, f.callLogs, "reviews", logger)
	f.evaluation = NewEvaluationStage(f.completer, pipeline.ImmediateRetryPolicy(3), f.callLogs, logger)
	validate := validator.New(validator.WithRequiredStructEnabled())

	f.reviews = NewReviewService(f.submissions, f.callLogs, mediaStage, f.evaluation, guard, validate, logger)
	f.revise = NewRevisionService(repository.NewTransactor(db), f.submissions, f.media, f.revisions, f.callLogs, f.evaluation, logger)
	return f
}

func (f *reviewFixture) submit(t *testing.T, traceID string, studentID uint, component string) pipeline.Result[models.Submission] {
	t.Helper()
	result, err := f.reviews.Submit(context.Background(), pipeline.NewAuditContext(traceID), SubmitRequest{
		StudentID:     studentID,
		ComponentType: component,
		Text:          "This essay discusses technology and innovation.",
		VideoPath:     "/uploads/clip.mp4",
	})
	require.NoError(t, err)
	return result
}

// seedProcessed stores a FAILED submission with the given media types already uploaded.
func (f *reviewFixture) seedProcessed(t *testing.T, studentID uint, mediaTypes ...string) models.Submission {
	t.Helper()
	ctx := context.Background()
	submission := models.Submission{StudentID: studentID, ComponentType: "speaking", Text: "Technology shapes innovation."}
	require.NoError(t, f.submissions.Create(ctx, &submission))
	for _, mediaType := range mediaTypes {
		require.NoError(t, f.media.Create(ctx, &models.SubmissionMedia{
			SubmissionID: submission.ID,
			MediaType:    mediaType,
			FileURL:      "https://objects.test/" + mediaType,
			SignedURL:    "https://objects.test/" + mediaType + "?sig=1",
		}))
	}
	require.NoError(t, f.submissions.MarkFailed(ctx, submission.ID))
	return submission
}
