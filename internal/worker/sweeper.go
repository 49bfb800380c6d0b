package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lthibault/jitterbug/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-review-api/internal/observability"
	"github.com/noah-isme/gema-review-api/internal/repository"
	"github.com/noah-isme/gema-review-api/internal/service"
)

const (
	defaultSweepInterval = 15 * time.Minute
	defaultSweepBatch    = 50
)

// Sweeper enqueues one automatic revision for failed submissions that were never retried.
// Sweep jobs are skipped by the revision service once the submission is marked retried, so each
// submission is retried automatically at most once.
type Sweeper struct {
	submissions repository.SubmissionRepository
	queue       service.RevisionQueue
	interval    time.Duration
	batch       int
	logger      zerolog.Logger
}

// NewSweeper constructs a sweeper.
func NewSweeper(submissions repository.SubmissionRepository, queue service.RevisionQueue, interval time.Duration, batch int, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &Sweeper{
		submissions: submissions,
		queue:       queue,
		interval:    interval,
		batch:       batch,
		logger:      logger.With().Str("component", "sweeper").Logger(),
	}
}

// Sweep enqueues the current candidates and returns how many were enqueued.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	candidates, err := s.submissions.ListRetryCandidates(ctx, s.batch)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, submission := range candidates {
		job := service.RevisionJob{
			SubmissionID: submission.ID,
			TraceID:      uuid.NewString(),
			RequestedAt:  time.Now().UTC(),
			Source:       service.RevisionSourceSweep,
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to enqueue sweep revision")
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		observability.SweepEnqueued().Add(float64(enqueued))
		s.logger.Info().Int("enqueued", enqueued).Msg("failed submissions enqueued for revision")
	}
	return enqueued, nil
}

// Start runs Sweep on a jittered ticker until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := jitterbug.New(s.interval, &jitterbug.Norm{Stdev: s.interval / 20, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}
