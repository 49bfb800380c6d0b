package worker

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-review-api/internal/observability"
	"github.com/noah-isme/gema-review-api/internal/pipeline"
	"github.com/noah-isme/gema-review-api/internal/service"
)

const defaultConcurrency = 3

// RevisionWorker runs queued revisions with a fixed number of concurrent pipelines.
type RevisionWorker struct {
	revisions   service.RevisionService
	concurrency int
	timeout     time.Duration
	logger      zerolog.Logger
}

// NewRevisionWorker constructs a worker pool. A zero timeout leaves runs unbounded.
func NewRevisionWorker(revisions service.RevisionService, concurrency int, timeout time.Duration, logger zerolog.Logger) *RevisionWorker {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &RevisionWorker{
		revisions:   revisions,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger.With().Str("component", "revision_worker").Logger(),
	}
}

// Process runs one job with its own audit context.
func (w *RevisionWorker) Process(ctx context.Context, job service.RevisionJob) pipeline.Result[service.RevisionOutcome] {
	traceID := strings.TrimSpace(job.TraceID)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	audit := pipeline.NewAuditContext(traceID).With(map[string]any{
		"job_source":       job.Source,
		"job_requested_at": job.RequestedAt,
	})

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	result, err := w.revisions.Revise(ctx, audit, service.RevisionRequest{
		SubmissionID:  job.SubmissionID,
		SkipIfRetried: job.Source == service.RevisionSourceSweep,
	})

	source := job.Source
	if source == "" {
		source = service.RevisionSourceAPI
	}
	observability.RevisionJobs().WithLabelValues(source, observability.Outcome(result.IsSuccess())).Inc()

	logEvent := w.logger.Info()
	if err != nil {
		logEvent = w.logger.Error().Err(err)
	} else if result.IsFailure() {
		logEvent = w.logger.Warn().Str("error", result.Err())
	}
	logEvent.
		Str("trace_id", traceID).
		Uint("submission_id", job.SubmissionID).
		Str("source", source).
		Msg("revision job processed")

	return result
}

// Run consumes jobs until the channel closes or ctx is cancelled.
func (w *RevisionWorker) Run(ctx context.Context, jobs <-chan service.RevisionJob) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		group.Go(func() error {
			for {
				select {
				case <-groupCtx.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					w.Process(groupCtx, job)
				}
			}
		})
	}
	return group.Wait()
}

// Start subscribes to source and runs the pool in the background until ctx is cancelled.
func (w *RevisionWorker) Start(ctx context.Context, source Source) error {
	jobs, stop, err := source.Jobs(ctx)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		stop()
	}()

	go func() {
		if err := w.Run(ctx, jobs); err != nil {
			w.logger.Error().Err(err).Msg("revision worker stopped")
		}
	}()

	w.logger.Info().Int("concurrency", w.concurrency).Msg("revision worker started")
	return nil
}
