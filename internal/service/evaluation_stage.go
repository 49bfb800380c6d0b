package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-review-api/internal/evaluation"
	"github.com/noah-isme/gema-review-api/internal/observability"
	"github.com/noah-isme/gema-review-api/internal/pipeline"
	"github.com/noah-isme/gema-review-api/internal/repository"
	"github.com/noah-isme/gema-review-api/pkg/ai"
)

const stageEvaluation = "evaluation"

// Evaluation is the validated AI verdict for an essay.
type Evaluation struct {
	Score      int
	Feedback   string
	Highlights []string
	Attempts   int
}

// EvaluationStage prompts the AI provider and validates its answer, retrying under a policy.
type EvaluationStage struct {
	completer ai.Completer
	policy    pipeline.RetryPolicy
	calls     callRecorder
	logger    zerolog.Logger
}

// NewEvaluationStage wires the evaluation stage collaborators.
func NewEvaluationStage(completer ai.Completer, policy pipeline.RetryPolicy, callLogs repository.CallLogRepository, logger zerolog.Logger) *EvaluationStage {
	stageLogger := logger.With().Str("component", "evaluation_stage").Logger()
	return &EvaluationStage{
		completer: completer,
		policy:    policy,
		calls:     callRecorder{logs: callLogs, logger: stageLogger},
		logger:    stageLogger,
	}
}

// Run evaluates text. Each attempt is written to the call log; a response that fails validation
// spends an attempt like a failed call. When every attempt fails the last failure is returned.
func (s *EvaluationStage) Run(ctx context.Context, audit pipeline.AuditContext, text string) (pipeline.Result[Evaluation], pipeline.AuditContext) {
	attempts := s.policy.Attempts()
	ctx, span := tracer.Start(ctx, "review.evaluation_stage", trace.WithAttributes(
		attribute.String("provider", s.completer.Name()),
		attribute.Int("max_attempts", attempts),
	))
	defer span.End()

	start := time.Now()
	prompt := evaluation.BuildPrompt(text)
	backoff := s.policy.Start()
	last := pipeline.Fail[Evaluation](stageEvaluation + " failed")

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := s.policy.Wait(ctx, backoff); err != nil {
				last = pipeline.FromError[Evaluation](stageEvaluation, err)
				break
			}
		}

		started := time.Now()
		response := s.attempt(ctx, prompt)
		s.calls.record(ctx, audit, s.completer.Name(), "complete",
			fmt.Sprintf("evaluation attempt %d/%d", attempt, attempts), started, response.Err())
		observability.EvaluationAttempts().WithLabelValues(s.completer.Name(), observability.Outcome(response.IsSuccess())).Inc()
		audit = audit.WithValue("evaluation_attempts", attempt)

		if response.IsSuccess() {
			verdict := response.Data()
			result := Evaluation{
				Score:      verdict.Score,
				Feedback:   verdict.Feedback,
				Highlights: verdict.Highlights,
				Attempts:   attempt,
			}
			observability.StageDuration().WithLabelValues(stageEvaluation, "success").Observe(time.Since(start).Seconds())
			return pipeline.Ok(result), audit.With(map[string]any{
				"score":      result.Score,
				"feedback":   result.Feedback,
				"highlights": result.Highlights,
			})
		}

		s.logger.Warn().
			Str("trace_id", audit.TraceID()).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Str("error", response.Err()).
			Msg("evaluation attempt failed")
		last = pipeline.FailAs[Evaluation](response)
		audit = audit.WithValue("evaluation_error", response.Err())

		if ctx.Err() != nil {
			break
		}
	}

	observability.StageDuration().WithLabelValues(stageEvaluation, "failure").Observe(time.Since(start).Seconds())
	span.SetStatus(codes.Error, last.Err())
	return last, audit
}

func (s *EvaluationStage) attempt(ctx context.Context, prompt string) pipeline.Result[evaluation.Response] {
	raw, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return pipeline.FromError[evaluation.Response](stageEvaluation, err)
	}
	return evaluation.ValidateResponse(raw)
}
