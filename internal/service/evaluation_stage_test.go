package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-review-api/internal/evaluation"
	"github.com/noah-isme/gema-review-api/internal/pipeline"
)

func TestEvaluationStageSucceedsOnThirdAttempt(t *testing.T) {
	f := setupReviewFixture(t, nil)
	f.completer.script = []completion{
		{err: errors.New("rate limited")},
		{err: errors.New("upstream 502")},
		{text: validVerdict},
	}

	result, audit := f.evaluation.Run(context.Background(), pipeline.NewAuditContext("trace-eval-1"), "This essay discusses technology and innovation.")
	require.True(t, result.IsSuccess())
	require.Equal(t, 8, result.Data().Score)
	require.Equal(t, "Clear structure.", result.Data().Feedback)
	require.Equal(t, []string{"technology"}, result.Data().Highlights)
	require.Equal(t, 3, result.Data().Attempts)

	attempts, ok := audit.Value("evaluation_attempts")
	require.True(t, ok)
	require.Equal(t, 3, attempts)

	calls, err := f.callLogs.ListCallsByTrace(context.Background(), "trace-eval-1")
	require.NoError(t, err)
	require.Len(t, calls, 3)
	require.False(t, calls[0].Success)
	require.Equal(t, "rate limited", calls[0].ErrorMessage)
	require.False(t, calls[1].Success)
	require.True(t, calls[2].Success)
	require.Empty(t, calls[2].ErrorMessage)
}

func TestEvaluationStageReturnsLastFailure(t *testing.T) {
	f := setupReviewFixture(t, nil)
	f.completer.script = []completion{
		{err: errors.New("first failure")},
		{err: errors.New("second failure")},
		{err: errors.New("third failure")},
	}

	result, _ := f.evaluation.Run(context.Background(), pipeline.NewAuditContext("trace-eval-2"), "essay")
	require.True(t, result.IsFailure())
	require.Equal(t, "third failure", result.Err())
	require.Equal(t, 3, f.completer.calls)

	calls, err := f.callLogs.ListCallsByTrace(context.Background(), "trace-eval-2")
	require.NoError(t, err)
	require.Len(t, calls, 3)
	for _, call := range calls {
		require.False(t, call.Success)
	}
}

func TestEvaluationStageValidationFailureSpendsAttempt(t *testing.T) {
	f := setupReviewFixture(t, nil)
	f.completer.script = []completion{
		{text: "I think the essay is good"},
		{text: `{"score": 11, "feedback": "too high", "highlights": []}`},
		{text: validVerdict},
	}

	result, _ := f.evaluation.Run(context.Background(), pipeline.NewAuditContext("trace-eval-3"), "essay")
	require.True(t, result.IsSuccess())
	require.Equal(t, 3, f.completer.calls)

	calls, err := f.callLogs.ListCallsByTrace(context.Background(), "trace-eval-3")
	require.NoError(t, err)
	require.Len(t, calls, 3)
	require.Equal(t, evaluation.MsgResponseParsingFailed, calls[0].ErrorMessage)
	require.Equal(t, evaluation.MsgInvalidResponseFormat, calls[1].ErrorMessage)
}

func TestEvaluationStageStopsWhenContextIsDone(t *testing.T) {
	f := setupReviewFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, _ := f.evaluation.Run(ctx, pipeline.NewAuditContext("trace-eval-4"), "essay")
	require.True(t, result.IsFailure())
	require.Equal(t, "evaluation cancelled", result.Err())
	require.Equal(t, 0, f.completer.calls)
}

func TestEvaluationStagePromptCarriesEssay(t *testing.T) {
	f := setupReviewFixture(t, nil)

	result, _ := f.evaluation.Run(context.Background(), pipeline.NewAuditContext("trace-eval-5"), "My unique essay body")
	require.True(t, result.IsSuccess())
	require.Len(t, f.completer.prompts, 1)
	require.Contains(t, f.completer.prompts[0], "My unique essay body")
}
