package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResultVariants(t *testing.T) {
	ok := Ok(42).WithMessage("done")
	require.True(t, ok.IsSuccess())
	require.False(t, ok.IsFailure())
	require.Equal(t, 42, ok.Data())
	require.Equal(t, "done", ok.Message())
	require.Empty(t, ok.Err())

	failed := Fail[int]("Already submitted")
	require.True(t, failed.IsFailure())
	require.Equal(t, "Already submitted", failed.Err())
	require.Zero(t, failed.Data())

	require.Equal(t, "unknown error", Fail[int]("  ").Err())
}

func TestFailAsKeepsMessage(t *testing.T) {
	source := Fail[int]("upload failed").WithMessage("video")
	converted := FailAs[string](source)

	require.True(t, converted.IsFailure())
	require.Equal(t, "upload failed", converted.Err())
	require.Equal(t, "video", converted.Message())

	require.True(t, FailAs[string](Ok(1)).IsFailure())
}

func TestFromErrorDistinguishesTimeouts(t *testing.T) {
	require.Equal(t, "transcoding timed out", FromError[int]("transcoding", fmt.Errorf("ffmpeg: %w", context.DeadlineExceeded)).Err())
	require.Equal(t, "evaluation cancelled", FromError[int]("evaluation", context.Canceled).Err())
	require.Equal(t, "boom", FromError[int]("upload", errors.New("boom")).Err())
	require.Equal(t, "upload failed", FromError[int]("upload", nil).Err())
}

func TestAuditContextWithDoesNotMutate(t *testing.T) {
	start := time.Now().Add(-time.Second)
	base := NewAuditContextAt("trace-1", start)
	first := base.With(map[string]any{"videoUrl": "a", "score": 1})
	second := first.With(map[string]any{"score": 7})

	require.Empty(t, base.LogInfo())
	require.Equal(t, 1, first.LogInfo()["score"])
	require.Equal(t, 7, second.LogInfo()["score"])
	require.Equal(t, "a", second.LogInfo()["videoUrl"])
	require.Equal(t, "trace-1", second.TraceID())
	require.Equal(t, start, second.StartedAt())
	require.GreaterOrEqual(t, second.Elapsed(), time.Second)

	info := second.LogInfo()
	info["score"] = 100
	value, ok := second.Value("score")
	require.True(t, ok)
	require.Equal(t, 7, value)
}

func TestRetryPolicyDefaults(t *testing.T) {
	require.Equal(t, DefaultMaxAttempts, RetryPolicy{}.Attempts())
	require.Equal(t, 5, ImmediateRetryPolicy(5).Attempts())

	policy := ImmediateRetryPolicy(2)
	seq := policy.Start()
	require.NoError(t, policy.Wait(context.Background(), seq))
}

func TestRetryPolicyWaitHonoursContext(t *testing.T) {
	policy := ExponentialRetryPolicy(3, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := policy.Wait(ctx, policy.Start())
	require.ErrorIs(t, err, context.Canceled)
}

func TestExponentialRetryPolicyWaits(t *testing.T) {
	policy := ExponentialRetryPolicy(3, 5*time.Millisecond, 10*time.Millisecond)
	seq := policy.Start()

	started := time.Now()
	require.NoError(t, policy.Wait(context.Background(), seq))
	require.Greater(t, time.Since(started), time.Millisecond)
}
