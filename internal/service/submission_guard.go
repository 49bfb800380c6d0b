package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultGuardTTL = 15 * time.Minute

// SubmissionGuard rejects a second identical submission while the first one is still running.
// The unique index on submissions remains the authoritative check.
type SubmissionGuard interface {
	Acquire(ctx context.Context, studentID uint, componentType string) (release func(), acquired bool, err error)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisSubmissionGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisSubmissionGuard constructs a guard backed by SET NX keys that expire after ttl.
func NewRedisSubmissionGuard(client *redis.Client, ttl time.Duration, logger zerolog.Logger) SubmissionGuard {
	if client == nil {
		return NoopSubmissionGuard{}
	}
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &redisSubmissionGuard{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "submission_guard").Logger(),
	}
}

func (g *redisSubmissionGuard) Acquire(ctx context.Context, studentID uint, componentType string) (func(), bool, error) {
	key := guardKey(studentID, componentType)
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("acquire submission guard: %w", err)
	}
	if !ok {
		return func() {}, false, nil
	}

	release := func() {
		if err := releaseScript.Run(context.WithoutCancel(ctx), g.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			g.logger.Warn().Err(err).Str("key", key).Msg("failed to release submission guard")
		}
	}
	return release, true, nil
}

func guardKey(studentID uint, componentType string) string {
	return fmt.Sprintf("gema:review:inflight:%d:%s", studentID, strings.ToLower(strings.TrimSpace(componentType)))
}

// NoopSubmissionGuard always grants the guard. Used when Redis is not configured.
type NoopSubmissionGuard struct{}

func (NoopSubmissionGuard) Acquire(context.Context, uint, string) (func(), bool, error) {
	return func() {}, true, nil
}
