package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-review-api/internal/service"
)

// DefaultSubject is used when no NATS subject is configured.
const DefaultSubject = "gema.review.revisions"

const queueGroup = "gema-review-workers"

// ErrQueueClosed is returned when enqueueing on a closed in-process queue.
var ErrQueueClosed = errors.New("revision queue closed")

// Source yields decoded revision jobs until the returned stop function is called.
type Source interface {
	Jobs(ctx context.Context) (<-chan service.RevisionJob, func(), error)
}

// NATSQueue publishes revision jobs on a subject and consumes them through a queue group, so
// every job is delivered to exactly one API instance.
type NATSQueue struct {
	conn    *nats.Conn
	subject string
	buffer  int
	logger  zerolog.Logger
}

// NewNATSQueue constructs a queue on subject.
func NewNATSQueue(conn *nats.Conn, subject string, buffer int, logger zerolog.Logger) *NATSQueue {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = DefaultSubject
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &NATSQueue{
		conn:    conn,
		subject: subject,
		buffer:  buffer,
		logger:  logger.With().Str("component", "revision_queue").Logger(),
	}
}

func (q *NATSQueue) Enqueue(_ context.Context, job service.RevisionJob) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := q.conn.Publish(q.subject, payload); err != nil {
		return fmt.Errorf("publish revision job: %w", err)
	}
	return nil
}

// Jobs subscribes in the worker queue group. The returned stop drains the subscription.
func (q *NATSQueue) Jobs(ctx context.Context) (<-chan service.RevisionJob, func(), error) {
	messages := make(chan *nats.Msg, q.buffer)
	sub, err := q.conn.ChanQueueSubscribe(q.subject, queueGroup, messages)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe revision jobs: %w", err)
	}

	jobs := make(chan service.RevisionJob)
	done := make(chan struct{})
	go func() {
		defer close(jobs)
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg := <-messages:
				job, err := decodeJob(msg.Data)
				if err != nil {
					q.logger.Warn().Err(err).Msg("invalid revision job payload")
					continue
				}
				select {
				case jobs <- job:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	stop := func() {
		if err := sub.Drain(); err != nil {
			q.logger.Warn().Err(err).Msg("failed to drain revision job subscription")
		}
		close(done)
	}
	return jobs, stop, nil
}

// MemoryQueue is an in-process queue used when NATS is not configured.
type MemoryQueue struct {
	jobs      chan service.RevisionJob
	closed    chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue constructs a buffered in-process queue.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryQueue{
		jobs:   make(chan service.RevisionJob, buffer),
		closed: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job service.RevisionJob) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.jobs <- job:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs exposes the queue channel. Stop marks the queue closed; pending jobs are dropped.
func (q *MemoryQueue) Jobs(context.Context) (<-chan service.RevisionJob, func(), error) {
	out := make(chan service.RevisionJob)
	go func() {
		defer close(out)
		for {
			select {
			case <-q.closed:
				return
			case job := <-q.jobs:
				select {
				case out <- job:
				case <-q.closed:
					return
				}
			}
		}
	}()

	return out, func() {
		q.closeOnce.Do(func() { close(q.closed) })
	}, nil
}

func encodeJob(job service.RevisionJob) ([]byte, error) {
	if job.SubmissionID == 0 {
		return nil, errors.New("revision job requires a submission id")
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}
	if job.Source == "" {
		job.Source = service.RevisionSourceAPI
	}
	return json.Marshal(job)
}

func decodeJob(payload []byte) (service.RevisionJob, error) {
	var job service.RevisionJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return service.RevisionJob{}, err
	}
	if job.SubmissionID == 0 {
		return service.RevisionJob{}, errors.New("revision job requires a submission id")
	}
	return job, nil
}
