package service

import (
	"context"
	"time"
)

// Revision job sources.
const (
	RevisionSourceAPI   = "api"
	RevisionSourceSweep = "sweep"
)

// RevisionJob asks a worker to run a revision outside the request that triggered it.
type RevisionJob struct {
	SubmissionID uint      `json:"submission_id"`
	TraceID      string    `json:"trace_id"`
	RequestedAt  time.Time `json:"requested_at"`
	Source       string    `json:"source"`
}

// RevisionQueue hands revision jobs to the worker pool.
type RevisionQueue interface {
	Enqueue(ctx context.Context, job RevisionJob) error
}
