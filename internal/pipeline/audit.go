package pipeline

import (
	"maps"
	"time"
)

// AuditContext carries the trace identifier, start time and accumulated stage outputs of one
// pipeline run. It is a value type: With returns an updated copy and never mutates the receiver,
// so independent runs can share nothing and earlier snapshots stay stable.
type AuditContext struct {
	traceID   string
	startedAt time.Time
	logInfo   map[string]any
}

// NewAuditContext starts a context for the given trace id at the current (monotonic) time.
func NewAuditContext(traceID string) AuditContext {
	return NewAuditContextAt(traceID, time.Now())
}

// NewAuditContextAt starts a context with an explicit start time.
func NewAuditContextAt(traceID string, startedAt time.Time) AuditContext {
	return AuditContext{
		traceID:   traceID,
		startedAt: startedAt,
		logInfo:   map[string]any{},
	}
}

// TraceID returns the opaque trace identifier supplied by the caller.
func (c AuditContext) TraceID() string {
	return c.traceID
}

// StartedAt returns the time the run started.
func (c AuditContext) StartedAt() time.Time {
	return c.startedAt
}

// With merges partial into a copy of the log info. Later keys overwrite earlier ones.
func (c AuditContext) With(partial map[string]any) AuditContext {
	merged := make(map[string]any, len(c.logInfo)+len(partial))
	maps.Copy(merged, c.logInfo)
	maps.Copy(merged, partial)
	c.logInfo = merged
	return c
}

// WithValue is a single-key shorthand for With.
func (c AuditContext) WithValue(key string, value any) AuditContext {
	return c.With(map[string]any{key: value})
}

// LogInfo returns a copy of the accumulated log info.
func (c AuditContext) LogInfo() map[string]any {
	out := make(map[string]any, len(c.logInfo))
	maps.Copy(out, c.logInfo)
	return out
}

// Value returns one log info entry.
func (c AuditContext) Value(key string) (any, bool) {
	v, ok := c.logInfo[key]
	return v, ok
}

// Elapsed returns the time since the run started.
func (c AuditContext) Elapsed() time.Duration {
	if c.startedAt.IsZero() {
		return 0
	}
	return time.Since(c.startedAt)
}
