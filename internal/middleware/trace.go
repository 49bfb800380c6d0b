package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// TraceHeader carries the pipeline trace id in requests and responses.
const TraceHeader = "X-Trace-ID"

const (
	traceLocalKey  = "trace_id"
	maxTraceLength = 128
)

type traceIDKey struct{}

// TraceID makes sure every request carries a trace id. The id becomes the audit trace of any
// pipeline run the request starts, so foreign ids that would not fit the request log are replaced.
func TraceID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := ""
		for _, header := range []string{TraceHeader, "X-Correlation-ID", "X-Request-ID"} {
			if candidate := strings.TrimSpace(c.Get(header)); validTraceID(candidate) {
				traceID = candidate
				break
			}
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Locals(traceLocalKey, traceID)
		c.Set(TraceHeader, traceID)
		c.SetUserContext(context.WithValue(c.UserContext(), traceIDKey{}, traceID))

		return c.Next()
	}
}

// GetTraceID returns the trace id bound to the active request.
func GetTraceID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(traceLocalKey).(string); ok {
		return id
	}
	return TraceIDFromContext(c.UserContext())
}

// TraceIDFromContext extracts the trace id stored by TraceID, if any.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}
