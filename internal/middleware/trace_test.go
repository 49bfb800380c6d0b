package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-review-api/internal/middleware"
)

func traceApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.TraceID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.GetTraceID(c) + "|" + middleware.TraceIDFromContext(c.UserContext()))
	})
	return app
}

func traceOf(t *testing.T, app *fiber.App, headers map[string]string) (string, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	buf := new(strings.Builder)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	parts := strings.SplitN(buf.String(), "|", 2)
	require.Len(t, parts, 2)
	require.Equal(t, parts[0], parts[1])
	return parts[0], resp.Header.Get(middleware.TraceHeader)
}

func TestTraceIDPrefersIncomingHeaders(t *testing.T) {
	app := traceApp()

	id, echoed := traceOf(t, app, map[string]string{middleware.TraceHeader: "trace-1", "X-Correlation-ID": "corr-1"})
	require.Equal(t, "trace-1", id)
	require.Equal(t, "trace-1", echoed)

	id, _ = traceOf(t, app, map[string]string{"X-Correlation-ID": "corr-1"})
	require.Equal(t, "corr-1", id)

	id, _ = traceOf(t, app, map[string]string{"X-Request-ID": "req:42"})
	require.Equal(t, "req:42", id)
}

func TestTraceIDReplacesUnusableIDs(t *testing.T) {
	app := traceApp()

	for _, incoming := range []string{"", "has spaces", "<script>", strings.Repeat("a", 129)} {
		id, echoed := traceOf(t, app, map[string]string{middleware.TraceHeader: incoming})
		_, err := uuid.Parse(id)
		require.NoError(t, err, "incoming %q", incoming)
		require.Equal(t, id, echoed)
	}
}

func TestSubmissionRateLimitPerUser(t *testing.T) {
	app := fiber.New()
	app.Post("/", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(len(c.Get("X-User"))))
		return c.Next()
	}, middleware.SubmissionRateLimit("reviews", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	post := func(user string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	require.Equal(t, fiber.StatusCreated, post("a").StatusCode)
	require.Equal(t, fiber.StatusCreated, post("a").StatusCode)
	limited := post("a")
	require.Equal(t, fiber.StatusTooManyRequests, limited.StatusCode)
	require.Equal(t, "60", limited.Header.Get(fiber.HeaderRetryAfter))

	require.Equal(t, fiber.StatusCreated, post("bb").StatusCode)
}
