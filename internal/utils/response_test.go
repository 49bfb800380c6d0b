package utils_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-review-api/internal/utils"
)

func serve(t *testing.T, handler fiber.Handler) (int, map[string]interface{}) {
	t.Helper()

	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	return resp.StatusCode, payload
}

func TestOKCarriesMeta(t *testing.T) {
	status, payload := serve(t, func(c *fiber.Ctx) error {
		return utils.OK(c, fiber.Map{"id": 3}, "", fiber.Map{"trace_id": "trace-1"})
	})

	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, true, payload["success"])
	require.Equal(t, "success", payload["message"])
	require.Equal(t, map[string]interface{}{"id": float64(3)}, payload["data"])
	require.Equal(t, map[string]interface{}{"trace_id": "trace-1"}, payload["meta"])
	require.NotContains(t, payload, "details")
}

func TestFailCarriesDetailsAndDefaults(t *testing.T) {
	status, payload := serve(t, func(c *fiber.Ctx) error {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", "Key: 'ReviewCreateRequest.Text' failed on the 'required' tag")
	})
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, false, payload["success"])
	require.Equal(t, "validation failed", payload["message"])
	require.Contains(t, payload["details"], "ReviewCreateRequest.Text")
	require.NotContains(t, payload, "data")

	status, payload = serve(t, func(c *fiber.Ctx) error {
		return utils.Fail(c, 0, "", nil)
	})
	require.Equal(t, fiber.StatusInternalServerError, status)
	require.Equal(t, "error", payload["message"])
	require.NotContains(t, payload, "details")
}

func TestSendSuccessWithStatus(t *testing.T) {
	status, payload := serve(t, func(c *fiber.Ctx) error {
		return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "revision queued", fiber.Map{"submission_id": 4})
	})

	require.Equal(t, fiber.StatusAccepted, status)
	require.Equal(t, true, payload["success"])
	require.Equal(t, "revision queued", payload["message"])
	require.NotContains(t, payload, "meta")
}

func TestSendErrorUsesEnvelope(t *testing.T) {
	status, payload := serve(t, func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusConflict, "Already submitted")
	})

	require.Equal(t, fiber.StatusConflict, status)
	require.Equal(t, false, payload["success"])
	require.Equal(t, "Already submitted", payload["message"])
}
