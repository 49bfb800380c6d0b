package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-review-api/internal/middleware"
)

const testSecret = "review-secret"

func signToken(t *testing.T, method jwt.SigningMethod, claims middleware.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func authApp(guards ...fiber.Handler) *fiber.App {
	app := fiber.New()
	handlers := append([]fiber.Handler{middleware.JWTProtected(testSecret)}, guards...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": middleware.UserID(c), "role": middleware.UserRole(c)})
	})
	app.Get("/", handlers...)
	return app
}

func call(t *testing.T, app *fiber.App, authorization string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set(fiber.HeaderAuthorization, authorization)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestJWTProtectedResolvesUserFromClaims(t *testing.T) {
	app := authApp()

	withUserID := signToken(t, jwt.SigningMethodHS256, middleware.Claims{UserID: 12, Role: " Student "})
	resp := call(t, app, "Bearer "+withUserID)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	withSubject := signToken(t, jwt.SigningMethodHS512, middleware.Claims{
		Role:             "teacher",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "34", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	resp = call(t, app, "bearer "+withSubject)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	app := authApp()

	require.Equal(t, fiber.StatusUnauthorized, call(t, app, "").StatusCode)
	require.Equal(t, fiber.StatusUnauthorized, call(t, app, "Token abc").StatusCode)
	require.Equal(t, fiber.StatusUnauthorized, call(t, app, "Bearer not-a-jwt").StatusCode)

	expired := signToken(t, jwt.SigningMethodHS256, middleware.Claims{
		UserID:           3,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	require.Equal(t, fiber.StatusUnauthorized, call(t, app, "Bearer "+expired).StatusCode)

	anonymous := signToken(t, jwt.SigningMethodHS256, middleware.Claims{Role: "student"})
	require.Equal(t, fiber.StatusUnauthorized, call(t, app, "Bearer "+anonymous).StatusCode)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{UserID: 3}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, call(t, app, "Bearer "+forged).StatusCode)
}

func TestRequireRole(t *testing.T) {
	app := authApp(middleware.RequireRole(middleware.RoleTeacher, middleware.RoleAdmin))

	teacher := signToken(t, jwt.SigningMethodHS256, middleware.Claims{UserID: 2, Role: "Teacher"})
	require.Equal(t, fiber.StatusOK, call(t, app, "Bearer "+teacher).StatusCode)

	student := signToken(t, jwt.SigningMethodHS256, middleware.Claims{UserID: 5, Role: "student"})
	require.Equal(t, fiber.StatusForbidden, call(t, app, "Bearer "+student).StatusCode)
}

func TestRequireUserWithoutAuthentication(t *testing.T) {
	app := fiber.New()
	app.Get("/", middleware.RequireUser(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/role", middleware.RequireRole(middleware.RoleAdmin), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/role", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
