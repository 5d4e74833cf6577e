package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdflearn/internal/logging"
	"pdflearn/internal/model"
	"pdflearn/internal/shell"
)

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendString(RequestIDFromCtx(c))
	})

	t.Run("should generate new request id if not present", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		ridHeader := resp.Header.Get(RequestIDHeader)
		assert.NotEmpty(t, ridHeader)

		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		assert.Equal(t, ridHeader, buf.String())
	})

	t.Run("should preserve existing request id", func(t *testing.T) {
		existingID := "test-id-123"
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, existingID)

		resp, _ := app.Test(req)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, existingID, resp.Header.Get(RequestIDHeader))

		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		assert.Equal(t, existingID, buf.String())
	})

	t.Run("should replace oversized request id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))

		resp, _ := app.Test(req)

		assert.Len(t, resp.Header.Get(RequestIDHeader), 36)
	})
}

func TestNoStore(t *testing.T) {
	app := fiber.New()
	app.Use(NoStore())

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest("GET", "/test", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get(fiber.HeaderCacheControl))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(RequestID())
	app.Use(RequestLogger(logging.New("info", &buf)))

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var logData map[string]any
	err := json.Unmarshal(buf.Bytes(), &logData)
	assert.NoError(t, err)

	assert.NotEmpty(t, logData["request_id"])
	assert.Equal(t, "GET", logData["method"])
	assert.Equal(t, "/test", logData["path"])
	assert.Equal(t, float64(fiber.StatusAccepted), logData["status"])
	assert.NotNil(t, logData["latency"])
	assert.Equal(t, "http_request", logData["msg"])
	assert.NotContains(t, logData, "user_id")
}

type fakeResolver struct {
	sessions map[string]model.Session
	err      error
}

func (f fakeResolver) Resolve(_ context.Context, token string) (model.Session, error) {
	if f.err != nil {
		return model.Session{}, f.err
	}
	return f.sessions[token], nil
}

func TestSession(t *testing.T) {
	signedIn := model.Session{ID: "sess-1", User: &model.User{ID: "user-1"}, Authenticated: true}
	resolver := fakeResolver{sessions: map[string]model.Session{"good": signedIn}}

	newApp := func(r SessionResolver) *fiber.App {
		app := fiber.New()
		app.Use(Session(r, logging.Discard()))
		app.Get("/who", func(c *fiber.Ctx) error {
			sess, _ := SessionFromCtx(c)
			return c.JSON(fiber.Map{
				"state": StateFromCtx(c).String(),
				"user":  sess.UserID(),
				"token": TokenFromCtx(c),
			})
		})
		return app
	}

	tests := []struct {
		name      string
		resolver  SessionResolver
		header    string
		wantState string
		wantUser  string
	}{
		{"no header", resolver, "", "unauthenticated", ""},
		{"valid bearer", resolver, "Bearer good", "authenticated", "user-1"},
		{"lowercase scheme", resolver, "bearer good", "authenticated", "user-1"},
		{"unknown token", resolver, "Bearer stale", "unauthenticated", ""},
		{"wrong scheme", resolver, "Basic good", "unauthenticated", ""},
		{"verifier down", fakeResolver{err: errors.New("redis down")}, "Bearer good", "loading", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/who", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := newApp(tt.resolver).Test(req)
			require.NoError(t, err)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantState, body["state"])
			assert.Equal(t, tt.wantUser, body["user"])
		})
	}
}

func TestStateFromCtxDefaultsToLoading(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(StateFromCtx(c).String())
	})

	resp, _ := app.Test(httptest.NewRequest("GET", "/", nil))
	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	assert.Equal(t, shell.StateLoading.String(), buf.String())
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	injected := logging.New("info", &buf)

	app := fiber.New()
	app.Get("/bare", func(c *fiber.Ctx) error {
		assert.NotNil(t, LoggerFromCtx(c))
		return c.SendStatus(fiber.StatusOK)
	})
	app.Use(WithLogger(injected))
	app.Get("/logged", func(c *fiber.Ctx) error {
		LoggerFromCtx(c).Info("from_handler")
		return c.SendStatus(fiber.StatusOK)
	})

	resp, _ := app.Test(httptest.NewRequest("GET", "/bare", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = app.Test(httptest.NewRequest("GET", "/logged", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), `"msg":"from_handler"`)
}
