package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// LoggerLocalKey holds the application logger in Fiber's context locals.
const LoggerLocalKey = "logger"

// WithLogger exposes logger to downstream handlers through LoggerFromCtx.
func WithLogger(logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		c.Locals(LoggerLocalKey, logger)
		return c.Next()
	}
}

// LoggerFromCtx returns the logger set by WithLogger, or the default logger.
func LoggerFromCtx(c *fiber.Ctx) *slog.Logger {
	if l, ok := c.Locals(LoggerLocalKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// RequestLogger logs each request through logger. Fields: request_id, method, path,
// status, latency in milliseconds, and user_id once a session is resolved.
func RequestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else if status < fiber.StatusBadRequest {
				status = fiber.StatusInternalServerError
			}
		}

		rid, _ := c.Locals(RequestIDLocalKey).(string)
		attrs := []slog.Attr{
			slog.String("request_id", rid),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Float64("latency", float64(time.Since(start).Microseconds())/1000),
		}
		if sess, ok := SessionFromCtx(c); ok && sess.Authenticated {
			attrs = append(attrs, slog.String("user_id", sess.UserID()))
		}

		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c.UserContext(), level, "http_request", attrs...)

		return err
	}
}
