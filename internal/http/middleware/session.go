package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"pdflearn/internal/model"
	"pdflearn/internal/shell"
)

const (
	// SessionLocalKey holds the resolved model.Session.
	SessionLocalKey = "session"
	// TokenLocalKey holds the raw bearer token of the request.
	TokenLocalKey = "token"
	// StateLocalKey holds the shell.State observed for the request.
	StateLocalKey = "session_state"
)

// SessionResolver turns a bearer token into a session.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (model.Session, error)
}

// Session resolves the bearer token of every request and stores the outcome in locals.
// A token that cannot be checked right now leaves the state at loading; it is never
// treated as signed out.
func Session(resolver SessionResolver, logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		token := BearerToken(c)
		c.Locals(TokenLocalKey, token)

		sess, err := resolver.Resolve(c.UserContext(), token)
		switch {
		case err != nil:
			logger.WarnContext(c.UserContext(), "session_resolve_failed",
				"request_id", RequestIDFromCtx(c),
				"error", err.Error(),
			)
			c.Locals(StateLocalKey, shell.StateLoading)
		case sess.Authenticated:
			c.Locals(SessionLocalKey, sess)
			c.Locals(StateLocalKey, shell.StateAuthenticated)
		default:
			c.Locals(StateLocalKey, shell.StateUnauthenticated)
		}
		return c.Next()
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(c *fiber.Ctx) string {
	h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// SessionFromCtx returns the authenticated session of the request, if any.
func SessionFromCtx(c *fiber.Ctx) (model.Session, bool) {
	sess, ok := c.Locals(SessionLocalKey).(model.Session)
	return sess, ok && sess.Authenticated
}

// StateFromCtx returns the session state stored by Session. Without it the state is loading.
func StateFromCtx(c *fiber.Ctx) shell.State {
	if st, ok := c.Locals(StateLocalKey).(shell.State); ok {
		return st
	}
	return shell.StateLoading
}

// TokenFromCtx returns the bearer token stored by Session.
func TokenFromCtx(c *fiber.Ctx) string {
	t, _ := c.Locals(TokenLocalKey).(string)
	return t
}
