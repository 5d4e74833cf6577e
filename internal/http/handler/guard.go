package handler

import (
	"github.com/gofiber/fiber/v2"

	"pdflearn/internal/http/middleware"
	"pdflearn/internal/shell"
	"pdflearn/internal/workflow"
)

// RequireSession applies the shell's route guard to API routes. A session that could not be
// checked answers 503 so the client keeps waiting instead of treating the user as signed out.
func RequireSession(routes shell.Routes) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d := routes.Guard(middleware.StateFromCtx(c), c.Path())
		switch d.Action {
		case shell.ActionRenderShell, shell.ActionRender:
			return c.Next()
		case shell.ActionWait:
			c.Set(fiber.HeaderRetryAfter, "1")
			return writeEnvelope(c, fiber.StatusServiceUnavailable, errorEnvelope{
				Code:    "SESSION_PENDING",
				Message: "session status is not known yet, please retry",
				Action:  string(d.Action),
			})
		default:
			return writeEnvelope(c, fiber.StatusUnauthorized, errorEnvelope{
				Code:    "UNAUTHENTICATED",
				Message: "you must be signed in",
				Action:  string(d.Action),
				Target:  d.Location,
			})
		}
	}
}

// callerFrom builds the workflow caller of an authenticated request.
func callerFrom(c *fiber.Ctx) workflow.Caller {
	sess, _ := middleware.SessionFromCtx(c)
	return workflow.Caller{
		SessionID: sess.ID,
		UserID:    sess.UserID(),
		Token:     middleware.TokenFromCtx(c),
	}
}
