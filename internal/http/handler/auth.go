package handler

import (
	"github.com/gofiber/fiber/v2"

	"pdflearn/internal/http/middleware"
	"pdflearn/internal/service"
	"pdflearn/internal/shell"
)

// Where the client goes after each auth flow.
const (
	nextHome   = "/"
	nextSignIn = "/login"
)

func badBody(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
}

// SignUp creates an account and its profile record.
//
// @Summary Create an account
// @Tags auth
// @Accept json
// @Produce json
// @Param body body service.SignUpRequest true "account"
// @Success 201 {object} map[string]any
// @Failure 400 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /auth/signup [post]
func SignUp(svc service.AccountService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.SignUpRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		user, err := svc.SignUp(c.UserContext(), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user, "next": nextSignIn})
	}
}

// SignIn exchanges credentials for a bearer token.
//
// @Summary Sign in with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param body body service.SignInRequest true "credentials"
// @Success 200 {object} map[string]any
// @Failure 401 {object} errorPayload
// @Router /auth/login [post]
func SignIn(svc service.AccountService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.SignInRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		tok, err := svc.SignIn(c.UserContext(), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"token": tok, "next": nextHome})
	}
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword sends a reset email. The answer does not reveal whether the address is known.
//
// @Summary Request a password reset email
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} errorPayload
// @Router /auth/forgot-password [post]
func ForgotPassword(svc service.AccountService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req forgotPasswordRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		if err := svc.ForgotPassword(c.UserContext(), req.Email); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": service.PasswordResetSent})
	}
}

// VerifyResetCode is the first step of a reset: it checks the emailed code.
//
// @Summary Verify a password reset code
// @Tags auth
// @Produce json
// @Param code query string true "reset code"
// @Success 200 {object} map[string]string
// @Failure 400 {object} errorPayload
// @Router /auth/reset-password [get]
func VerifyResetCode(svc service.AccountService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		email, err := svc.VerifyReset(c.UserContext(), c.Query("code"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"email": email})
	}
}

// ResetPassword sets a new password with a verified code.
//
// @Summary Reset a password
// @Tags auth
// @Accept json
// @Produce json
// @Param body body service.ResetPasswordRequest true "new password"
// @Success 200 {object} map[string]string
// @Failure 400 {object} errorPayload
// @Router /auth/reset-password [post]
func ResetPassword(svc service.AccountService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.ResetPasswordRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		if err := svc.ResetPassword(c.UserContext(), req); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "Password has been reset. Please sign in.", "next": nextSignIn})
	}
}

// ChangePassword re-authenticates with the current password and sets a new one.
//
// @Summary Change the password
// @Tags account
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.ChangePasswordRequest true "passwords"
// @Success 200 {object} map[string]string
// @Failure 400 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Router /account/password [post]
func ChangePassword(svc service.AccountService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.ChangePasswordRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		sess, _ := middleware.SessionFromCtx(c)
		if err := svc.ChangePassword(c.UserContext(), sess.UserID(), req); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "Password updated successfully."})
	}
}

// SignOut revokes the current token.
//
// @Summary Sign out
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func SignOut(svc service.AccountService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, _ := middleware.SessionFromCtx(c)
		if err := svc.SignOut(c.UserContext(), sess.UserID(), middleware.TokenFromCtx(c)); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"next": nextSignIn})
	}
}

// CurrentSession returns the signed-in identity and its display name.
//
// @Summary Current session
// @Tags session
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.Session
// @Router /session [get]
func CurrentSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, _ := middleware.SessionFromCtx(c)
		return c.JSON(sess)
	}
}

// Navigation returns the sidebar for the page in ?path=.
//
// @Summary Sidebar navigation
// @Tags session
// @Produce json
// @Security BearerAuth
// @Param path query string false "current page"
// @Success 200 {object} shell.Nav
// @Router /nav [get]
func Navigation() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(shell.NavItems(c.Query("path", "/")))
	}
}

// ShellDecision tells the client what to render for the page in ?path=. It is public:
// the answer depends on the session state of the request, whatever it is.
//
// @Summary Route guard decision
// @Tags session
// @Produce json
// @Param path query string false "page to render"
// @Success 200 {object} map[string]any
// @Router /shell [get]
func ShellDecision(routes shell.Routes) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Query("path", "/")
		d := routes.Guard(middleware.StateFromCtx(c), path)
		res := fiber.Map{"decision": d}
		if d.Action == shell.ActionRenderShell {
			sess, _ := middleware.SessionFromCtx(c)
			res["nav"] = shell.NavItems(path)
			res["user_name"] = sess.UserName
		}
		return c.JSON(res)
	}
}
