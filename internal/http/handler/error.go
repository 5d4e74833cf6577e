package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"pdflearn/internal/analysis"
	"pdflearn/internal/confirm"
	"pdflearn/internal/http/middleware"
	"pdflearn/internal/prefs"
	"pdflearn/internal/service"
	"pdflearn/internal/workflow"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Ticket  *confirm.Ticket `json:"ticket,omitempty"`
	Action  string          `json:"action,omitempty"`
	Target  string          `json:"location,omitempty"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return writeEnvelope(c, status, errorEnvelope{Code: code, Message: message})
}

func writeEnvelope(c *fiber.Ctx, status int, env errorEnvelope) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: middleware.RequestIDFromCtx(c),
		Error:     env,
	})
}

// errorMapping translates a domain error into a response. The error text is shown to the
// user, so only sentinels with user-safe messages belong here.
type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	// auth
	{service.ErrUnauthenticated, fiber.StatusUnauthorized, "UNAUTHENTICATED"},
	{service.ErrInvalidCredentials, fiber.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{service.ErrCurrentPasswordIncorrect, fiber.StatusForbidden, "REAUTHENTICATION_FAILED"},
	{service.ErrEmailTaken, fiber.StatusConflict, "EMAIL_TAKEN"},
	{service.ErrResetCodeInvalid, fiber.StatusBadRequest, "INVALID_RESET_CODE"},
	{service.ErrEmailRequired, fiber.StatusBadRequest, "VALIDATION_ERROR"},
	{service.ErrInvalidEmail, fiber.StatusBadRequest, "VALIDATION_ERROR"},
	{service.ErrNameRequired, fiber.StatusBadRequest, "VALIDATION_ERROR"},
	{service.ErrPasswordTooShort, fiber.StatusBadRequest, "VALIDATION_ERROR"},
	{service.ErrPasswordMismatch, fiber.StatusBadRequest, "VALIDATION_ERROR"},
	{service.ErrCurrentPasswordRequired, fiber.StatusBadRequest, "VALIDATION_ERROR"},
	{service.ErrAccountUnavailable, fiber.StatusServiceUnavailable, "ACCOUNT_UNAVAILABLE"},

	// uploads
	{workflow.ErrUnsupportedType, fiber.StatusUnsupportedMediaType, "UNSUPPORTED_FILE_TYPE"},
	{workflow.ErrFileTooLarge, fiber.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
	{workflow.ErrEmptyFile, fiber.StatusBadRequest, "FILE_EMPTY"},
	{workflow.ErrNoFile, fiber.StatusBadRequest, "FILE_REQUIRED"},
	{workflow.ErrBusy, fiber.StatusConflict, "BUSY"},
	{workflow.ErrConflict, fiber.StatusConflict, "BUSY"},
	{workflow.ErrNotInFlight, fiber.StatusConflict, "INVALID_STATE"},
	{workflow.ErrNotReady, fiber.StatusConflict, "INVALID_STATE"},
	{workflow.ErrStaleConfirmation, fiber.StatusConflict, "STALE_CONFIRMATION"},

	// confirmation tickets
	{confirm.ErrTicketNotFound, fiber.StatusNotFound, "CONFIRMATION_NOT_FOUND"},
	{confirm.ErrKindMismatch, fiber.StatusConflict, "CONFIRMATION_MISMATCH"},

	// saved resources
	{service.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{service.ErrIDRequired, fiber.StatusBadRequest, "INVALID_ID"},
	{service.ErrCorrelationIDRequired, fiber.StatusBadRequest, "VALIDATION_ERROR"},
	{service.ErrTitleRequired, fiber.StatusBadRequest, "VALIDATION_ERROR"},
	{service.ErrEmptySelection, fiber.StatusBadRequest, "VALIDATION_ERROR"},
	{service.ErrUnknownSelection, fiber.StatusBadRequest, "VALIDATION_ERROR"},
	{service.ErrAlreadySaved, fiber.StatusConflict, "ALREADY_SAVED"},

	// preferences
	{prefs.ErrInvalidKey, fiber.StatusBadRequest, "INVALID_KEY"},
	{prefs.ErrInvalidValue, fiber.StatusBadRequest, "INVALID_VALUE"},
	{prefs.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
}

// respondError maps err onto the standardized envelope. Unknown errors are logged and
// reported as a generic internal error.
func respondError(c *fiber.Ctx, err error) error {
	var confirmErr *workflow.ConfirmationRequiredError
	if errors.As(err, &confirmErr) {
		return writeEnvelope(c, fiber.StatusConflict, errorEnvelope{
			Code:    "CONFIRMATION_REQUIRED",
			Message: confirmErr.Ticket.Description,
			Ticket:  confirmErr.Ticket,
		})
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return writeError(c, m.status, m.code, m.target.Error())
		}
	}
	if errors.Is(err, analysis.ErrUpstream) {
		middleware.LoggerFromCtx(c).WarnContext(c.UserContext(), "analysis_upstream_error",
			"request_id", middleware.RequestIDFromCtx(c),
			"error", err.Error(),
		)
		return writeError(c, fiber.StatusBadGateway, "UPSTREAM_ERROR", "the analysis service is unavailable, please try again")
	}

	middleware.LoggerFromCtx(c).ErrorContext(c.UserContext(), "request_failed",
		"request_id", middleware.RequestIDFromCtx(c),
		"path", c.Path(),
		"error", err.Error(),
	)
	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

// isMapped reports whether err is a domain error with a user-safe answer.
func isMapped(err error) bool {
	var confirmErr *workflow.ConfirmationRequiredError
	if errors.As(err, &confirmErr) {
		return true
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return true
		}
	}
	return false
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var e *fiber.Error
		if errors.As(err, &e) {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "FILE_TOO_LARGE", "request body is too large")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
