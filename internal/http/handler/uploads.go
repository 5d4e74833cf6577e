package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"pdflearn/internal/http/middleware"
	"pdflearn/internal/model"
	"pdflearn/internal/service"
	"pdflearn/internal/workflow"
)

// ConfirmTokenHeader carries a confirmation ticket token on requests that may need one.
const ConfirmTokenHeader = "X-Confirm-Token"

// Uploads drives the upload cycle of the caller's session.
type Uploads interface {
	Intake(ctx context.Context, caller workflow.Caller, f workflow.File, confirmToken string) (*model.Upload, error)
	Submit(ctx context.Context, caller workflow.Caller) (*model.Upload, error)
	Status(ctx context.Context, caller workflow.Caller) (*model.Upload, error)
	Halt(ctx context.Context, caller workflow.Caller) (*model.Upload, error)
	Remove(ctx context.Context, caller workflow.Caller, confirmToken string) (*model.Upload, error)
	Save(ctx context.Context, caller workflow.Caller, in workflow.SaveInput) (*service.SaveResult, error)
}

// UploadView is the client-facing upload state. Storage paths and owners stay server side.
type UploadView struct {
	Phase         model.UploadPhase         `json:"phase"`
	Halting       bool                      `json:"halting"`
	CorrelationID string                    `json:"correlation_id,omitempty"`
	Filename      string                    `json:"filename,omitempty"`
	Size          int64                     `json:"size,omitempty"`
	Error         string                    `json:"error,omitempty"`
	Resources     []model.ExtractedResource `json:"resources"`
}

func uploadView(u *model.Upload) UploadView {
	v := UploadView{
		Phase:         u.Phase,
		Halting:       u.Halting,
		CorrelationID: u.CorrelationID,
		Filename:      u.Filename,
		Size:          u.Size,
		Error:         u.Error,
		Resources:     u.Resources,
	}
	if v.Resources == nil {
		v.Resources = []model.ExtractedResource{}
	}
	return v
}

func confirmToken(c *fiber.Ctx) string {
	if t := c.Get(ConfirmTokenHeader); t != "" {
		return t
	}
	if t := c.FormValue("confirm_token"); t != "" {
		return t
	}
	return c.Query("confirm_token")
}

// IntakeUpload accepts a PDF (multipart/form-data, field name: file) for the session.
//
// @Summary Select a PDF for analysis
// @Tags uploads
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param file formData file true "PDF file"
// @Param X-Confirm-Token header string false "ticket to replace a running analysis"
// @Success 201 {object} UploadView
// @Failure 400 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Failure 413 {object} errorPayload
// @Failure 415 {object} errorPayload
// @Router /uploads [post]
func IntakeUpload(uploads Uploads) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		u, err := uploads.Intake(c.UserContext(), callerFrom(c), workflow.File{
			Name:        fh.Filename,
			ContentType: ct,
			Size:        fh.Size,
			Body:        f,
		}, confirmToken(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(uploadView(u))
	}
}

// ActiveUpload returns the session's upload and resumes polling of a running analysis.
//
// @Summary Current upload
// @Tags uploads
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UploadView
// @Router /uploads/active [get]
func ActiveUpload(uploads Uploads) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := uploads.Status(c.UserContext(), callerFrom(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(uploadView(u))
	}
}

// AnalyzeUpload submits the selected file to the analysis service.
//
// @Summary Start the analysis
// @Tags uploads
// @Produce json
// @Security BearerAuth
// @Success 202 {object} UploadView
// @Failure 400 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Router /uploads/active/analyze [post]
func AnalyzeUpload(uploads Uploads) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := uploads.Submit(c.UserContext(), callerFrom(c))
		if err != nil {
			if isMapped(err) {
				return respondError(c, err)
			}
			middleware.LoggerFromCtx(c).WarnContext(c.UserContext(), "analysis_submit_failed",
				"request_id", middleware.RequestIDFromCtx(c),
				"error", err.Error(),
			)
			return writeError(c, fiber.StatusBadGateway, "ANALYSIS_SUBMIT_FAILED", workflow.MsgSubmitFailed)
		}
		return c.Status(fiber.StatusAccepted).JSON(uploadView(u))
	}
}

// HaltUpload asks the analysis service to stop the running job.
//
// @Summary Cancel the running analysis
// @Tags uploads
// @Produce json
// @Security BearerAuth
// @Success 202 {object} UploadView
// @Failure 409 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Router /uploads/active/halt [post]
func HaltUpload(uploads Uploads) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := uploads.Halt(c.UserContext(), callerFrom(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(uploadView(u))
	}
}

// RemoveUpload discards the session's upload.
//
// @Summary Discard the current upload
// @Tags uploads
// @Produce json
// @Security BearerAuth
// @Param X-Confirm-Token header string false "ticket to discard a running analysis"
// @Success 200 {object} UploadView
// @Failure 409 {object} errorPayload
// @Router /uploads/active [delete]
func RemoveUpload(uploads Uploads) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := uploads.Remove(c.UserContext(), callerFrom(c), confirmToken(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(uploadView(u))
	}
}

// SaveUpload keeps the selected results as a saved document.
//
// @Summary Save selected resources
// @Tags uploads
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body workflow.SaveInput true "title and selected resource ids"
// @Success 201 {object} service.SaveResult
// @Failure 400 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /uploads/active/save [post]
func SaveUpload(uploads Uploads) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in workflow.SaveInput
		if err := c.BodyParser(&in); err != nil {
			return badBody(c)
		}
		res, err := uploads.Save(c.UserContext(), callerFrom(c), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}
