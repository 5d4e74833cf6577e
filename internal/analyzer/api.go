package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pdflearn/internal/audit"
	"pdflearn/internal/http/middleware"
	"pdflearn/internal/identity"
	"pdflearn/internal/model"
	"pdflearn/internal/storage"
)

const (
	ownerLocalKey = "analyzer_owner"
	pdfMIME       = "application/pdf"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*identity.Claims, error)
}

// ServerOptions configures the analysis API.
type ServerOptions struct {
	Jobs     *JobStore
	Blobs    storage.Storage
	Queue    Queue
	Verifier TokenVerifier
	Redis    redis.UniversalClient
	MaxBytes int64
	Metrics  *Metrics
	Logger   *slog.Logger
}

// Server is the HTTP surface of the analysis service.
type Server struct {
	jobs     *JobStore
	blobs    storage.Storage
	queue    Queue
	verifier TokenVerifier
	rdb      redis.UniversalClient
	maxBytes int64
	metrics  *Metrics
	logger   *slog.Logger
}

// NewServer builds the analysis API.
func NewServer(opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 5 << 20
	}
	return &Server{
		jobs:     opts.Jobs,
		blobs:    opts.Blobs,
		queue:    opts.Queue,
		verifier: opts.Verifier,
		rdb:      opts.Redis,
		maxBytes: opts.MaxBytes,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("component", "analyzer_api"),
	}
}

// Register mounts the /api routes.
func (s *Server) Register(r fiber.Router) {
	api := r.Group("/api")
	api.Get("/health", s.Health)
	api.Post("/log_user_action", s.LogUserAction)
	api.Post("/analyze-pdf", s.Authenticate, s.AnalyzePDF)
	api.Get("/analyze-pdf-status/:id", s.Authenticate, s.Status)
	api.Post("/halt_pdf_process", s.Authenticate, s.Halt)
	api.Delete("/delete-pdf", s.Authenticate, s.DeletePDF)
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "message": msg, "error": msg})
}

func owner(c *fiber.Ctx) string {
	v, _ := c.Locals(ownerLocalKey).(string)
	return v
}

// Authenticate requires a valid bearer token and records its subject as the job owner.
func (s *Server) Authenticate(c *fiber.Ctx) error {
	claims, err := s.verifier.Verify(c.UserContext(), middleware.BearerToken(c))
	if errors.Is(err, identity.ErrInvalidToken) {
		return fail(c, fiber.StatusUnauthorized, "Invalid or missing bearer token")
	}
	if err != nil {
		s.logger.ErrorContext(c.UserContext(), "token_verification_failed", "error", err.Error())
		return fail(c, fiber.StatusServiceUnavailable, "Authentication is temporarily unavailable")
	}
	c.Locals(ownerLocalKey, claims.Subject)
	return c.Next()
}

// ownedJob returns the job when it exists and belongs to the caller.
func (s *Server) ownedJob(c *fiber.Ctx, id string) (*Job, error) {
	job, err := s.jobs.Get(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if job.Owner != owner(c) {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// AnalyzePDF stores the uploaded PDF and queues its analysis.
//
// @Summary Submit a PDF for analysis
// @Tags analyzer
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param uuid formData string true "correlation id"
// @Param file formData file true "PDF file"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 413 {object} map[string]interface{}
// @Failure 415 {object} map[string]interface{}
// @Router /api/analyze-pdf [post]
func (s *Server) AnalyzePDF(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := strings.TrimSpace(c.FormValue("uuid"))
	if _, err := uuid.Parse(id); err != nil {
		return fail(c, fiber.StatusBadRequest, "A valid uuid is required")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Please upload a PDF file")
	}
	if mt, _, err := mime.ParseMediaType(fh.Header.Get(fiber.HeaderContentType)); err != nil || mt != pdfMIME {
		return fail(c, fiber.StatusUnsupportedMediaType, "Only PDF files are allowed")
	}
	if fh.Size > s.maxBytes {
		return fail(c, fiber.StatusRequestEntityTooLarge, "File size must be less than 5MB")
	}
	if fh.Size == 0 {
		return fail(c, fiber.StatusBadRequest, "The file is empty")
	}

	filename := storage.SafeName(fh.Filename)
	job := &Job{
		ID:         id,
		Owner:      owner(c),
		Filename:   filename,
		StorageKey: storage.UploadKey(id, filename),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, ErrJobExists) {
			return fail(c, fiber.StatusConflict, "This uuid is already in use")
		}
		s.logger.ErrorContext(ctx, "job_create_failed", "job_id", id, "error", err.Error())
		return fail(c, fiber.StatusInternalServerError, "Error processing PDF")
	}

	f, err := fh.Open()
	if err != nil {
		_ = s.jobs.Delete(ctx, id)
		return fail(c, fiber.StatusBadRequest, "Could not read the uploaded file")
	}
	defer f.Close()

	_, err = s.blobs.Put(ctx, job.StorageKey, f, storage.PutObjectOptions{
		Size:        fh.Size,
		ContentType: pdfMIME,
		Metadata:    map[string]string{"owner": job.Owner, "job": id},
	})
	if err != nil {
		_ = s.jobs.Delete(ctx, id)
		s.logger.ErrorContext(ctx, "pdf_store_failed", "job_id", id, "error", err.Error())
		return fail(c, fiber.StatusInternalServerError, "Error storing PDF")
	}

	err = s.queue.Enqueue(ctx, AnalyzePayload{JobID: id, StorageKey: job.StorageKey, Filename: filename})
	if err != nil {
		_ = s.blobs.Delete(ctx, job.StorageKey)
		_ = s.jobs.Delete(ctx, id)
		s.logger.ErrorContext(ctx, "job_enqueue_failed", "job_id", id, "error", err.Error())
		return fail(c, fiber.StatusServiceUnavailable, "Analysis queue is unavailable")
	}

	s.metrics.submit()
	s.logger.InfoContext(ctx, "analysis_queued", "job_id", id, "filename", filename, "size", fh.Size)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"uuid":    id,
		"status":  model.JobPending,
	})
}

// Status reports the job's status and, once done, its result.
//
// @Summary Analysis job status
// @Tags analyzer
// @Produce json
// @Security BearerAuth
// @Param id path string true "correlation id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/analyze-pdf-status/{id} [get]
func (s *Server) Status(c *fiber.Ctx) error {
	job, err := s.ownedJob(c, c.Params("id"))
	if errors.Is(err, ErrJobNotFound) {
		return fail(c, fiber.StatusNotFound, "Job not found")
	}
	if err != nil {
		s.logger.ErrorContext(c.UserContext(), "job_read_failed", "error", err.Error())
		return fail(c, fiber.StatusInternalServerError, "Error reading job")
	}
	body := fiber.Map{"status": job.Status, "result": job.Result}
	if job.Error != "" {
		body["error"] = job.Error
	}
	return c.JSON(body)
}

type jobRequest struct {
	UUID     string `json:"uuid"`
	Filename string `json:"filename"`
}

// Halt asks a running analysis to stop. Queued analyses are cancelled at once.
//
// @Summary Halt an analysis
// @Tags analyzer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 202 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/halt_pdf_process [post]
func (s *Server) Halt(c *fiber.Ctx) error {
	ctx := c.UserContext()
	var req jobRequest
	if err := c.BodyParser(&req); err != nil || req.UUID == "" {
		return fail(c, fiber.StatusBadRequest, "A uuid is required")
	}
	job, err := s.ownedJob(c, req.UUID)
	if errors.Is(err, ErrJobNotFound) {
		return fail(c, fiber.StatusNotFound, "Job not found")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Error reading job")
	}
	if job.Status.Terminal() {
		return c.JSON(fiber.Map{"success": true, "status": job.Status})
	}

	if err := s.jobs.RequestHalt(ctx, job.ID); err != nil {
		s.logger.ErrorContext(ctx, "halt_request_failed", "job_id", job.ID, "error", err.Error())
		return fail(c, fiber.StatusInternalServerError, "Error halting job")
	}
	status := model.JobPending
	if s.queue.Cancel(job.ID) {
		if _, err := s.jobs.Finish(ctx, job.ID, model.JobCancelled, nil, ""); err == nil {
			s.metrics.finish(model.JobCancelled)
			status = model.JobCancelled
		}
	}
	s.logger.InfoContext(ctx, "analysis_halt_requested", "job_id", job.ID, "status", string(status))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true, "status": status})
}

// DeletePDF removes the uploaded PDF and forgets its job.
//
// @Summary Delete an uploaded PDF
// @Tags analyzer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/delete-pdf [delete]
func (s *Server) DeletePDF(c *fiber.Ctx) error {
	ctx := c.UserContext()
	var req jobRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "A uuid is required")
	}
	if _, err := uuid.Parse(req.UUID); err != nil {
		return fail(c, fiber.StatusBadRequest, "A valid uuid is required")
	}

	job, err := s.jobs.Get(ctx, req.UUID)
	switch {
	case errors.Is(err, ErrJobNotFound):
	case err != nil:
		return fail(c, fiber.StatusInternalServerError, "Error reading job")
	case job.Owner != owner(c):
		return fail(c, fiber.StatusNotFound, "Job not found")
	case !job.Status.Terminal():
		s.queue.Cancel(job.ID)
	}

	removed, err := s.blobs.DeletePrefix(ctx, storage.UploadPrefix+req.UUID+"-")
	if err != nil {
		s.logger.ErrorContext(ctx, "pdf_delete_failed", "job_id", req.UUID, "error", err.Error())
		return fail(c, fiber.StatusInternalServerError, "Error deleting PDF")
	}
	if err := s.jobs.Delete(ctx, req.UUID); err != nil {
		s.logger.ErrorContext(ctx, "job_delete_failed", "job_id", req.UUID, "error", err.Error())
		return fail(c, fiber.StatusInternalServerError, "Error deleting job")
	}
	s.logger.InfoContext(ctx, "pdf_deleted", "job_id", req.UUID, "objects", removed)
	return c.JSON(fiber.Map{"success": true, "removed": removed})
}

// LogUserAction records one audit event from the application server.
//
// @Summary Record a user action
// @Tags analyzer
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/log_user_action [post]
func (s *Server) LogUserAction(c *fiber.Ctx) error {
	var e audit.Event
	if err := c.BodyParser(&e); err != nil || strings.TrimSpace(e.Action) == "" {
		return fail(c, fiber.StatusBadRequest, "An action is required")
	}
	if e.Level != audit.LevelWarn && e.Level != audit.LevelError {
		e.Level = audit.LevelInfo
	}
	audit.SlogLogger{Logger: s.logger.With("remote_at", e.Timestamp)}.Log(c.UserContext(), e)
	s.metrics.action(string(e.Level))
	return c.JSON(fiber.Map{"success": true})
}

// Health reports whether the job store is reachable.
//
// @Summary Analyzer health
// @Tags analyzer
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/health [get]
func (s *Server) Health(c *fiber.Ctx) error {
	if s.rdb != nil {
		if err := s.rdb.Ping(c.UserContext()).Err(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy"})
		}
	}
	return c.JSON(fiber.Map{"status": "healthy"})
}
