package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"pdflearn/internal/http/middleware"
	"pdflearn/internal/service"
)

func ownerID(c *fiber.Ctx) string {
	sess, _ := middleware.SessionFromCtx(c)
	return sess.UserID()
}

// ListDocuments lists the caller's saved documents, newest first.
//
// @Summary List saved documents
// @Tags library
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.DocumentListResult
// @Router /documents [get]
func ListDocuments(svc service.BrowserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.Documents(c.UserContext(), ownerID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// GetDocument returns one saved document with its resources.
//
// @Summary Get a saved document
// @Tags library
// @Produce json
// @Security BearerAuth
// @Param id path string true "document id"
// @Success 200 {object} service.DocumentDetail
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [get]
func GetDocument(svc service.BrowserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		res, err := svc.Document(c.UserContext(), ownerID(c), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// BrowseResources lists every saved resource matching ?q= on title or category, best first.
//
// @Summary Browse saved resources
// @Tags library
// @Produce json
// @Security BearerAuth
// @Param q query string false "filter"
// @Success 200 {object} service.BrowseResult
// @Router /resources [get]
func BrowseResources(svc service.BrowserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.Browse(c.UserContext(), ownerID(c), c.Query("q"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// SelectResources returns the ids of the filtered view for select-all, also grouped per document.
//
// @Summary Select all resources in the filtered view
// @Tags library
// @Produce json
// @Security BearerAuth
// @Param q query string false "filter"
// @Success 200 {object} service.SelectionResult
// @Router /resources/selection [get]
func SelectResources(svc service.BrowserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sel, err := svc.Selection(c.UserContext(), ownerID(c), c.Query("q"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(sel)
	}
}

// RequestDeletion returns a ticket describing exactly what would be deleted.
//
// @Summary Request a deletion
// @Tags library
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.DeletionRequest true "what to delete"
// @Success 202 {object} confirm.Ticket
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /deletions [post]
func RequestDeletion(svc service.ResourceService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.DeletionRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		ticket, err := svc.RequestDeletion(c.UserContext(), ownerID(c), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(ticket)
	}
}

// ConfirmDeletion executes a requested deletion. Cleanup problems come back as warnings.
//
// @Summary Confirm a deletion
// @Tags library
// @Produce json
// @Security BearerAuth
// @Param token path string true "ticket token"
// @Success 200 {object} service.DeletionResult
// @Failure 404 {object} errorPayload
// @Router /deletions/{token}/confirm [post]
func ConfirmDeletion(svc service.ResourceService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.ConfirmDeletion(c.UserContext(), ownerID(c), middleware.TokenFromCtx(c), c.Params("token"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}

// CancelDeletion drops a pending deletion ticket.
//
// @Summary Cancel a deletion
// @Tags library
// @Security BearerAuth
// @Param token path string true "ticket token"
// @Success 204
// @Router /deletions/{token} [delete]
func CancelDeletion(svc service.ResourceService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.CancelDeletion(c.UserContext(), ownerID(c), c.Params("token")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
