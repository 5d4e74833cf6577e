package handler

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
)

// Preferences stores small per-user JSON values.
type Preferences interface {
	Get(ctx context.Context, owner, key string) (json.RawMessage, error)
	All(ctx context.Context, owner string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, owner, key string, value json.RawMessage) error
	Delete(ctx context.Context, owner, key string) error
}

// ListPreferences returns every stored preference of the caller.
//
// @Summary List preferences
// @Tags preferences
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Router /preferences [get]
func ListPreferences(store Preferences) fiber.Handler {
	return func(c *fiber.Ctx) error {
		all, err := store.All(c.UserContext(), ownerID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(all)
	}
}

// GetPreference returns one stored value as-is.
//
// @Summary Get a preference
// @Tags preferences
// @Produce json
// @Security BearerAuth
// @Param key path string true "preference key"
// @Success 200 {object} any
// @Failure 404 {object} errorPayload
// @Router /preferences/{key} [get]
func GetPreference(store Preferences) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := store.Get(c.UserContext(), ownerID(c), c.Params("key"))
		if err != nil {
			return respondError(c, err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(v)
	}
}

// PutPreference stores the raw JSON body under key.
//
// @Summary Set a preference
// @Tags preferences
// @Accept json
// @Security BearerAuth
// @Param key path string true "preference key"
// @Success 204
// @Failure 400 {object} errorPayload
// @Router /preferences/{key} [put]
func PutPreference(store Preferences) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := append(json.RawMessage(nil), c.Body()...)
		if err := store.Set(c.UserContext(), ownerID(c), c.Params("key"), body); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DeletePreference removes key.
//
// @Summary Delete a preference
// @Tags preferences
// @Security BearerAuth
// @Param key path string true "preference key"
// @Success 204
// @Router /preferences/{key} [delete]
func DeletePreference(store Preferences) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := store.Delete(c.UserContext(), ownerID(c), c.Params("key")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
