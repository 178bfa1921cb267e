package handlers

import (
	"errors"

	"raildrops/services"
	"raildrops/utils"
	"raildrops/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/google/logger"
	"gorm.io/gorm"
)

// respondError maps service errors onto HTTP responses. Validation failures
// carry the offending field so forms can highlight it.
func respondError(c *fiber.Ctx, err error) error {
	var fieldErr *services.GiveawayFieldError
	switch {
	case errors.As(err, &fieldErr):
		return fieldError(c, fieldErr.Field, fieldErr.Error())
	case errors.Is(err, services.ErrMissingAnswer), errors.Is(err, services.ErrInvalidAnswer):
		return fieldError(c, "answer", err.Error())
	case errors.Is(err, services.ErrMissingLocation),
		errors.Is(err, services.ErrInvalidCityFormat),
		errors.Is(err, services.ErrCityMismatch):
		return fieldError(c, "user_location_city", err.Error())
	case errors.Is(err, utils.ErrUnsupportedImage):
		return fieldError(c, "image", err.Error())
	case errors.Is(err, services.ErrDuplicateEntry), errors.Is(err, services.ErrBusinessExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrEntryNotAllowed), errors.Is(err, services.ErrNotBusinessOwner):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrGiveawayNotFound),
		errors.Is(err, services.ErrBusinessNotFound),
		errors.Is(err, workers.ErrTaskNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, services.ErrNotYetExpired), errors.Is(err, services.ErrNoEntries):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, workers.ErrDispatcherStopped):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	default:
		logger.Errorf("❌ [HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}

func fieldError(c *fiber.Ctx, field, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg, "field": field})
}
