package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mzziin/PrimeCart/internal/apperror"
)

func httpStatusFromKind(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return fiber.StatusBadRequest
	case apperror.KindNotFound:
		return fiber.StatusNotFound
	case apperror.KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	kind := apperror.KindOf(err)
	status := httpStatusFromKind(kind)

	message := err.Error()
	if kind == apperror.KindInternal {
		// Internal causes stay in logs, not in responses.
		message = "internal error"
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"kind":  kind.String(),
	})
}
