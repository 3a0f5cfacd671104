package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/hidenkeys/aloes/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Status maps an error to the HTTP status reported to the client.
func Status(err error) int {
	var fe *fiber.Error
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyLocked):
		return fiber.StatusLocked
	case errors.Is(err, apperr.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, apperr.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrPermission):
		return fiber.StatusForbidden
	case errors.As(err, &fe):
		return fe.Code
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every error returned by a handler as a Flash.
// Unexpected errors are logged and hidden behind a generic message.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status := Status(err)

		var message string
		var fe *fiber.Error
		switch {
		case status >= fiber.StatusInternalServerError:
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Any("request_id", c.Locals(requestIDKey)),
				zap.Error(err),
			)
			message = "Une erreur interne est survenue"
		case errors.Is(err, gorm.ErrRecordNotFound):
			message = "Objet introuvable"
		case errors.As(err, &fe):
			message = fe.Message
		default:
			message = apperr.Message(err)
		}

		return c.Status(status).JSON(Flash{
			Level:   LevelError,
			Message: message,
			Fields:  apperr.Fields(err),
		})
	}
}
