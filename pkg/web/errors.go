package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-murmur/pkg/capture"
	"github.com/teslashibe/go-murmur/pkg/live"
	"github.com/teslashibe/go-murmur/pkg/session"
	"github.com/teslashibe/go-murmur/pkg/studio"
	"github.com/teslashibe/go-murmur/pkg/tools"
)

// errorStatus maps a core error to an HTTP status and a stable code the
// dashboard can switch on.
func errorStatus(err error) (int, string) {
	var fe *fiber.Error
	var ge *studio.GenerationError
	switch {
	case errors.As(err, &fe):
		return fe.Code, "request"
	case session.IsConfigurationError(err):
		return fiber.StatusBadRequest, "configuration"
	case errors.Is(err, session.ErrActive), errors.Is(err, session.ErrStopped):
		return fiber.StatusConflict, "conflict"
	case errors.Is(err, capture.ErrPermissionDenied):
		return fiber.StatusForbidden, "permission_denied"
	case errors.Is(err, capture.ErrUnsupported):
		return fiber.StatusNotImplemented, "unsupported"
	case errors.Is(err, capture.ErrDeviceNotFound):
		return fiber.StatusNotFound, "device_not_found"
	case live.IsTransportError(err):
		return fiber.StatusBadGateway, "transport"
	case errors.Is(err, studio.ErrEmptyPrompt):
		return fiber.StatusBadRequest, "empty_prompt"
	case errors.Is(err, studio.ErrTimeout):
		return fiber.StatusGatewayTimeout, "timeout"
	case errors.As(err, &ge):
		return fiber.StatusBadGateway, "generation"
	case errors.Is(err, tools.ErrNotAuthenticated):
		return fiber.StatusUnauthorized, "not_authenticated"
	default:
		return fiber.StatusInternalServerError, "internal"
	}
}

// fail writes err as a JSON error response.
func fail(c *fiber.Ctx, err error) error {
	status, code := errorStatus(err)
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return fail(c, fiber.NewError(fiber.StatusBadRequest, msg))
}
