package http

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/geofield/internal/core/domain"
)

var errMissing = errors.New("required")

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, config_error, not_found, internal_error, etc.
	Message   string `json:"message"` // Human-readable message
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusServiceUnavailable, "unavailable", msg)
}

// errDomain maps a domain failure onto the error envelope.
func errDomain(c *fiber.Ctx, err error) error {
	var (
		cfgErr    *domain.ConfigError
		pluginErr *domain.PluginError
	)
	switch {
	case errors.As(err, &cfgErr):
		reqID, _ := c.Locals("requestid").(string)
		return c.Status(fiber.StatusBadRequest).JSON(APIError{
			Status:    fiber.StatusBadRequest,
			Code:      "config_error",
			Message:   err.Error(),
			Field:     cfgErr.Field,
			RequestID: reqID,
		})
	case errors.Is(err, domain.ErrRecursiveRender):
		return newError(c, fiber.StatusConflict, "recursive_render", err.Error())
	case errors.Is(err, domain.ErrUnknownThemer):
		return errNotFound(c, err.Error())
	case errors.As(err, &pluginErr):
		return newError(c, fiber.StatusUnprocessableEntity, "plugin_error", err.Error())
	case errors.Is(err, domain.ErrOutOfRange):
		return errBadRequest(c, err.Error())
	}
	LoggerFromCtx(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
	return errInternal(c, "internal error")
}

// unmarshalStrict decodes JSON rejecting unknown fields.
func unmarshalStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
