package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// Kind is one of the error kinds enumerated in spec §7. Handlers return an
// *AppError instead of a bare error so the central mapper below is the only
// place that decides status codes.
type Kind string

const (
	KindAuthMissing        Kind = "auth.missing"
	KindAuthInvalid        Kind = "auth.invalid"
	KindAuthRevoked        Kind = "auth.revoked"
	KindAuthDeviceInactive Kind = "auth.device_inactive"

	KindInputMalformed Kind = "input.malformed"
	KindInputSchema    Kind = "input.schema"
	KindInputTooLarge  Kind = "input.too_large"

	KindRateLimited Kind = "rate.limited"

	KindResourceNotFound Kind = "resource.not_found"
	KindResourceConflict Kind = "resource.conflict"

	KindServerInternal Kind = "server.internal"
	KindServerTimeout  Kind = "server.timeout"
)

type AppError struct {
	Kind    Kind
	Message string
	Details interface{}
}

func (e *AppError) Error() string {
	return e.Message
}

func NewError(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func NewErrorWithDetails(kind Kind, message string, details interface{}) *AppError {
	return &AppError{Kind: kind, Message: message, Details: details}
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindAuthMissing, KindAuthInvalid:
		return fiber.StatusUnauthorized
	case KindAuthRevoked, KindAuthDeviceInactive:
		return fiber.StatusForbidden
	case KindInputMalformed, KindInputSchema:
		return fiber.StatusUnprocessableEntity
	case KindInputTooLarge:
		return fiber.StatusRequestEntityTooLarge
	case KindRateLimited:
		return fiber.StatusTooManyRequests
	case KindResourceNotFound:
		return fiber.StatusNotFound
	case KindResourceConflict:
		return fiber.StatusConflict
	case KindServerTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// WriteError is the single place that translates a domain error into an
// HTTP response (spec §7: "handlers translate domain errors to status codes
// in one place"). Database/internal errors are logged with the request's
// correlation id and never leak their text to the client.
func WriteError(c *fiber.Ctx, err error) error {
	appErr, ok := err.(*AppError)
	if !ok {
		log.Errorf("[%s] unhandled internal error: %v", CorrelationID(c), err)
		appErr = NewError(KindServerInternal, "internal server error")
	}

	if appErr.Kind == KindServerInternal {
		log.Errorf("[%s] %s", CorrelationID(c), appErr.Message)
		appErr = NewError(KindServerInternal, "internal server error")
	}

	body := fiber.Map{
		"error": fiber.Map{
			"type":    appErr.Kind,
			"message": appErr.Message,
		},
	}
	if appErr.Details != nil {
		body["error"].(fiber.Map)["details"] = appErr.Details
	}

	return c.Status(statusForKind(appErr.Kind)).JSON(body)
}

func ErrMalformed(message string) *AppError {
	return NewError(KindInputMalformed, message)
}

func ErrSchema(message string, details interface{}) *AppError {
	return NewErrorWithDetails(KindInputSchema, message, details)
}

func ErrNotFound(message string) *AppError {
	return NewError(KindResourceNotFound, message)
}

func ErrConflict(message string) *AppError {
	return NewError(KindResourceConflict, message)
}

func ErrInternal(message string) *AppError {
	return NewError(KindServerInternal, message)
}
