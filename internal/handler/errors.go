package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-classroom-api/internal/service"
	"github.com/noah-isme/gema-classroom-api/internal/utils"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{service.ErrAssignmentLocked, fiber.StatusLocked},
	{service.ErrDeadlinePassed, fiber.StatusConflict},
	{service.ErrAlreadyStarted, fiber.StatusConflict},
	{service.ErrNotAnExam, fiber.StatusUnprocessableEntity},
	{service.ErrExamNotStarted, fiber.StatusConflict},
	{service.ErrInvalidFileType, fiber.StatusUnsupportedMediaType},
	{service.ErrFileTooLarge, fiber.StatusRequestEntityTooLarge},
	{service.ErrFileRequired, fiber.StatusBadRequest},
	{service.ErrCannotUnsubmitGraded, fiber.StatusConflict},
	{service.ErrNotSubmitted, fiber.StatusConflict},
	{service.ErrSubmissionGraded, fiber.StatusConflict},
	{service.ErrInvalidWindow, fiber.StatusBadRequest},
	{service.ErrWindowFrozen, fiber.StatusConflict},
	{service.ErrGradeOutOfRange, fiber.StatusBadRequest},
	{service.ErrAssignmentNotFound, fiber.StatusNotFound},
	{service.ErrSubmissionNotFound, fiber.StatusNotFound},
	{service.ErrClassNotFound, fiber.StatusNotFound},
	{service.ErrForbidden, fiber.StatusForbidden},
	{service.ErrConflict, fiber.StatusConflict},
	{errInvalidIdentifier, fiber.StatusBadRequest},
}

// statusFor maps a service error onto an HTTP status code.
func statusFor(err error) int {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return fiber.StatusBadRequest
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	for _, candidate := range errorStatuses {
		if errors.Is(err, candidate.err) {
			return candidate.status
		}
	}
	return fiber.StatusInternalServerError
}

// writeError renders err as a JSON envelope. Unexpected errors are logged and masked.
func writeError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("internal server error")
		return utils.SendError(c, status, "internal server error")
	}

	if details := validationDetails(err); details != nil {
		return utils.Fail(c, status, "validation failed", details)
	}
	return utils.SendError(c, status, err.Error())
}
