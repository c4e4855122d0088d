package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/middleware"
	"github.com/noah-isme/gema-classroom-api/internal/service"
	"github.com/noah-isme/gema-classroom-api/internal/utils"
)

// GradingHandler exposes the teacher side of the submission lifecycle.
type GradingHandler struct {
	grading   service.GradingService
	autoClose service.AutoCloseService
	logger    zerolog.Logger
}

// NewGradingHandler constructs the grading handler.
func NewGradingHandler(grading service.GradingService, autoClose service.AutoCloseService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		grading:   grading,
		autoClose: autoClose,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches grading routes.
func (h *GradingHandler) Register(router fiber.Router) {
	staff := middleware.RequireRole(service.RoleTeacher, service.RoleAdmin)

	router.Get("/assignments/:id/submissions", staff, h.list)
	router.Patch("/assignments/:id/submissions/:submissionId/grade", staff, h.grade)
	router.Post("/assignments/:id/auto-close", staff, h.close)
	router.Get("/assignments/:id/activity", staff, h.activity)
}

func (h *GradingHandler) list(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}

	result, err := h.grading.ListSubmissions(withRequestContext(c), id, actorFromContext(c))
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", result)
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}
	submissionID, err := parseUintParam(c, "submissionId")
	if err != nil {
		return writeError(c, h.logger, err)
	}

	var payload dto.GradeSubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.grading.Grade(withRequestContext(c), id, submissionID, payload, actorFromContext(c))
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission graded", submission)
}

func (h *GradingHandler) close(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}

	result, err := h.autoClose.AutoClose(withRequestContext(c), id, actorFromContext(c))
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "drafts closed", result)
}

func (h *GradingHandler) activity(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}

	var query dto.ActivityTrailRequest
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	trail, err := h.grading.Activity(withRequestContext(c), id, query, actorFromContext(c))
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "activity retrieved", trail)
}
