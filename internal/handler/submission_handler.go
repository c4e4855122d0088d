package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-classroom-api/internal/middleware"
	"github.com/noah-isme/gema-classroom-api/internal/service"
	"github.com/noah-isme/gema-classroom-api/internal/utils"
)

// SubmissionHandler exposes the student side of the submission lifecycle.
type SubmissionHandler struct {
	service      service.SubmissionService
	submitLimits fiber.Handler
	logger       zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance. submitLimits may be nil.
func NewSubmissionHandler(service service.SubmissionService, submitLimits fiber.Handler, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service:      service,
		submitLimits: submitLimits,
		logger:       logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	student := middleware.RequireRole(service.RoleStudent)

	submit := []fiber.Handler{student}
	if h.submitLimits != nil {
		submit = append(submit, h.submitLimits)
	}
	submit = append(submit, h.submit)

	router.Post("/assignments/:id/start", student, h.start)
	router.Get("/assignments/:id/submission", student, h.mine)
	router.Post("/assignments/:id/submission", submit...)
	router.Delete("/assignments/:id/submission", student, h.unsubmit)
}

func (h *SubmissionHandler) start(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}

	submission, err := h.service.Start(withRequestContext(c), id, actorFromContext(c))
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exam started", submission)
}

func (h *SubmissionHandler) mine(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}

	submission, err := h.service.Mine(withRequestContext(c), id, actorFromContext(c))
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}

	submission, err := h.service.Submit(withRequestContext(c), id, optionalFile(c), actorFromContext(c))
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission uploaded", submission)
}

func (h *SubmissionHandler) unsubmit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return writeError(c, h.logger, err)
	}

	submission, err := h.service.Unsubmit(withRequestContext(c), id, actorFromContext(c))
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission withdrawn", submission)
}
