package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/unhalum90/newveritas-api/internal/dto"
	"github.com/unhalum90/newveritas-api/internal/service"
	"github.com/unhalum90/newveritas-api/internal/utils"
)

// SubmissionHandler serves the student-facing submission lifecycle.
type SubmissionHandler struct {
	lifecycle service.LifecycleService
	status    service.StatusService
	release   service.ReleaseService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(lifecycle service.LifecycleService, status service.StatusService, release service.ReleaseService, validator *validator.Validate, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		lifecycle: lifecycle,
		status:    status,
		release:   release,
		validator: validator,
		logger:    logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("", h.begin)
	router.Post("/:id/pledge", h.acceptPledge)
	router.Post("/:id/submit", h.submit)
	router.Post("/:id/restart", h.restart)
	router.Get("/:id/status", h.submissionStatus)
	router.Get("/:id/feedback", h.feedback)
	router.Post("/:id/review-request", h.fileReviewRequest)
}

func (h *SubmissionHandler) begin(c *fiber.Ctx) error {
	var payload dto.BeginSubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.lifecycle.Begin(c.UserContext(), payload.AssessmentID, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission started", dto.NewSubmissionStatusResponse(submission))
}

func (h *SubmissionHandler) acceptPledge(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.lifecycle.AcceptPledge(c.UserContext(), id, userIDFromContext(c), c.IP())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "pledge accepted", dto.NewSubmissionStatusResponse(submission))
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.lifecycle.Submit(c.UserContext(), id, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission received", dto.NewSubmissionStatusResponse(submission))
}

func (h *SubmissionHandler) restart(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.RestartRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.lifecycle.RestartGrace(c.UserContext(), id, userIDFromContext(c), payload.Reason, payload.QuestionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission restarted", dto.NewSubmissionStatusResponse(submission))
}

func (h *SubmissionHandler) submissionStatus(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.status.SubmissionStatus(c.UserContext(), id, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission status", response)
}

func (h *SubmissionHandler) feedback(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.release.Feedback(c.UserContext(), id, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "feedback retrieved", response)
}

func (h *SubmissionHandler) fileReviewRequest(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReviewRequestCreate
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	request, err := h.release.FileReviewRequest(c.UserContext(), id, userIDFromContext(c), payload.Message)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "review request filed", dto.NewReviewRequestResponse(request))
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrAssessmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assessment not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrAssessmentNotLive):
		return utils.SendError(c, fiber.StatusConflict, "assessment is not live")
	case errors.Is(err, service.ErrNotAssigned):
		return utils.SendError(c, fiber.StatusForbidden, "assessment not assigned")
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrAlreadySubmitted):
		return utils.SendError(c, fiber.StatusConflict, "submission already submitted")
	case errors.Is(err, service.ErrSubmissionNotActive):
		return utils.SendError(c, fiber.StatusConflict, "submission is no longer active")
	case errors.Is(err, service.ErrPledgeRequired):
		return utils.SendError(c, fiber.StatusConflict, "integrity pledge not accepted")
	case errors.Is(err, service.ErrPledgeNotRequired):
		return utils.SendError(c, fiber.StatusConflict, "assessment does not require a pledge")
	case errors.Is(err, service.ErrRestartNotEnabled):
		return utils.SendError(c, fiber.StatusConflict, "grace restart not enabled")
	case errors.Is(err, service.ErrRestartAlreadyUsed):
		return utils.SendError(c, fiber.StatusConflict, "grace restart already used")
	case errors.Is(err, service.ErrInvalidRestartReason):
		return utils.SendError(c, fiber.StatusBadRequest, "invalid restart reason")
	case errors.Is(err, service.ErrNotPublished):
		return utils.SendError(c, fiber.StatusConflict, "feedback not published")
	case errors.Is(err, service.ErrReviewRequestOpen):
		return utils.SendError(c, fiber.StatusConflict, "review request already open")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
