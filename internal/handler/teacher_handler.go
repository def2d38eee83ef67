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

// TeacherHandler serves the teacher review surface: roster-wide
// submission lists, feedback release, regrades, and the scoring error
// queue.
type TeacherHandler struct {
	status    service.StatusService
	release   service.ReleaseService
	scoring   service.ScoringService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewTeacherHandler builds a teacher handler instance.
func NewTeacherHandler(status service.StatusService, release service.ReleaseService, scoring service.ScoringService, validator *validator.Validate, logger zerolog.Logger) *TeacherHandler {
	return &TeacherHandler{
		status:    status,
		release:   release,
		scoring:   scoring,
		validator: validator,
		logger:    logger.With().Str("component", "teacher_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *TeacherHandler) Register(router fiber.Router) {
	router.Get("/assessments/:id/submissions", h.listSubmissions)
	router.Post("/submissions/:id/release", h.publish)
	router.Post("/submissions/:id/regrade", h.regrade)
	router.Get("/workspaces/:id/scoring-errors", h.scoringErrors)
	router.Post("/review-requests/:id/resolve", h.resolveReviewRequest)
}

func (h *TeacherHandler) listSubmissions(c *fiber.Ctx) error {
	assessmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	summaries, err := h.status.ListByAssessment(c.UserContext(), assessmentID, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, summaries, "submissions retrieved", fiber.Map{"count": len(summaries)})
}

func (h *TeacherHandler) publish(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReleaseRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.release.ReleaseFeedback(c.UserContext(), id, userIDFromContext(c), payload.Comment, payload.ScoreOverride)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "feedback published", dto.NewSubmissionSummary(submission))
}

func (h *TeacherHandler) regrade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.scoring.Rescore(c.UserContext(), id, userIDFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "regrade complete", nil)
}

func (h *TeacherHandler) scoringErrors(c *fiber.Ctx) error {
	workspaceID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	summaries, err := h.status.ScoringErrors(c.UserContext(), workspaceID, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, summaries, "scoring errors retrieved", fiber.Map{"count": len(summaries)})
}

func (h *TeacherHandler) resolveReviewRequest(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReviewRequestResolve
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	request, err := h.release.ResolveReviewRequest(c.UserContext(), id, userIDFromContext(c), payload.Resolution, payload.Note)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "review request resolved", dto.NewReviewRequestResponse(request))
}

func (h *TeacherHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrAssessmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assessment not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrReviewRequestNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "review request not found")
	case errors.Is(err, service.ErrWorkspaceNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "workspace not found")
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrSubmissionNotSubmitted):
		return utils.SendError(c, fiber.StatusConflict, "submission not submitted")
	case errors.Is(err, service.ErrScoringIncomplete):
		return utils.SendError(c, fiber.StatusConflict, "scoring not complete")
	case errors.Is(err, service.ErrScoreOutOfBounds):
		return utils.SendError(c, fiber.StatusBadRequest, "score override outside rubric bounds")
	case errors.Is(err, service.ErrReviewRequestClosed):
		return utils.SendError(c, fiber.StatusConflict, "review request already resolved")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
