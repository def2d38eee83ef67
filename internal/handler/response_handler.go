package handler

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/unhalum90/newveritas-api/internal/service"
	"github.com/unhalum90/newveritas-api/internal/utils"
)

const maxAudioBytes = 64 << 20

// ResponseHandler accepts recorded answers for the questions of an
// active submission.
type ResponseHandler struct {
	processor service.ResponseProcessor
	logger    zerolog.Logger
}

// NewResponseHandler constructs a response handler.
func NewResponseHandler(processor service.ResponseProcessor, logger zerolog.Logger) *ResponseHandler {
	return &ResponseHandler{
		processor: processor,
		logger:    logger.With().Str("component", "response_handler").Logger(),
	}
}

// Register wires the answer upload route.
func (h *ResponseHandler) Register(router fiber.Router) {
	router.Post("/:id/responses/:questionId", h.upload)
}

func (h *ResponseHandler) upload(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("audio")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "audio file is required")
	}
	if file.Size > maxAudioBytes {
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, "audio file too large")
	}

	var duration float64
	if raw := strings.TrimSpace(c.FormValue("duration_seconds")); raw != "" {
		duration, err = strconv.ParseFloat(raw, 64)
		if err != nil || duration < 0 {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid duration_seconds")
		}
	}

	source, err := file.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read audio file")
	}
	defer source.Close()

	audio, err := io.ReadAll(io.LimitReader(source, maxAudioBytes+1))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read audio file")
	}
	if len(audio) > maxAudioBytes {
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, "audio file too large")
	}

	response, err := h.processor.CreateFromUpload(c.UserContext(), submissionID, userIDFromContext(c), questionID, audio, duration)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "answer received", fiber.Map{
		"response_id":       response.ID,
		"question_id":       response.QuestionID,
		"processing_status": response.ProcessingStatus,
	})
}

func (h *ResponseHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "question not found")
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrAlreadySubmitted):
		return utils.SendError(c, fiber.StatusConflict, "submission already submitted")
	case errors.Is(err, service.ErrSubmissionNotActive):
		return utils.SendError(c, fiber.StatusConflict, "submission is no longer active")
	case errors.Is(err, service.ErrPledgeRequired):
		return utils.SendError(c, fiber.StatusConflict, "integrity pledge not accepted")
	case errors.Is(err, service.ErrUnsupportedAudioType):
		return utils.SendError(c, fiber.StatusBadRequest, "unsupported audio type")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("answer upload failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
