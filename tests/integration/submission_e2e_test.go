package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/unhalum90/newveritas-api/internal/config"
	"github.com/unhalum90/newveritas-api/internal/database"
	"github.com/unhalum90/newveritas-api/internal/dto"
	"github.com/unhalum90/newveritas-api/internal/handler"
	"github.com/unhalum90/newveritas-api/internal/middleware"
	"github.com/unhalum90/newveritas-api/internal/models"
	"github.com/unhalum90/newveritas-api/internal/repository"
	"github.com/unhalum90/newveritas-api/internal/router"
	"github.com/unhalum90/newveritas-api/internal/service"
	"github.com/unhalum90/newveritas-api/pkg/ai"
)

type memoryStore struct {
	blobs map[string][]byte
}

func (m *memoryStore) Upload(_ context.Context, path string, reader io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	m.blobs[path] = data
	return "https://media.test/" + path, nil
}

func (m *memoryStore) Download(_ context.Context, path string) ([]byte, error) {
	data, ok := m.blobs[path]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", path)
	}
	return data, nil
}

func (m *memoryStore) SignedURL(path string, _ time.Duration) (string, error) {
	return "https://media.test/" + path + "?signed=1", nil
}

type cannedTranscriber struct{}

func (cannedTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return "The light reaction produces ATP which powers the Calvin cycle.", nil
}

type cannedModel struct{}

func (cannedModel) GenerateFollowup(context.Context, string, string) (string, error) {
	return "How does the chlorophyll fit in?", nil
}

func (cannedModel) DetectOffTopic(context.Context, string, string) (ai.OffTopicResult, error) {
	return ai.OffTopicResult{OffTopic: false, Confidence: 0.2}, nil
}

func (cannedModel) ScoreAxis(_ context.Context, input ai.AxisScoringInput) (ai.AxisScore, error) {
	return ai.AxisScore{Score: 4, Justification: "Coherent causal chain."}, nil
}

type e2eEnv struct {
	app        *fiber.App
	db         *gorm.DB
	dispatcher service.Dispatcher
	assessment models.Assessment
	question   models.Question
}

func setupSubmissionApp(t *testing.T, name string, configure func(*models.Assessment)) *e2eEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	teacher := models.Teacher{Name: "Mrs. Given", Email: "given@example.com"}
	require.NoError(t, db.Create(&teacher).Error)
	workspace := models.Workspace{Name: "Biology", TeacherID: teacher.ID}
	require.NoError(t, db.Create(&workspace).Error)
	class := models.Class{WorkspaceID: workspace.ID, Name: "Period 3"}
	require.NoError(t, db.Create(&class).Error)
	student := models.Student{ClassID: class.ID, Name: "Ana", Email: "ana@example.com"}
	require.NoError(t, db.Create(&student).Error)

	assessment := models.Assessment{
		WorkspaceID:    workspace.ID,
		ClassID:        class.ID,
		Title:          "Unit 3 Oral Check",
		Status:         models.AssessmentStatusLive,
		Mode:           models.AssessmentModeGraded,
		RubricScaleMin: 1,
		RubricScaleMax: 5,
	}
	if configure != nil {
		configure(&assessment)
	}
	require.NoError(t, db.Create(&assessment).Error)

	question := models.Question{AssessmentID: assessment.ID, Position: 1, Prompt: "Explain photosynthesis.", FollowupEnabled: true}
	require.NoError(t, db.Create(&question).Error)

	submissionRepo := repository.NewSubmissionRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	restartRepo := repository.NewRestartEventRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	auditRepo := repository.NewAuditEventRepository(db)
	reviewRepo := repository.NewReviewRequestRepository(db)

	store := &memoryStore{blobs: map[string][]byte{}}
	dispatcher := service.NewDispatcher(0, logger)
	auditService := service.NewAuditService(auditRepo, logger)
	events := service.NewNATSPublisher(nil, logger)

	scoringService := service.NewScoringService(submissionRepo, responseRepo, scoreRepo, assessmentRepo, cannedModel{}, auditService, events, logger)
	releaseService := service.NewReleaseService(submissionRepo, scoreRepo, assessmentRepo, reviewRepo, auditService, events, logger)
	lifecycleService := service.NewLifecycleService(submissionRepo, assessmentRepo, rosterRepo, restartRepo, scoringService, releaseService, dispatcher, auditService, logger)
	processor := service.NewResponseProcessor(responseRepo, submissionRepo, assessmentRepo, store, cannedTranscriber{}, cannedModel{}, dispatcher, logger)
	statusService := service.NewStatusService(submissionRepo, assessmentRepo, rosterRepo, nil, 0, logger)

	submissionHandler := handler.NewSubmissionHandler(lifecycleService, statusService, releaseService, validate, logger)
	responseHandler := handler.NewResponseHandler(processor, logger)
	teacherHandler := handler.NewTeacherHandler(statusService, releaseService, scoringService, validate, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})

	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		SubmissionHandler: submissionHandler,
		ResponseHandler:   responseHandler,
		TeacherHandler:    teacherHandler,
		JWTMiddleware: func(c *fiber.Ctx) error {
			if strings.HasPrefix(c.Path(), "/api/v1/teacher") {
				c.Locals("user_id", teacher.ID)
				c.Locals("user_role", "teacher")
			} else {
				c.Locals("user_id", student.ID)
				c.Locals("user_role", "student")
			}
			return c.Next()
		},
	})

	return &e2eEnv{app: app, db: db, dispatcher: dispatcher, assessment: assessment, question: question}
}

func decode[T any](t *testing.T, resp *http.Response, target *T) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target))
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(http.MethodPost, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func uploadAnswer(t *testing.T, app *fiber.App, submissionID uint, questionID uint) *http.Response {
	t.Helper()

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	require.NoError(t, writer.WriteField("duration_seconds", "42.5"))
	file, err := writer.CreateFormFile("audio", "answer.wav")
	require.NoError(t, err)
	_, err = file.Write([]byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	path := "/api/v1/submissions/" + strconv.Itoa(int(submissionID)) + "/responses/" + strconv.Itoa(int(questionID))
	req := httptest.NewRequest(http.MethodPost, path, buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestSubmissionEndToEndFlow(t *testing.T) {
	env := setupSubmissionApp(t, "veritas_e2e_graded", func(a *models.Assessment) {
		a.PledgeRequired = true
		a.PledgeVersion = "v1"
	})

	// Step 1: student begins an attempt.
	resp := postJSON(t, env.app, "/api/v1/submissions", map[string]interface{}{"assessment_id": env.assessment.ID})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var begun struct {
		Success bool                         `json:"success"`
		Data    dto.SubmissionStatusResponse `json:"data"`
	}
	decode(t, resp, &begun)
	require.True(t, begun.Success)
	require.Equal(t, models.SubmissionStatusStarted, begun.Data.Status)
	submissionID := begun.Data.ID

	// Step 2: the pledge gate blocks submit until accepted.
	resp = postJSON(t, env.app, fmt.Sprintf("/api/v1/submissions/%d/submit", submissionID), nil)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, env.app, fmt.Sprintf("/api/v1/submissions/%d/pledge", submissionID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var pledged struct {
		Data dto.SubmissionStatusResponse `json:"data"`
	}
	decode(t, resp, &pledged)
	require.True(t, pledged.Data.PledgeAccepted)

	// Step 3: student records an answer; processing runs in the background.
	resp = uploadAnswer(t, env.app, submissionID, env.question.ID)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
	env.dispatcher.Wait()

	resp = getPath(t, env.app, fmt.Sprintf("/api/v1/submissions/%d/status", submissionID))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var status struct {
		Data dto.SubmissionStatusResponse `json:"data"`
	}
	decode(t, resp, &status)
	require.Len(t, status.Data.Responses, 1)
	require.Equal(t, models.ProcessingStatusComplete, status.Data.Responses[0].ProcessingStatus)
	require.True(t, status.Data.Responses[0].HasTranscript)
	require.NotNil(t, status.Data.Responses[0].FollowupQuestion)

	// Step 4: submit; scoring runs in the background.
	resp = postJSON(t, env.app, fmt.Sprintf("/api/v1/submissions/%d/submit", submissionID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
	env.dispatcher.Wait()

	// Feedback stays hidden until the teacher releases it.
	resp = getPath(t, env.app, fmt.Sprintf("/api/v1/submissions/%d/feedback", submissionID))
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Step 5: teacher sees the submission and releases feedback.
	resp = getPath(t, env.app, fmt.Sprintf("/api/v1/teacher/assessments/%d/submissions", env.assessment.ID))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var listing struct {
		Data []dto.SubmissionSummary `json:"data"`
	}
	decode(t, resp, &listing)
	require.Len(t, listing.Data, 1)
	require.Equal(t, models.ScoringStatusComplete, listing.Data[0].ScoringStatus)

	resp = postJSON(t, env.app, fmt.Sprintf("/api/v1/teacher/submissions/%d/release", submissionID), map[string]interface{}{
		"comment": "Nice work overall.",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var released struct {
		Data dto.SubmissionSummary `json:"data"`
	}
	decode(t, resp, &released)
	require.Equal(t, models.ReviewStatusPublished, released.Data.ReviewStatus)
	require.NotNil(t, released.Data.FinalScore)
	require.InDelta(t, 4, *released.Data.FinalScore, 0.001)

	// Step 6: student reads the released feedback.
	resp = getPath(t, env.app, fmt.Sprintf("/api/v1/submissions/%d/feedback", submissionID))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var feedback struct {
		Data dto.FeedbackResponse `json:"data"`
	}
	decode(t, resp, &feedback)
	require.Equal(t, "Nice work overall.", feedback.Data.TeacherComment)
	require.Len(t, feedback.Data.Questions, 1)
	require.Len(t, feedback.Data.Questions[0].Scores, 2)

	// Step 7: student files a review request, teacher resolves it.
	resp = postJSON(t, env.app, fmt.Sprintf("/api/v1/submissions/%d/review-request", submissionID), map[string]interface{}{
		"message": "Please take another look at my evidence score.",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var filed struct {
		Data dto.ReviewRequestResponse `json:"data"`
	}
	decode(t, resp, &filed)
	require.Equal(t, models.ReviewRequestStatusOpen, filed.Data.Status)

	resp = postJSON(t, env.app, fmt.Sprintf("/api/v1/teacher/review-requests/%d/resolve", filed.Data.ID), map[string]interface{}{
		"resolution": "reviewed",
		"note":       "Score stands.",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var resolved struct {
		Data dto.ReviewRequestResponse `json:"data"`
	}
	decode(t, resp, &resolved)
	require.Equal(t, models.ReviewRequestStatusReviewed, resolved.Data.Status)

	// The integrity log captured the whole journey.
	var auditCount int64
	require.NoError(t, env.db.Model(&models.AuditEvent{}).Count(&auditCount).Error)
	require.GreaterOrEqual(t, auditCount, int64(4))
}

func TestGraceRestartFlow(t *testing.T) {
	env := setupSubmissionApp(t, "veritas_e2e_restart", func(a *models.Assessment) {
		a.GraceRestartEnabled = true
	})

	resp := postJSON(t, env.app, "/api/v1/submissions", map[string]interface{}{"assessment_id": env.assessment.ID})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var begun struct {
		Data dto.SubmissionStatusResponse `json:"data"`
	}
	decode(t, resp, &begun)

	resp = postJSON(t, env.app, fmt.Sprintf("/api/v1/submissions/%d/restart", begun.Data.ID), map[string]interface{}{
		"reason": "slow_start",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var restarted struct {
		Data dto.SubmissionStatusResponse `json:"data"`
	}
	decode(t, resp, &restarted)
	require.NotEqual(t, begun.Data.ID, restarted.Data.ID)
	require.Equal(t, models.SubmissionStatusStarted, restarted.Data.Status)

	// The single grace restart is consumed.
	resp = postJSON(t, env.app, fmt.Sprintf("/api/v1/submissions/%d/restart", restarted.Data.ID), map[string]interface{}{
		"reason": "off_topic",
	})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	var old models.Submission
	require.NoError(t, env.db.First(&old, begun.Data.ID).Error)
	require.Equal(t, models.SubmissionStatusRestarted, old.Status)
	require.Equal(t, models.ScoringErrorRestarted, old.ScoringError)
}

func TestPracticeModeAutoPublishes(t *testing.T) {
	env := setupSubmissionApp(t, "veritas_e2e_practice", func(a *models.Assessment) {
		a.Mode = models.AssessmentModePractice
	})

	resp := postJSON(t, env.app, "/api/v1/submissions", map[string]interface{}{"assessment_id": env.assessment.ID})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var begun struct {
		Data dto.SubmissionStatusResponse `json:"data"`
	}
	decode(t, resp, &begun)

	resp = uploadAnswer(t, env.app, begun.Data.ID, env.question.ID)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
	env.dispatcher.Wait()

	resp = postJSON(t, env.app, fmt.Sprintf("/api/v1/submissions/%d/submit", begun.Data.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
	env.dispatcher.Wait()

	// Feedback is visible without any teacher action.
	resp = getPath(t, env.app, fmt.Sprintf("/api/v1/submissions/%d/feedback", begun.Data.ID))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var feedback struct {
		Data dto.FeedbackResponse `json:"data"`
	}
	decode(t, resp, &feedback)
	require.NotNil(t, feedback.Data.FinalScore)
}

func TestUploadAfterSubmitConflicts(t *testing.T) {
	env := setupSubmissionApp(t, "veritas_e2e_upload_conflict", nil)

	resp := postJSON(t, env.app, "/api/v1/submissions", map[string]interface{}{"assessment_id": env.assessment.ID})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var begun struct {
		Data dto.SubmissionStatusResponse `json:"data"`
	}
	decode(t, resp, &begun)

	resp = postJSON(t, env.app, fmt.Sprintf("/api/v1/submissions/%d/submit", begun.Data.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
	env.dispatcher.Wait()

	resp = uploadAnswer(t, env.app, begun.Data.ID, env.question.ID)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestScoringErrorsForeignWorkspaceForbidden(t *testing.T) {
	env := setupSubmissionApp(t, "veritas_e2e_foreign_workspace", nil)

	other := models.Teacher{Name: "Mr. Other", Email: "other@example.com"}
	require.NoError(t, env.db.Create(&other).Error)
	foreign := models.Workspace{Name: "History", TeacherID: other.ID}
	require.NoError(t, env.db.Create(&foreign).Error)
	foreignClass := models.Class{WorkspaceID: foreign.ID, Name: "Period 5"}
	require.NoError(t, env.db.Create(&foreignClass).Error)
	foreignAssessment := models.Assessment{
		WorkspaceID:    foreign.ID,
		ClassID:        foreignClass.ID,
		Title:          "Causes of WWI",
		Status:         models.AssessmentStatusLive,
		Mode:           models.AssessmentModeGraded,
		RubricScaleMin: 1,
		RubricScaleMax: 5,
	}
	require.NoError(t, env.db.Create(&foreignAssessment).Error)
	failed := models.Submission{
		AssessmentID:  foreignAssessment.ID,
		StudentID:     999,
		Status:        models.SubmissionStatusSubmitted,
		ScoringStatus: models.ScoringStatusError,
		ScoringError:  "model unavailable",
	}
	require.NoError(t, env.db.Create(&failed).Error)

	// The authenticated teacher owns env's workspace, not the foreign one.
	resp := getPath(t, env.app, fmt.Sprintf("/api/v1/teacher/workspaces/%d/scoring-errors", foreign.ID))
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = getPath(t, env.app, fmt.Sprintf("/api/v1/teacher/workspaces/%d/scoring-errors", env.assessment.WorkspaceID))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func getPath(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}
