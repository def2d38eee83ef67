package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/unhalum90/newveritas-api/internal/config"
	"github.com/unhalum90/newveritas-api/internal/database"
	"github.com/unhalum90/newveritas-api/internal/handler"
	"github.com/unhalum90/newveritas-api/internal/middleware"
	"github.com/unhalum90/newveritas-api/internal/repository"
	"github.com/unhalum90/newveritas-api/internal/router"
	"github.com/unhalum90/newveritas-api/internal/service"
	"github.com/unhalum90/newveritas-api/pkg/ai"
	"github.com/unhalum90/newveritas-api/pkg/mediastore"
	"github.com/unhalum90/newveritas-api/pkg/transcribe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, pipeline events disabled")
		natsConn = nil
	}
	defer func() {
		if natsConn != nil {
			natsConn.Close()
		}
	}()

	store, err := mediastore.New(mediastore.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create media store: %v", err)
	}

	llm, err := ai.NewOpenAIModel(ai.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.ChatModel,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to create language model client: %v", err)
	}

	transcriber, err := transcribe.NewOpenAITranscriber(transcribe.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.TranscriptionModel,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to create transcriber: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissionRepo := repository.NewSubmissionRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	restartRepo := repository.NewRestartEventRepository(db)
	auditRepo := repository.NewAuditEventRepository(db)
	reviewRepo := repository.NewReviewRequestRepository(db)
	rosterRepo := repository.NewRosterRepository(db)

	dispatcher := service.NewDispatcher(cfg.ProcessTimeout, logger)
	auditRecorder := service.NewAuditService(auditRepo, logger)
	events := service.NewNATSPublisher(natsConn, logger)

	scoringService := service.NewScoringService(submissionRepo, responseRepo, scoreRepo, assessmentRepo, llm, auditRecorder, events, logger)
	releaseService := service.NewReleaseService(submissionRepo, scoreRepo, assessmentRepo, reviewRepo, auditRecorder, events, logger)
	lifecycleService := service.NewLifecycleService(submissionRepo, assessmentRepo, rosterRepo, restartRepo, scoringService, releaseService, dispatcher, auditRecorder, logger)
	processorService := service.NewResponseProcessor(responseRepo, submissionRepo, assessmentRepo, store, transcriber, llm, dispatcher, logger)
	statusService := service.NewStatusService(submissionRepo, assessmentRepo, rosterRepo, redisClient, cfg.StatusCacheTTL, logger)
	liveService := service.NewLiveStatusService(statusService, natsConn, logger)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	liveService.Start(runCtx)

	submissionHandler := handler.NewSubmissionHandler(lifecycleService, statusService, releaseService, validate, logger)
	responseHandler := handler.NewResponseHandler(processorService, logger)
	teacherHandler := handler.NewTeacherHandler(statusService, releaseService, scoringService, validate, logger)
	liveHandler := handler.NewLiveHandler(liveService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    96 << 20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		SubmissionHandler: submissionHandler,
		ResponseHandler:   responseHandler,
		TeacherHandler:    teacherHandler,
		LiveHandler:       liveHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, dispatcher, cancelRun)
}

func waitForShutdown(app *fiber.App, dispatcher service.Dispatcher, cancelRun context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	cancelRun()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	// Let in-flight transcription/scoring tasks finish before exiting.
	dispatcher.Wait()

	log.Println("server stopped")
}
