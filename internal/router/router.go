package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/unhalum90/newveritas-api/internal/config"
	"github.com/unhalum90/newveritas-api/internal/handler"
	"github.com/unhalum90/newveritas-api/internal/middleware"
	"github.com/unhalum90/newveritas-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler *handler.SubmissionHandler
	ResponseHandler   *handler.ResponseHandler
	TeacherHandler    *handler.TeacherHandler
	LiveHandler       *handler.LiveHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Student surface: submission lifecycle, answer uploads, status,
	// feedback, review requests.
	if deps.SubmissionHandler != nil {
		student := app.Group("/api/v1/submissions", jwtMiddleware, middleware.RequireRole("student"))
		deps.SubmissionHandler.Register(student)

		if deps.ResponseHandler != nil {
			uploads := student.Group("", middleware.RateLimit("answer-upload", 30, time.Minute))
			deps.ResponseHandler.Register(uploads)
		}
		if deps.LiveHandler != nil {
			deps.LiveHandler.Register(student)
		}
	}

	// Teacher surface: submission lists, release, regrades, error queue.
	if deps.TeacherHandler != nil {
		teacher := app.Group("/api/v1/teacher", jwtMiddleware, middleware.RequireRole("teacher", "admin"))
		deps.TeacherHandler.Register(teacher)
	}
}
