package api

import (
	"net/http"
	"time"

	"gradex/internal/api/handler"
	"gradex/internal/app/service"
	"gradex/internal/common/security"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(
	authService *service.AuthService,
	submissionService *service.SubmissionService,
	projectionService *service.ProjectionService,
	aggregateService *service.AggregateService,
	exerciseService *service.ExerciseService,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Verifies the bearer token and puts claims in context; Authenticator
	// middleware enforces them per route group.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		authHandler := handler.NewAuthHandler(authService)
		v1.Group(func(publicAuth chi.Router) {
			authHandler.RegisterRoutes(publicAuth)
		})

		submissionHandler := handler.NewSubmissionHandler(submissionService, projectionService)
		v1.Route("/submissions", submissionHandler.RegisterRoutes)

		statsHandler := handler.NewStatsHandler(aggregateService)
		v1.Route("/stats", statsHandler.RegisterRoutes)

		exerciseHandler := handler.NewExerciseHandler(exerciseService)
		v1.Route("/exercises", exerciseHandler.RegisterRoutes)

		// Runner verdict callback (public, secure in deployment)
		webhookHandler := handler.NewWebhookHandler(submissionService)
		v1.Route("/webhook", webhookHandler.RegisterRoutes)
	})

	return r
}
