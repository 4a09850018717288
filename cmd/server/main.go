package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gradex/internal/api"
	"gradex/internal/app/service"
	"gradex/internal/app/worker"
	"gradex/internal/common/security"
	"gradex/internal/domain/repository"
	"gradex/internal/platform/config"
	"gradex/internal/platform/database"
	"gradex/internal/platform/queue"
	"gradex/internal/platform/report"
)

func main() {
	// 1. Load Configuration
	config.Load()
	fmt.Println("Configuration loaded.")

	// 2. Initialize JWT
	security.InitJWT()
	fmt.Println("JWT initialized.")

	// 3. Initialize Database
	database.Connect()
	defer database.Close()

	// 4. Initialize Redis
	queue.ConnectRedis()
	defer queue.CloseRedis()

	// 5. Error-tracking channel
	var reporter report.Reporter
	if config.AppConfig.RollbarToken != "" {
		reporter = report.NewRollbarReporter(log.Default())
	} else {
		reporter = report.NewConsoleReporter(log.Default())
	}

	// 6. Initialize Repositories
	userRepo := repository.NewPgUserRepository(database.DB)
	courseRepo := repository.NewPgCourseRepository(database.DB)
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)

	// 7. Initialize Services
	authService := service.NewAuthService(userRepo)
	storageService := service.NewStorageService(config.AppConfig.StorageRoot, submissionRepo, reporter)
	rateLimiter := service.NewRateLimitService(submissionRepo)
	dispatcher := service.NewDispatchService(submissionRepo, service.NewRedisJobQueue(queue.RDB))
	invalidator := service.NewInvalidationService(courseRepo, service.NewRedisCacheSink(queue.RDB))
	submissionService := service.NewSubmissionService(
		submissionRepo, courseRepo, storageService, rateLimiter, dispatcher, invalidator, reporter)
	projectionService := service.NewProjectionService()
	aggregateService := service.NewAggregateService(
		submissionRepo, service.NewRedisMatrixCache(queue.RDB), config.AppConfig.AggregateBatchSize)
	exerciseService := service.NewExerciseService(courseRepo)

	// 8. Embedded evaluation worker (as a goroutine)
	evaluationWorker := worker.NewEvaluationWorker(
		queue.RDB, submissionRepo, courseRepo, storageService, submissionService, worker.NewHTTPRunner())
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go evaluationWorker.Start(workerCtx)
	fmt.Println("Evaluation worker started.")

	// 9. Initialize Router & HTTP Server
	router := api.NewRouter(authService, submissionService, projectionService, aggregateService, exerciseService)

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", config.AppConfig.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", config.AppConfig.APIPort, err)
		}
	}()
	log.Println("Server started successfully.")

	<-stop

	log.Println("Shutting down server...")
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server and worker stopped gracefully.")
}
