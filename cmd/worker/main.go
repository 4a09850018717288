package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"gradex/internal/app/service"
	"gradex/internal/app/worker"
	"gradex/internal/domain/repository"
	"gradex/internal/platform/config"
	"gradex/internal/platform/database"
	"gradex/internal/platform/queue"
	"gradex/internal/platform/report"
)

// Standalone worker pool: consumes evaluation lanes without serving HTTP.
func main() {
	log.Println("Evaluation worker service starting...")

	config.Load()
	database.Connect()
	defer database.Close()
	queue.ConnectRedis()
	defer queue.CloseRedis()

	var reporter report.Reporter
	if config.AppConfig.RollbarToken != "" {
		reporter = report.NewRollbarReporter(log.Default())
	} else {
		reporter = report.NewConsoleReporter(log.Default())
	}

	courseRepo := repository.NewPgCourseRepository(database.DB)
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)

	storageService := service.NewStorageService(config.AppConfig.StorageRoot, submissionRepo, reporter)
	rateLimiter := service.NewRateLimitService(submissionRepo)
	dispatcher := service.NewDispatchService(submissionRepo, service.NewRedisJobQueue(queue.RDB))
	invalidator := service.NewInvalidationService(courseRepo, service.NewRedisCacheSink(queue.RDB))
	submissionService := service.NewSubmissionService(
		submissionRepo, courseRepo, storageService, rateLimiter, dispatcher, invalidator, reporter)

	evaluationWorker := worker.NewEvaluationWorker(
		queue.RDB, submissionRepo, courseRepo, storageService, submissionService, worker.NewHTTPRunner())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	wg.Add(1)
	go func() {
		defer wg.Done()
		evaluationWorker.Start(ctx)
	}()

	<-sigs
	log.Println("Shutdown signal received.")
	cancel()
	wg.Wait()
	log.Println("Worker exited cleanly.")
}
