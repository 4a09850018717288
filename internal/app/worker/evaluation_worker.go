package worker

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"gradex/internal/app/service"
	"gradex/internal/domain/model"
	"gradex/internal/domain/repository"
	"gradex/internal/platform/queue"

	"github.com/redis/go-redis/v9"
)

// RunnerJob is the input handed to the external judge: the submission, its
// stored code and the exercise's opaque judge configuration.
type RunnerJob struct {
	Submission *model.Submission
	Code       []byte
	Exercise   *model.Exercise
}

// Runner invokes the external sandboxed judge. Implementations own their own
// timeouts and process control; the worker only guarantees that whatever
// comes back, including a panic, ends the submission in a terminal state.
type Runner interface {
	Run(ctx context.Context, job RunnerJob) (*model.Verdict, error)
}

// EvaluationWorker consumes dispatched submission ids from the priority
// lanes and drives each one through running to a terminal status.
type EvaluationWorker struct {
	rdb           *redis.Client
	subRepo       repository.SubmissionRepository
	courseRepo    repository.CourseRepository
	storage       *service.StorageService
	submissionSvc *service.SubmissionService
	runner        Runner
}

func NewEvaluationWorker(
	rdb *redis.Client,
	subRepo repository.SubmissionRepository,
	courseRepo repository.CourseRepository,
	storage *service.StorageService,
	submissionSvc *service.SubmissionService,
	runner Runner,
) *EvaluationWorker {
	return &EvaluationWorker{
		rdb:           rdb,
		subRepo:       subRepo,
		courseRepo:    courseRepo,
		storage:       storage,
		submissionSvc: submissionSvc,
		runner:        runner,
	}
}

func (w *EvaluationWorker) Start(ctx context.Context) {
	log.Println("Evaluation worker started, listening on lanes:", queue.LaneKeys())
	for {
		select {
		case <-ctx.Done():
			log.Println("Evaluation worker stopping...")
			return
		default:
			// BLPop checks the lane keys in order, so high-priority work is
			// always served before normal and low.
			res, err := w.rdb.BLPop(ctx, 5*time.Second, queue.LaneKeys()...).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				log.Printf("ERROR: BLPop on evaluation lanes failed: %v", err)
				time.Sleep(5 * time.Second)
				continue
			}
			if len(res) < 2 || res[1] == "" {
				continue
			}
			id, err := strconv.ParseInt(res[1], 10, 64)
			if err != nil {
				log.Printf("WARN: discarding malformed job payload %q", res[1])
				continue
			}
			w.process(ctx, id)
		}
	}
}

func (w *EvaluationWorker) process(ctx context.Context, submissionID int64) {
	sub, err := w.subRepo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		log.Printf("ERROR: failed to fetch submission %d for evaluation: %v", submissionID, err)
		return
	}

	ok, err := w.subRepo.MarkRunning(ctx, submissionID)
	if err != nil {
		log.Printf("ERROR: failed to mark submission %d running: %v", submissionID, err)
		return
	}
	if !ok {
		// Rejudged or already handled elsewhere; the queue entry is stale.
		log.Printf("Submission %d no longer queued, skipping.", submissionID)
		return
	}
	sub.Status = model.StatusRunning

	verdict := w.evaluate(ctx, sub)
	if err := w.submissionSvc.ApplyVerdict(ctx, submissionID, verdict); err != nil {
		log.Printf("ERROR: failed to apply verdict to submission %d: %v", submissionID, err)
	}
}

// evaluate runs the judge and converts every failure mode, including a
// panicking runner, into an internal-error verdict so no submission is left
// running forever.
func (w *EvaluationWorker) evaluate(ctx context.Context, sub *model.Submission) (verdict *model.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: runner panicked on submission %d: %v", sub.ID, r)
			verdict = internalErrorVerdict()
		}
	}()

	code, err := w.storage.ReadCode(ctx, sub)
	if err != nil {
		return internalErrorVerdict()
	}
	exercise, err := w.courseRepo.GetExerciseByID(ctx, sub.ExerciseID)
	if err != nil {
		log.Printf("ERROR: failed to fetch exercise %d for submission %d: %v", sub.ExerciseID, sub.ID, err)
		return internalErrorVerdict()
	}

	verdict, err = w.runner.Run(ctx, RunnerJob{Submission: sub, Code: code, Exercise: exercise})
	if err != nil || verdict == nil {
		log.Printf("ERROR: runner failed on submission %d: %v", sub.ID, err)
		return internalErrorVerdict()
	}
	return verdict
}

func internalErrorVerdict() *model.Verdict {
	return &model.Verdict{
		Status:      string(model.StatusInternalError),
		Accepted:    false,
		Description: "Internal error while evaluating this submission",
	}
}
