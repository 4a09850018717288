package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gradex/internal/common"
	"gradex/internal/domain/model"
	"gradex/internal/domain/repository"
	"gradex/internal/platform/config"
	"gradex/internal/platform/queue"
	"gradex/internal/platform/report"
)

// SubmissionService owns the submission lifecycle: creation gates, the
// status state machine, verdict application and the downstream invalidation
// each persisted change triggers.
type SubmissionService struct {
	subRepo     repository.SubmissionRepository
	courseRepo  repository.CourseRepository
	storage     *StorageService
	rateLimiter *RateLimitService
	dispatcher  *DispatchService
	invalidator *InvalidationService
	reporter    report.Reporter
}

func NewSubmissionService(
	subRepo repository.SubmissionRepository,
	courseRepo repository.CourseRepository,
	storage *StorageService,
	rateLimiter *RateLimitService,
	dispatcher *DispatchService,
	invalidator *InvalidationService,
	reporter report.Reporter,
) *SubmissionService {
	return &SubmissionService{
		subRepo:     subRepo,
		courseRepo:  courseRepo,
		storage:     storage,
		rateLimiter: rateLimiter,
		dispatcher:  dispatcher,
		invalidator: invalidator,
		reporter:    reporter,
	}
}

type CreateSubmissionRequest struct {
	UserID     int64
	ExerciseID int64
	CourseID   *int64
	Code       string
	// Evaluate requests immediate dispatch after creation.
	Evaluate bool
	// SkipRateLimit bypasses the rate gate. Only system-initiated creation
	// (bulk import, rejudge tooling) may set this; it is never a default.
	SkipRateLimit bool
}

// CreateSubmission validates the request, persists the row, writes the code
// to storage and optionally dispatches evaluation. Validation failures leave
// nothing behind; a storage failure after the row exists rolls the row back
// and removes the directory.
func (s *SubmissionService) CreateSubmission(ctx context.Context, req CreateSubmissionRequest) (*model.Submission, error) {
	if len(req.Code) > model.MaxCodeLength {
		return nil, common.ErrCodeTooLong
	}
	if !req.SkipRateLimit {
		ok, err := s.rateLimiter.Permits(ctx, req.UserID, time.Now())
		if err != nil {
			return nil, common.Errorf("failed to check rate limit: %w", err)
		}
		if !ok {
			return nil, common.ErrRateLimited
		}
	}
	if _, err := s.courseRepo.GetExerciseByID(ctx, req.ExerciseID); err != nil {
		return nil, common.Errorf("exercise not found: %w", err)
	}

	sub := &model.Submission{
		UserID:     req.UserID,
		ExerciseID: req.ExerciseID,
		CourseID:   req.CourseID,
		Status:     model.StatusUnknown,
	}

	if err := s.subRepo.CreateSubmission(ctx, nil, sub); err != nil {
		return nil, common.Errorf("failed to create submission: %w", err)
	}

	if err := s.storage.WriteCode(ctx, sub, []byte(req.Code)); err != nil {
		// Creation rolls back as a unit: drop the row and whatever reached
		// the disk.
		if delErr := s.subRepo.DeleteSubmission(ctx, nil, sub.ID); delErr != nil {
			log.Printf("ERROR: failed to roll back submission %d after storage failure: %v", sub.ID, delErr)
		}
		if rmErr := s.storage.Remove(sub); rmErr != nil {
			log.Printf("ERROR: failed to remove storage of submission %d: %v", sub.ID, rmErr)
		}
		return nil, err
	}

	if req.Evaluate {
		if err := s.dispatcher.Dispatch(ctx, sub, queue.LaneNormal); err != nil {
			return nil, common.Errorf("failed to dispatch submission %d: %w", sub.ID, err)
		}
	}

	s.invalidator.Invalidate(ctx, sub)
	log.Printf("Submission %d created (evaluate=%t).", sub.ID, req.Evaluate)
	return sub, nil
}

// ApplyVerdict brings a queued or running submission into a terminal state.
// Status, accepted and summary change together in one statement; the
// compressed message tree lands in storage before the row flips, so a
// terminal status never points at a missing result.
func (s *SubmissionService) ApplyVerdict(ctx context.Context, submissionID int64, verdict *model.Verdict) error {
	sub, err := s.subRepo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return err
	}
	// Reject stale or duplicate callbacks before anything touches storage: a
	// verdict only lands on a submission the dispatcher put in flight.
	if !sub.Status.InFlight() {
		return common.Errorf("submission %d is not awaiting a verdict: %w", submissionID, common.ErrConflict)
	}

	status := model.NormalizeStatus(verdict.Status)

	payload, err := json.Marshal(verdict)
	if err != nil {
		return common.Errorf("failed to marshal verdict for submission %d: %w", submissionID, err)
	}
	if err := s.storage.WriteResult(ctx, sub, payload); err != nil {
		return err
	}

	ok, err := s.subRepo.ApplyVerdict(ctx, nil, submissionID, status, verdict.Accepted, verdict.Description)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race against another applier; its outcome stands.
		return common.Errorf("submission %d was judged concurrently: %w", submissionID, common.ErrConflict)
	}
	sub.Status = status
	sub.Accepted = &verdict.Accepted
	sub.Summary = verdict.Description

	if status == model.StatusInternalError {
		s.reportInternalError(ctx, sub)
	}

	s.invalidator.Invalidate(ctx, sub)
	log.Printf("Submission %d judged: %s.", submissionID, status)
	return nil
}

// reportInternalError emits the diagnostic report that accompanies the
// internal-error transition: host, judge, submission identity and canonical
// URL.
func (s *SubmissionService) reportInternalError(ctx context.Context, sub *model.Submission) {
	judgeName := ""
	if ex, err := s.courseRepo.GetExerciseByID(ctx, sub.ExerciseID); err == nil {
		judgeName = ex.JudgeName
	}
	s.reporter.Report(common.ErrInternalServer, map[string]interface{}{
		"host":          config.AppConfig.JudgeHost,
		"judge":         judgeName,
		"submission_id": sub.ID,
		"url":           fmt.Sprintf("%s/submissions/%d", config.AppConfig.BaseURL, sub.ID),
	})
}

// Rejudge forces a judged submission back through the queue. Administrative
// paths only.
func (s *SubmissionService) Rejudge(ctx context.Context, submissionID int64, lane queue.Lane) error {
	sub, err := s.subRepo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if err := s.dispatcher.Dispatch(ctx, sub, lane); err != nil {
		return err
	}
	s.invalidator.Invalidate(ctx, sub)
	return nil
}

// BulkRejudge schedules a rejudge for a whole batch on the low lane.
func (s *SubmissionService) BulkRejudge(ctx context.Context, ids []int64) error {
	return s.dispatcher.BulkRejudge(ctx, ids, queue.LaneLow)
}

// UpdateIdentity rewrites the (course, user, exercise) tuple and relocates
// the storage directory so it keeps matching the computed path. The row
// changes first: a failed row update leaves the files where the old identity
// still finds them, and a failed move afterwards rolls the row back.
func (s *SubmissionService) UpdateIdentity(ctx context.Context, submissionID int64, courseID *int64, userID, exerciseID int64) error {
	sub, err := s.subRepo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if err := s.subRepo.UpdateIdentity(ctx, nil, submissionID, courseID, userID, exerciseID); err != nil {
		return err
	}
	if err := s.storage.Relocate(ctx, sub, courseID, userID, exerciseID); err != nil {
		if rbErr := s.subRepo.UpdateIdentity(ctx, nil, submissionID, sub.CourseID, sub.UserID, sub.ExerciseID); rbErr != nil {
			log.Printf("ERROR: failed to restore identity of submission %d after move failure: %v", submissionID, rbErr)
		}
		return err
	}

	// Aggregates on both the old and the new scope are stale now.
	s.invalidator.Invalidate(ctx, sub)
	sub.CourseID = courseID
	sub.UserID = userID
	sub.ExerciseID = exerciseID
	s.invalidator.Invalidate(ctx, sub)
	return nil
}

// Destroy removes the row and its storage directory.
func (s *SubmissionService) Destroy(ctx context.Context, submissionID int64) error {
	sub, err := s.subRepo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if err := s.subRepo.DeleteSubmission(ctx, nil, submissionID); err != nil {
		return err
	}
	if err := s.storage.Remove(sub); err != nil {
		log.Printf("ERROR: failed to remove storage of submission %d: %v", submissionID, err)
	}
	s.invalidator.Invalidate(ctx, sub)
	return nil
}

// GetSubmission fetches a submission row.
func (s *SubmissionService) GetSubmission(ctx context.Context, id int64) (*model.Submission, error) {
	return s.subRepo.GetSubmissionByID(ctx, id)
}

// ReadVerdict loads and decodes the stored verdict tree. Submissions without
// a result yet (still in flight, or storage inconsistency) yield nil.
func (s *SubmissionService) ReadVerdict(ctx context.Context, sub *model.Submission) (*model.Verdict, error) {
	payload, err := s.storage.ReadResult(ctx, sub)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	var verdict model.Verdict
	if err := json.Unmarshal(payload, &verdict); err != nil {
		s.reporter.Report(common.Errorf("corrupt verdict payload: %w", err), map[string]interface{}{
			"submission_id": sub.ID,
		})
		return nil, nil
	}
	return &verdict, nil
}
