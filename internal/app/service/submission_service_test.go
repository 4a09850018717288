package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"gradex/internal/common"
	"gradex/internal/domain/model"
	"gradex/internal/platform/queue"
)

type submissionFixture struct {
	svc      *SubmissionService
	repo     *fakeSubmissionRepo
	courses  *fakeCourseRepo
	storage  *StorageService
	jobs     *fakeJobQueue
	sink     *recordingSink
	reporter *recordingReporter
}

func newSubmissionFixture(t *testing.T) *submissionFixture {
	t.Helper()
	testConfig()

	repo := newFakeSubmissionRepo()
	courses := newFakeCourseRepo()
	courses.exercises[42] = model.NewExercise(42, "Fibonacci", "python", nil)
	reporter := &recordingReporter{}
	storage := NewStorageService(t.TempDir(), repo, reporter)
	jobs := &fakeJobQueue{}
	sink := &recordingSink{}

	svc := NewSubmissionService(
		repo,
		courses,
		storage,
		NewRateLimitService(repo),
		NewDispatchService(repo, jobs),
		NewInvalidationService(courses, sink),
		reporter,
	)
	return &submissionFixture{
		svc:      svc,
		repo:     repo,
		courses:  courses,
		storage:  storage,
		jobs:     jobs,
		sink:     sink,
		reporter: reporter,
	}
}

func TestCreateSubmissionRejectsOversizedCode(t *testing.T) {
	f := newSubmissionFixture(t)

	_, err := f.svc.CreateSubmission(context.Background(), CreateSubmissionRequest{
		UserID:     1,
		ExerciseID: 42,
		Code:       strings.Repeat("x", model.MaxCodeLength+1),
	})
	if !errors.Is(err, common.ErrCodeTooLong) {
		t.Fatalf("err = %v, want ErrCodeTooLong", err)
	}
	if len(f.repo.subs) != 0 {
		t.Error("rejected submission left a row behind")
	}
}

func TestCreateSubmissionRejectsUnknownExercise(t *testing.T) {
	f := newSubmissionFixture(t)

	_, err := f.svc.CreateSubmission(context.Background(), CreateSubmissionRequest{
		UserID:     1,
		ExerciseID: 999,
		Code:       "print(1)",
	})
	if err == nil {
		t.Fatal("expected error for unknown exercise")
	}
	if len(f.repo.subs) != 0 {
		t.Error("rejected submission left a row behind")
	}
}

func TestCreateSubmissionRateLimited(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(1)",
	}); err != nil {
		t.Fatalf("first CreateSubmission: %v", err)
	}

	_, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(2)",
	})
	if !errors.Is(err, common.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	// System paths carry the explicit bypass.
	if _, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(3)", SkipRateLimit: true,
	}); err != nil {
		t.Fatalf("bypassed CreateSubmission: %v", err)
	}
}

func TestCreateSubmissionDispatchesAndInvalidates(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	sub, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID:     1,
		ExerciseID: 42,
		Code:       "print(1)",
		Evaluate:   true,
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	if sub.Status != model.StatusQueued {
		t.Errorf("status = %s, want %s", sub.Status, model.StatusQueued)
	}
	if len(f.jobs.jobs) != 1 || f.jobs.jobs[0].lane != queue.LaneNormal {
		t.Errorf("jobs = %+v, want one normal-lane job", f.jobs.jobs)
	}

	code, err := f.storage.ReadCode(ctx, sub)
	if err != nil || string(code) != "print(1)" {
		t.Errorf("stored code = %q (%v)", code, err)
	}

	wantDropped := []string{
		"exercise/42/users_correct",
		"exercise/42/users_attempted",
		"user/1/attempted_exercises",
		"user/1/correct_exercises",
	}
	for i, key := range wantDropped {
		if i >= len(f.sink.dropped) || f.sink.dropped[i] != key {
			t.Fatalf("dropped = %v, want %v", f.sink.dropped, wantDropped)
		}
	}
}

func TestCreateSubmissionWithoutEvaluate(t *testing.T) {
	f := newSubmissionFixture(t)

	sub, err := f.svc.CreateSubmission(context.Background(), CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(1)",
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	if sub.Status != model.StatusUnknown {
		t.Errorf("status = %s, want %s", sub.Status, model.StatusUnknown)
	}
	if len(f.jobs.jobs) != 0 {
		t.Errorf("jobs = %+v, want none", f.jobs.jobs)
	}
}

func TestApplyVerdictCorrectAnswer(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	sub, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(1)", Evaluate: true,
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	f.sink.dropped = nil

	verdict := &model.Verdict{
		Status:      "correct answer",
		Accepted:    true,
		Description: "Correct",
		Messages:    []model.Message{{Format: "plain", Description: "well done"}},
	}
	if err := f.svc.ApplyVerdict(ctx, sub.ID, verdict); err != nil {
		t.Fatalf("ApplyVerdict: %v", err)
	}

	stored, err := f.repo.GetSubmissionByID(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubmissionByID: %v", err)
	}
	if stored.Status != model.StatusCorrect {
		t.Errorf("status = %s, want %s", stored.Status, model.StatusCorrect)
	}
	if stored.Accepted == nil || !*stored.Accepted {
		t.Error("accepted not set")
	}
	if stored.Summary != "Correct" {
		t.Errorf("summary = %q, want %q", stored.Summary, "Correct")
	}

	got, err := f.svc.ReadVerdict(ctx, stored)
	if err != nil {
		t.Fatalf("ReadVerdict: %v", err)
	}
	if got == nil || got.Status != "correct answer" || len(got.Messages) != 1 {
		t.Errorf("stored verdict = %+v", got)
	}

	if len(f.sink.dropped) == 0 {
		t.Error("terminal transition must invalidate caches")
	}
	if len(f.reporter.reports) != 0 {
		t.Errorf("correct verdict must not report, got %v", f.reporter.reports)
	}
}

func TestApplyVerdictUnknownStatusDegrades(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	sub, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(1)", Evaluate: true,
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	if err := f.svc.ApplyVerdict(ctx, sub.ID, &model.Verdict{Status: "exploded"}); err != nil {
		t.Fatalf("ApplyVerdict: %v", err)
	}
	stored, _ := f.repo.GetSubmissionByID(ctx, sub.ID)
	if stored.Status != model.StatusUnknown {
		t.Errorf("status = %s, want %s", stored.Status, model.StatusUnknown)
	}
}

func TestApplyVerdictRejectsSubmissionNotInFlight(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	sub, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(1)", Evaluate: true,
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	first := &model.Verdict{Status: "correct answer", Accepted: true, Description: "Correct"}
	if err := f.svc.ApplyVerdict(ctx, sub.ID, first); err != nil {
		t.Fatalf("ApplyVerdict: %v", err)
	}

	// A duplicate runner callback arrives after the submission was judged.
	stale := &model.Verdict{Status: "wrong answer", Description: "Wrong Answer"}
	err = f.svc.ApplyVerdict(ctx, sub.ID, stale)
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	stored, _ := f.repo.GetSubmissionByID(ctx, sub.ID)
	if stored.Status != model.StatusCorrect {
		t.Errorf("status = %s, judged outcome must stand", stored.Status)
	}
	if stored.Accepted == nil || !*stored.Accepted || stored.Summary != "Correct" {
		t.Errorf("judged row mutated by stale callback: %+v", stored)
	}

	// The stored verdict tree is the judged one, not the stale payload.
	got, err := f.svc.ReadVerdict(ctx, stored)
	if err != nil {
		t.Fatalf("ReadVerdict: %v", err)
	}
	if got == nil || got.Status != "correct answer" {
		t.Errorf("stored verdict = %+v, want the original", got)
	}
}

func TestApplyVerdictRejectsUndispatchedSubmission(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	sub, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(1)",
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	err = f.svc.ApplyVerdict(ctx, sub.ID, &model.Verdict{Status: "correct answer", Accepted: true})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	stored, _ := f.repo.GetSubmissionByID(ctx, sub.ID)
	if stored.Status != model.StatusUnknown {
		t.Errorf("status = %s, want untouched %s", stored.Status, model.StatusUnknown)
	}
}

func TestApplyVerdictInternalErrorReportsOnce(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	sub, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(1)", Evaluate: true,
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	verdict := &model.Verdict{Status: string(model.StatusInternalError), Description: "Internal Error"}
	if err := f.svc.ApplyVerdict(ctx, sub.ID, verdict); err != nil {
		t.Fatalf("ApplyVerdict: %v", err)
	}

	if len(f.reporter.reports) != 1 {
		t.Fatalf("reports = %d, want exactly 1", len(f.reporter.reports))
	}
	fields := f.reporter.reports[0].fields
	if fields["host"] != "test-host" {
		t.Errorf("host = %v", fields["host"])
	}
	if fields["judge"] != "python" {
		t.Errorf("judge = %v", fields["judge"])
	}
	if fields["submission_id"] != sub.ID {
		t.Errorf("submission_id = %v", fields["submission_id"])
	}
	wantURL := "http://test.local/submissions/1"
	if fields["url"] != wantURL {
		t.Errorf("url = %v, want %s", fields["url"], wantURL)
	}
}

func TestUpdateIdentityRelocatesAndInvalidatesBothScopes(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	sub, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(1)",
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	oldPath := f.storage.StoragePath(sub)
	f.sink.dropped = nil

	courseID := int64(3)
	if err := f.svc.UpdateIdentity(ctx, sub.ID, &courseID, 1, 42); err != nil {
		t.Fatalf("UpdateIdentity: %v", err)
	}

	stored, _ := f.repo.GetSubmissionByID(ctx, sub.ID)
	if stored.CourseID == nil || *stored.CourseID != courseID {
		t.Errorf("course not updated: %+v", stored)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("old storage path still exists")
	}
	code, err := f.storage.ReadCode(ctx, stored)
	if err != nil || string(code) != "print(1)" {
		t.Errorf("code after move = %q (%v)", code, err)
	}

	// Old (global) and new (course-scoped) aggregates are both stale.
	var sawGlobal, sawCourse bool
	for _, key := range f.sink.dropped {
		if key == "user/1/correct_exercises" {
			sawGlobal = true
		}
		if key == "user/1/course/3/correct_exercises" {
			sawCourse = true
		}
	}
	if !sawGlobal || !sawCourse {
		t.Errorf("dropped = %v, want both global and course-scoped keys", f.sink.dropped)
	}
}

func TestUpdateIdentityRowFailureLeavesStorageInPlace(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	sub, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(1)",
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	oldPath := f.storage.StoragePath(sub)

	f.repo.updateIdentityErr = errors.New("connection reset")
	courseID := int64(3)
	if err := f.svc.UpdateIdentity(ctx, sub.ID, &courseID, 1, 42); err == nil {
		t.Fatal("expected row update failure to surface")
	}

	// The row kept the old identity, so the files must still sit where that
	// identity computes them.
	if _, err := os.Stat(oldPath); err != nil {
		t.Errorf("storage left its old path on a failed row update: %v", err)
	}
	stored, _ := f.repo.GetSubmissionByID(ctx, sub.ID)
	if stored.CourseID != nil {
		t.Errorf("row identity changed despite error: %+v", stored)
	}
	code, err := f.storage.ReadCode(ctx, stored)
	if err != nil || string(code) != "print(1)" {
		t.Errorf("code unreadable after failed update: %q (%v)", code, err)
	}
}

func TestDestroyRemovesRowAndStorage(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	sub, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(1)",
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	path := f.storage.StoragePath(sub)

	if err := f.svc.Destroy(ctx, sub.ID); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := f.repo.GetSubmissionByID(ctx, sub.ID); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("row still readable: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("storage directory still exists")
	}
}

func TestRejudgeRequeuesJudgedSubmission(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	sub, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(1)", Evaluate: true,
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	if err := f.svc.ApplyVerdict(ctx, sub.ID, &model.Verdict{Status: "wrong answer", Description: "Wrong"}); err != nil {
		t.Fatalf("ApplyVerdict: %v", err)
	}
	f.jobs.jobs = nil

	if err := f.svc.Rejudge(ctx, sub.ID, queue.LaneHigh); err != nil {
		t.Fatalf("Rejudge: %v", err)
	}
	if len(f.jobs.jobs) != 1 || f.jobs.jobs[0].lane != queue.LaneHigh {
		t.Errorf("jobs = %+v, want one high-lane job", f.jobs.jobs)
	}
	stored, _ := f.repo.GetSubmissionByID(ctx, sub.ID)
	if stored.Status != model.StatusQueued || stored.Accepted != nil || stored.Summary != "" {
		t.Errorf("row not reset for rejudge: %+v", stored)
	}
}

func TestReadVerdictInFlightIsNil(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	sub, err := f.svc.CreateSubmission(ctx, CreateSubmissionRequest{
		UserID: 1, ExerciseID: 42, Code: "print(1)", Evaluate: true,
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	got, err := f.svc.ReadVerdict(ctx, sub)
	if err != nil || got != nil {
		t.Errorf("ReadVerdict while queued = %+v (%v), want nil", got, err)
	}
}
