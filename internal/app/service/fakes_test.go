package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"gradex/internal/common"
	"gradex/internal/domain/model"
	"gradex/internal/domain/repository"
	"gradex/internal/platform/config"
	"gradex/internal/platform/queue"

	"github.com/jackc/pgx/v5/pgconn"
)

func testConfig() {
	config.AppConfig = &config.Config{
		BaseURL:   "http://test.local",
		JudgeHost: "test-host",
	}
}

// fakeSubmissionRepo is an in-memory SubmissionRepository with the same
// guard semantics as the Postgres implementation.
type fakeSubmissionRepo struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]*model.Submission
	keys   map[string]bool
	users  map[int64]string // user id -> role, for StudentsOnly filtering

	// updateIdentityErr, when set, fails the next UpdateIdentity call.
	updateIdentityErr error
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		subs:  map[int64]*model.Submission{},
		keys:  map[string]bool{},
		users: map[int64]string{},
	}
}

var _ repository.SubmissionRepository = (*fakeSubmissionRepo)(nil)

func (r *fakeSubmissionRepo) CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub.ID = r.nextID
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	sub.UpdatedAt = sub.CreatedAt
	clone := *sub
	r.subs[sub.ID] = &clone
	return nil
}

func (r *fakeSubmissionRepo) GetSubmissionByID(ctx context.Context, id int64) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	clone := *sub
	return &clone, nil
}

func (r *fakeSubmissionRepo) DeleteSubmission(ctx context.Context, tx *sql.Tx, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
	return nil
}

func (r *fakeSubmissionRepo) LatestSubmissionTime(ctx context.Context, userID int64) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *time.Time
	var latestID int64
	for _, sub := range r.subs {
		if sub.UserID == userID && sub.ID > latestID {
			latestID = sub.ID
			t := sub.CreatedAt
			latest = &t
		}
	}
	return latest, nil
}

func (r *fakeSubmissionRepo) AssignFsKey(ctx context.Context, id int64, fsKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keys[fsKey] {
		return &pgconn.PgError{Code: "23505"}
	}
	sub, ok := r.subs[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.keys[fsKey] = true
	sub.FsKey = fsKey
	return nil
}

func (r *fakeSubmissionRepo) MarkQueued(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.Status.InFlight() {
		return false, nil
	}
	sub.Status = model.StatusQueued
	sub.Accepted = nil
	sub.Summary = ""
	return true, nil
}

func (r *fakeSubmissionRepo) MarkRunning(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.Status != model.StatusQueued {
		return false, nil
	}
	sub.Status = model.StatusRunning
	return true, nil
}

func (r *fakeSubmissionRepo) ApplyVerdict(ctx context.Context, tx *sql.Tx, id int64, status model.SubmissionStatus, accepted bool, summary string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || !sub.Status.InFlight() {
		return false, nil
	}
	sub.Status = status
	sub.Accepted = &accepted
	sub.Summary = summary
	return true, nil
}

func (r *fakeSubmissionRepo) UpdateIdentity(ctx context.Context, tx *sql.Tx, id int64, courseID *int64, userID, exerciseID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateIdentityErr != nil {
		err := r.updateIdentityErr
		r.updateIdentityErr = nil
		return err
	}
	sub, ok := r.subs[id]
	if !ok {
		return sql.ErrNoRows
	}
	sub.CourseID = courseID
	sub.UserID = userID
	sub.ExerciseID = exerciseID
	return nil
}

func (r *fakeSubmissionRepo) ListAfter(ctx context.Context, cursor int64, f repository.SubmissionFilter, limit int) ([]model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*model.Submission
	for _, sub := range r.subs {
		all = append(all, sub)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	firstCorrect := map[[2]int64]int64{}
	if f.FirstCorrectOnly {
		for _, sub := range all {
			if sub.Status != model.StatusCorrect {
				continue
			}
			key := [2]int64{sub.UserID, sub.ExerciseID}
			if _, ok := firstCorrect[key]; !ok {
				firstCorrect[key] = sub.ID
			}
		}
	}

	var out []model.Submission
	for _, sub := range all {
		if sub.ID <= cursor {
			continue
		}
		if f.UserID != nil && sub.UserID != *f.UserID {
			continue
		}
		if f.CourseID != nil && (sub.CourseID == nil || *sub.CourseID != *f.CourseID) {
			continue
		}
		if f.ExerciseID != nil && sub.ExerciseID != *f.ExerciseID {
			continue
		}
		if f.JudgedOnly && !sub.Judged() {
			continue
		}
		if f.StudentsOnly {
			if role, ok := r.users[sub.UserID]; ok && role != model.RoleStudent {
				continue
			}
		}
		if f.FirstCorrectOnly && firstCorrect[[2]int64{sub.UserID, sub.ExerciseID}] != sub.ID {
			continue
		}
		if f.CreatedAfter != nil && sub.CreatedAt.Before(*f.CreatedAfter) {
			continue
		}
		if f.CreatedBefore != nil && !sub.CreatedAt.Before(*f.CreatedBefore) {
			continue
		}
		out = append(out, *sub)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeCourseRepo struct {
	exercises map[int64]*model.Exercise
	series    []model.Series
}

func newFakeCourseRepo() *fakeCourseRepo {
	return &fakeCourseRepo{exercises: map[int64]*model.Exercise{}}
}

var _ repository.CourseRepository = (*fakeCourseRepo)(nil)

func (r *fakeCourseRepo) GetExerciseByID(ctx context.Context, id int64) (*model.Exercise, error) {
	ex, ok := r.exercises[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return ex, nil
}

func (r *fakeCourseRepo) UpsertExercise(ctx context.Context, ex *model.Exercise) error {
	clone := *ex
	r.exercises[ex.ID] = &clone
	return nil
}

func (r *fakeCourseRepo) GetCourseByID(ctx context.Context, id int64) (*model.Course, error) {
	return &model.Course{ID: id}, nil
}

func (r *fakeCourseRepo) SeriesContaining(ctx context.Context, courseID, exerciseID int64) ([]model.Series, error) {
	var out []model.Series
	for _, s := range r.series {
		if s.CourseID == courseID && s.Contains(exerciseID) {
			out = append(out, s)
		}
	}
	return out, nil
}

type queuedJob struct {
	submissionID int64
	lane         queue.Lane
}

type fakeJobQueue struct {
	mu   sync.Mutex
	jobs []queuedJob
}

var _ JobQueue = (*fakeJobQueue)(nil)

func (q *fakeJobQueue) Enqueue(ctx context.Context, submissionID int64, lane queue.Lane) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, queuedJob{submissionID: submissionID, lane: lane})
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	dropped []string
}

var _ CacheSink = (*recordingSink)(nil)

func (s *recordingSink) Drop(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = append(s.dropped, keys...)
	return nil
}

type memMatrixCache struct {
	mu      sync.Mutex
	entries map[string]*MatrixEntry
	sets    int
}

func newMemMatrixCache() *memMatrixCache {
	return &memMatrixCache{entries: map[string]*MatrixEntry{}}
}

var _ MatrixCache = (*memMatrixCache)(nil)

func (c *memMatrixCache) Get(ctx context.Context, key string) (*MatrixEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	clone := MatrixEntry{Cursor: entry.Cursor, Value: map[string]int64{}}
	for k, v := range entry.Value {
		clone.Value[k] = v
	}
	return &clone, nil
}

func (c *memMatrixCache) Set(ctx context.Context, key string, entry *MatrixEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := MatrixEntry{Cursor: entry.Cursor, Value: map[string]int64{}}
	for k, v := range entry.Value {
		clone.Value[k] = v
	}
	c.entries[key] = &clone
	c.sets++
	return nil
}

type reportRecord struct {
	err    error
	fields map[string]interface{}
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []reportRecord
}

func (r *recordingReporter) Report(err error, fields map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, reportRecord{err: err, fields: fields})
}
