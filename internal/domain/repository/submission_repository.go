package repository

import (
	"context"
	"database/sql"
	"time"

	"gradex/internal/domain/model"
)

// SubmissionFilter scopes submission reads for rate limiting and aggregation.
type SubmissionFilter struct {
	UserID     *int64
	CourseID   *int64
	ExerciseID *int64
	// JudgedOnly keeps only terminal statuses.
	JudgedOnly bool
	// StudentsOnly excludes staff and admin authors.
	StudentsOnly bool
	// FirstCorrectOnly keeps, per (user, exercise), only the earliest correct
	// submission. Used by cumulative timeseries matrices.
	FirstCorrectOnly bool
	CreatedAfter     *time.Time
	CreatedBefore    *time.Time
}

type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error
	GetSubmissionByID(ctx context.Context, id int64) (*model.Submission, error)
	DeleteSubmission(ctx context.Context, tx *sql.Tx, id int64) error

	// LatestSubmissionTime returns the creation time of the user's most
	// recent submission across all exercises, or nil when none exists.
	LatestSubmissionTime(ctx context.Context, userID int64) (*time.Time, error)

	// AssignFsKey persists a lazily generated storage key. The fs_key column
	// carries a unique constraint; a collision surfaces as a unique-violation
	// error so the caller can retry with a fresh token.
	AssignFsKey(ctx context.Context, id int64, fsKey string) error

	// MarkQueued atomically moves a submission to queued, clearing any prior
	// verdict, unless it is already queued or running. Returns false when the
	// guard refused the transition.
	MarkQueued(ctx context.Context, id int64) (bool, error)

	// MarkRunning moves a queued submission to running. Returns false when
	// the submission was not queued.
	MarkRunning(ctx context.Context, id int64) (bool, error)

	// ApplyVerdict writes the terminal status, accepted and summary in one
	// statement; the three always change together. The update only matches
	// submissions still queued or running; returns false when the guard
	// refused the write (already judged, never dispatched, or missing).
	ApplyVerdict(ctx context.Context, tx *sql.Tx, id int64, status model.SubmissionStatus, accepted bool, summary string) (bool, error)

	// UpdateIdentity rewrites the (course, user, exercise) tuple.
	UpdateIdentity(ctx context.Context, tx *sql.Tx, id int64, courseID *int64, userID, exerciseID int64) error

	// ListAfter returns up to limit submissions with id > cursor matching the
	// filter, ordered by id, for incremental aggregation.
	ListAfter(ctx context.Context, cursor int64, f SubmissionFilter, limit int) ([]model.Submission, error)
}
