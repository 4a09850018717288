package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"gradex/internal/common"
	"gradex/internal/domain/model"
)

type PgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) *PgSubmissionRepository {
	return &PgSubmissionRepository{db: db}
}

var _ SubmissionRepository = (*PgSubmissionRepository)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *PgSubmissionRepository) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.db
}

const submissionColumns = `id, user_id, exercise_id, course_id, status, accepted, summary, fs_key, created_at, updated_at`

func scanSubmission(row interface{ Scan(...interface{}) error }) (*model.Submission, error) {
	var sub model.Submission
	var courseID sql.NullInt64
	var accepted sql.NullBool
	var summary, fsKey sql.NullString
	err := row.Scan(&sub.ID, &sub.UserID, &sub.ExerciseID, &courseID, &sub.Status,
		&accepted, &summary, &fsKey, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if courseID.Valid {
		sub.CourseID = &courseID.Int64
	}
	if accepted.Valid {
		sub.Accepted = &accepted.Bool
	}
	sub.Summary = summary.String
	sub.FsKey = fsKey.String
	return &sub, nil
}

func (r *PgSubmissionRepository) CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	query := `INSERT INTO submissions (user_id, exercise_id, course_id, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING id, created_at, updated_at`
	err := r.q(tx).QueryRowContext(ctx, query, sub.UserID, sub.ExerciseID, sub.CourseID, sub.Status).
		Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return common.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

func (r *PgSubmissionRepository) GetSubmissionByID(ctx context.Context, id int64) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	sub, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.Errorf("failed to fetch submission %d: %w", id, err)
	}
	return sub, nil
}

func (r *PgSubmissionRepository) DeleteSubmission(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := r.q(tx).ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id); err != nil {
		return common.Errorf("failed to delete submission %d: %w", id, err)
	}
	return nil
}

func (r *PgSubmissionRepository) LatestSubmissionTime(ctx context.Context, userID int64) (*time.Time, error) {
	var created time.Time
	query := `SELECT created_at FROM submissions WHERE user_id = $1 ORDER BY id DESC LIMIT 1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, common.Errorf("failed to fetch latest submission time for user %d: %w", userID, err)
	}
	return &created, nil
}

func (r *PgSubmissionRepository) AssignFsKey(ctx context.Context, id int64, fsKey string) error {
	query := `UPDATE submissions SET fs_key = $1, updated_at = NOW() WHERE id = $2 AND fs_key IS NULL`
	res, err := r.db.ExecContext(ctx, query, fsKey, id)
	if err != nil {
		return err // unique violation propagated as-is for the retry loop
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.Errorf("fs_key already assigned for submission %d: %w", id, common.ErrConflict)
	}
	return nil
}

func (r *PgSubmissionRepository) MarkQueued(ctx context.Context, id int64) (bool, error) {
	// Single conditional update: the dispatch guard and the transition are
	// one atomic statement, so two racing dispatch calls cannot both pass.
	query := `UPDATE submissions
	          SET status = $1, accepted = NULL, summary = NULL, updated_at = NOW()
	          WHERE id = $2 AND status NOT IN ($3, $4)`
	res, err := r.db.ExecContext(ctx, query, model.StatusQueued, id, model.StatusQueued, model.StatusRunning)
	if err != nil {
		return false, common.Errorf("failed to mark submission %d queued: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PgSubmissionRepository) MarkRunning(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE submissions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, model.StatusRunning, id, model.StatusQueued)
	if err != nil {
		return false, common.Errorf("failed to mark submission %d running: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PgSubmissionRepository) ApplyVerdict(ctx context.Context, tx *sql.Tx, id int64, status model.SubmissionStatus, accepted bool, summary string) (bool, error) {
	// Verdicts only land on submissions still in the queue or running. A
	// duplicate or stale runner callback finds zero matching rows and leaves
	// the judged outcome alone; only an explicit rejudge reopens the row.
	query := `UPDATE submissions
	          SET status = $1, accepted = $2, summary = $3, updated_at = NOW()
	          WHERE id = $4 AND status IN ($5, $6)`
	res, err := r.q(tx).ExecContext(ctx, query, status, accepted, summary, id, model.StatusQueued, model.StatusRunning)
	if err != nil {
		return false, common.Errorf("failed to apply verdict to submission %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PgSubmissionRepository) UpdateIdentity(ctx context.Context, tx *sql.Tx, id int64, courseID *int64, userID, exerciseID int64) error {
	query := `UPDATE submissions SET course_id = $1, user_id = $2, exercise_id = $3, updated_at = NOW() WHERE id = $4`
	if _, err := r.q(tx).ExecContext(ctx, query, courseID, userID, exerciseID, id); err != nil {
		return common.Errorf("failed to update identity of submission %d: %w", id, err)
	}
	return nil
}

func (r *PgSubmissionRepository) ListAfter(ctx context.Context, cursor int64, f SubmissionFilter, limit int) ([]model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions s WHERE s.id > $1`
	args := []interface{}{cursor}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		query += " AND " + clause + "$" + strconv.Itoa(len(args))
	}

	if f.UserID != nil {
		add("s.user_id = ", *f.UserID)
	}
	if f.CourseID != nil {
		add("s.course_id = ", *f.CourseID)
	}
	if f.ExerciseID != nil {
		add("s.exercise_id = ", *f.ExerciseID)
	}
	if f.CreatedAfter != nil {
		add("s.created_at >= ", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		add("s.created_at < ", *f.CreatedBefore)
	}
	if f.JudgedOnly {
		query += ` AND s.status NOT IN ('unknown', 'queued', 'running')`
	}
	if f.StudentsOnly {
		query += ` AND NOT EXISTS (SELECT 1 FROM users u WHERE u.id = s.user_id AND u.role <> 'student')`
	}
	if f.FirstCorrectOnly {
		// Earliest correct submission per (user, exercise). Rows before the
		// cursor were already folded into the cached matrix, so the anti-join
		// spans the full table, not just ids beyond the cursor.
		query += ` AND s.status = 'correct' AND NOT EXISTS (
		    SELECT 1 FROM submissions p
		    WHERE p.user_id = s.user_id AND p.exercise_id = s.exercise_id
		      AND p.status = 'correct' AND p.id < s.id)`
	}

	args = append(args, limit)
	query += " ORDER BY s.id ASC LIMIT $" + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.Errorf("failed to list submissions after %d: %w", cursor, err)
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, common.Errorf("failed to scan submission row: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
