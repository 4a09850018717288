package repository

import (
	"context"
	"database/sql"

	"gradex/internal/common"
	"gradex/internal/domain/model"
)

type CourseRepository interface {
	GetExerciseByID(ctx context.Context, id int64) (*model.Exercise, error)
	// UpsertExercise inserts or refreshes ingested exercise metadata.
	UpsertExercise(ctx context.Context, ex *model.Exercise) error
	GetCourseByID(ctx context.Context, id int64) (*model.Course, error)
	// SeriesContaining returns every series in the course that includes the
	// exercise. The invalidation cascade fans out over these.
	SeriesContaining(ctx context.Context, courseID, exerciseID int64) ([]model.Series, error)
}

type PgCourseRepository struct {
	db *sql.DB
}

func NewPgCourseRepository(db *sql.DB) *PgCourseRepository {
	return &PgCourseRepository{db: db}
}

var _ CourseRepository = (*PgCourseRepository)(nil)

func (r *PgCourseRepository) GetExerciseByID(ctx context.Context, id int64) (*model.Exercise, error) {
	var ex model.Exercise
	query := `SELECT id, name, slug, judge_name, judge_config FROM exercises WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&ex.ID, &ex.Name, &ex.Slug, &ex.JudgeName, &ex.JudgeConfig)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.Errorf("failed to fetch exercise %d: %w", id, err)
	}
	return &ex, nil
}

func (r *PgCourseRepository) UpsertExercise(ctx context.Context, ex *model.Exercise) error {
	query := `INSERT INTO exercises (id, name, slug, judge_name, judge_config)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (id) DO UPDATE
	          SET name = EXCLUDED.name, slug = EXCLUDED.slug,
	              judge_name = EXCLUDED.judge_name, judge_config = EXCLUDED.judge_config`
	if _, err := r.db.ExecContext(ctx, query, ex.ID, ex.Name, ex.Slug, ex.JudgeName, ex.JudgeConfig); err != nil {
		return common.Errorf("failed to upsert exercise %d: %w", ex.ID, err)
	}
	return nil
}

func (r *PgCourseRepository) GetCourseByID(ctx context.Context, id int64) (*model.Course, error) {
	var c model.Course
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM courses WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.Errorf("failed to fetch course %d: %w", id, err)
	}
	return &c, nil
}

func (r *PgCourseRepository) SeriesContaining(ctx context.Context, courseID, exerciseID int64) ([]model.Series, error) {
	// One row per (series, member exercise); grouped in Go below.
	query := `SELECT s.id, s.course_id, s.name, se.exercise_id
	          FROM series s
	          JOIN series_exercises se ON se.series_id = s.id
	          WHERE s.course_id = $1
	            AND EXISTS (SELECT 1 FROM series_exercises m WHERE m.series_id = s.id AND m.exercise_id = $2)
	          ORDER BY s.id, se.position`
	rows, err := r.db.QueryContext(ctx, query, courseID, exerciseID)
	if err != nil {
		return nil, common.Errorf("failed to list series for course %d exercise %d: %w", courseID, exerciseID, err)
	}
	defer rows.Close()

	var series []model.Series
	for rows.Next() {
		var id, cID, exID int64
		var name string
		if err := rows.Scan(&id, &cID, &name, &exID); err != nil {
			return nil, common.Errorf("failed to scan series row: %w", err)
		}
		if len(series) == 0 || series[len(series)-1].ID != id {
			series = append(series, model.Series{ID: id, CourseID: cID, Name: name})
		}
		last := &series[len(series)-1]
		last.ExerciseIDs = append(last.ExerciseIDs, exID)
	}
	return series, rows.Err()
}
