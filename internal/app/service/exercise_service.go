package service

import (
	"context"
	"encoding/json"
	"log"

	"gradex/internal/common"
	"gradex/internal/domain/model"
	"gradex/internal/domain/repository"
)

// ExerciseService ingests exercise metadata pushed by the content pipeline.
// Submissions only reference exercises that went through here; the judge
// configuration stays opaque all the way to the runner.
type ExerciseService struct {
	courseRepo repository.CourseRepository
}

func NewExerciseService(courseRepo repository.CourseRepository) *ExerciseService {
	return &ExerciseService{courseRepo: courseRepo}
}

type IngestExerciseRequest struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	JudgeName   string          `json:"judge_name"`
	JudgeConfig json.RawMessage `json:"judge_config,omitempty"`
}

// IngestExercise validates and upserts one exercise. The URL slug is derived
// from the name on every ingestion, so a rename re-slugs.
func (s *ExerciseService) IngestExercise(ctx context.Context, req IngestExerciseRequest) (*model.Exercise, error) {
	if req.ID <= 0 || req.Name == "" || req.JudgeName == "" {
		return nil, common.Errorf("exercise id, name and judge_name are required: %w", common.ErrValidation)
	}

	ex := model.NewExercise(req.ID, req.Name, req.JudgeName, req.JudgeConfig)
	if err := s.courseRepo.UpsertExercise(ctx, ex); err != nil {
		return nil, err
	}
	log.Printf("Exercise %d (%s) ingested.", ex.ID, ex.Slug)
	return ex, nil
}
