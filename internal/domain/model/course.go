package model

import (
	"time"

	"github.com/gosimple/slug"
)

const (
	RoleStudent = "student"
	RoleStaff   = "staff"
	RoleAdmin   = "admin"
)

type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Exercise is ingested metadata: the judge configuration is opaque to this
// core and handed to the runner untouched.
type Exercise struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	JudgeName   string `json:"judge_name"`
	JudgeConfig []byte `json:"-"`
}

// NewExercise derives the URL slug from the exercise name at ingestion time.
func NewExercise(id int64, name, judgeName string, judgeConfig []byte) *Exercise {
	return &Exercise{
		ID:          id,
		Name:        name,
		Slug:        slug.Make(name),
		JudgeName:   judgeName,
		JudgeConfig: judgeConfig,
	}
}

type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Series is an ordered group of exercises within a course.
type Series struct {
	ID          int64   `json:"id"`
	CourseID    int64   `json:"course_id"`
	Name        string  `json:"name"`
	ExerciseIDs []int64 `json:"exercise_ids"`
}

// Contains reports whether the series includes the given exercise.
func (s *Series) Contains(exerciseID int64) bool {
	for _, id := range s.ExerciseIDs {
		if id == exerciseID {
			return true
		}
	}
	return false
}
