package service

import (
	"context"
	"fmt"
	"log"

	"gradex/internal/domain/model"
	"gradex/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// CacheSink drops cached values so the next read recomputes them. It never
// recomputes anything itself.
type CacheSink interface {
	Drop(ctx context.Context, keys ...string) error
}

type RedisCacheSink struct {
	rdb *redis.Client
}

func NewRedisCacheSink(rdb *redis.Client) *RedisCacheSink {
	return &RedisCacheSink{rdb: rdb}
}

var _ CacheSink = (*RedisCacheSink)(nil)

func (s *RedisCacheSink) Drop(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// InvalidationTarget names one cached aggregate made stale by a submission
// mutation.
type InvalidationTarget struct {
	Kind string // "exercise", "user", "series", "course"
	ID   int64
	Key  string
}

// InvalidationTargets computes, as a pure function of the submission's state,
// the ordered fan-out of cached aggregates to drop: exercise counts (global
// and course-scoped), user counts (global and course-scoped), per-series
// completion for the owning user, then the course solution count.
func InvalidationTargets(sub *model.Submission, series []model.Series) []InvalidationTarget {
	targets := []InvalidationTarget{
		{Kind: "exercise", ID: sub.ExerciseID, Key: fmt.Sprintf("exercise/%d/users_correct", sub.ExerciseID)},
		{Kind: "exercise", ID: sub.ExerciseID, Key: fmt.Sprintf("exercise/%d/users_attempted", sub.ExerciseID)},
	}
	if sub.CourseID != nil {
		c := *sub.CourseID
		targets = append(targets,
			InvalidationTarget{Kind: "exercise", ID: sub.ExerciseID, Key: fmt.Sprintf("exercise/%d/course/%d/users_correct", sub.ExerciseID, c)},
			InvalidationTarget{Kind: "exercise", ID: sub.ExerciseID, Key: fmt.Sprintf("exercise/%d/course/%d/users_attempted", sub.ExerciseID, c)},
		)
	}

	targets = append(targets,
		InvalidationTarget{Kind: "user", ID: sub.UserID, Key: fmt.Sprintf("user/%d/attempted_exercises", sub.UserID)},
		InvalidationTarget{Kind: "user", ID: sub.UserID, Key: fmt.Sprintf("user/%d/correct_exercises", sub.UserID)},
	)
	if sub.CourseID != nil {
		c := *sub.CourseID
		targets = append(targets,
			InvalidationTarget{Kind: "user", ID: sub.UserID, Key: fmt.Sprintf("user/%d/course/%d/attempted_exercises", sub.UserID, c)},
			InvalidationTarget{Kind: "user", ID: sub.UserID, Key: fmt.Sprintf("user/%d/course/%d/correct_exercises", sub.UserID, c)},
		)
	}

	for _, s := range series {
		targets = append(targets, InvalidationTarget{
			Kind: "series",
			ID:   s.ID,
			Key:  fmt.Sprintf("series/%d/user/%d/completion", s.ID, sub.UserID),
		})
	}

	if sub.CourseID != nil {
		targets = append(targets, InvalidationTarget{
			Kind: "course",
			ID:   *sub.CourseID,
			Key:  fmt.Sprintf("course/%d/correct_solutions", *sub.CourseID),
		})
	}
	return targets
}

// InvalidationService applies the fan-out after every submission mutation.
// Failures are logged and dropped: invalidation is fire-and-forget and must
// never fail the triggering request.
type InvalidationService struct {
	courseRepo repository.CourseRepository
	sink       CacheSink
}

func NewInvalidationService(courseRepo repository.CourseRepository, sink CacheSink) *InvalidationService {
	return &InvalidationService{courseRepo: courseRepo, sink: sink}
}

func (s *InvalidationService) Invalidate(ctx context.Context, sub *model.Submission) {
	var series []model.Series
	if sub.CourseID != nil {
		var err error
		series, err = s.courseRepo.SeriesContaining(ctx, *sub.CourseID, sub.ExerciseID)
		if err != nil {
			log.Printf("WARN: failed to resolve series for submission %d: %v", sub.ID, err)
		}
	}

	targets := InvalidationTargets(sub, series)
	keys := make([]string, len(targets))
	for i, t := range targets {
		keys[i] = t.Key
	}
	if err := s.sink.Drop(ctx, keys...); err != nil {
		log.Printf("WARN: cache invalidation for submission %d failed: %v", sub.ID, err)
	}
}
