package service

import (
	"context"
	"time"

	"gradex/internal/domain/model"
	"gradex/internal/domain/repository"
)

// RateLimitService enforces the minimum interval between two submissions by
// the same user, across all exercises.
type RateLimitService struct {
	subRepo  repository.SubmissionRepository
	interval time.Duration
}

func NewRateLimitService(subRepo repository.SubmissionRepository) *RateLimitService {
	return &RateLimitService{subRepo: subRepo, interval: model.RateLimitInterval}
}

// Permits reports whether the user may create a submission at `now`. Callers
// with an explicit bypass (bulk import, rejudge) skip this check entirely;
// the bypass is never applied here silently.
func (s *RateLimitService) Permits(ctx context.Context, userID int64, now time.Time) (bool, error) {
	latest, err := s.subRepo.LatestSubmissionTime(ctx, userID)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return true, nil
	}
	return now.Sub(*latest) >= s.interval, nil
}
