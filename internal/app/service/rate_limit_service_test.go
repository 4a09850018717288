package service

import (
	"context"
	"testing"
	"time"

	"gradex/internal/domain/model"
)

func TestRateLimitPermits(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		lastAt    *time.Time
		now       time.Time
		wantAllow bool
	}{
		{
			name:      "no prior submission",
			lastAt:    nil,
			now:       base,
			wantAllow: true,
		},
		{
			name:      "within interval",
			lastAt:    &base,
			now:       base.Add(3 * time.Second),
			wantAllow: false,
		},
		{
			name:      "exactly at interval",
			lastAt:    &base,
			now:       base.Add(model.RateLimitInterval),
			wantAllow: true,
		},
		{
			name:      "well past interval",
			lastAt:    &base,
			now:       base.Add(time.Minute),
			wantAllow: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeSubmissionRepo()
			if tt.lastAt != nil {
				sub := &model.Submission{UserID: 1, ExerciseID: 1, CreatedAt: *tt.lastAt}
				if err := repo.CreateSubmission(context.Background(), nil, sub); err != nil {
					t.Fatalf("CreateSubmission: %v", err)
				}
			}
			limiter := NewRateLimitService(repo)
			got, err := limiter.Permits(context.Background(), 1, tt.now)
			if err != nil {
				t.Fatalf("Permits: %v", err)
			}
			if got != tt.wantAllow {
				t.Errorf("Permits = %v, want %v", got, tt.wantAllow)
			}
		})
	}
}

func TestRateLimitIsPerUser(t *testing.T) {
	repo := newFakeSubmissionRepo()
	now := time.Now()
	sub := &model.Submission{UserID: 1, ExerciseID: 1, CreatedAt: now}
	if err := repo.CreateSubmission(context.Background(), nil, sub); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	limiter := NewRateLimitService(repo)

	got, err := limiter.Permits(context.Background(), 2, now)
	if err != nil {
		t.Fatalf("Permits: %v", err)
	}
	if !got {
		t.Error("another user's submission should not block user 2")
	}
}
