package service

import (
	"context"
	"log"
	"strconv"

	"gradex/internal/domain/model"
	"gradex/internal/domain/repository"
	"gradex/internal/platform/queue"

	"github.com/redis/go-redis/v9"
)

// JobQueue schedules evaluation work on a priority lane. Decoupled from the
// dispatcher so tests can inject a synchronous or recording implementation.
type JobQueue interface {
	Enqueue(ctx context.Context, submissionID int64, lane queue.Lane) error
}

// RedisJobQueue backs each lane with a Redis list. Producers RPush, workers
// BLPop across lanes in priority order.
type RedisJobQueue struct {
	rdb *redis.Client
}

func NewRedisJobQueue(rdb *redis.Client) *RedisJobQueue {
	return &RedisJobQueue{rdb: rdb}
}

var _ JobQueue = (*RedisJobQueue)(nil)

func (q *RedisJobQueue) Enqueue(ctx context.Context, submissionID int64, lane queue.Lane) error {
	return q.rdb.RPush(ctx, queue.LaneKey(lane), strconv.FormatInt(submissionID, 10)).Err()
}

// DispatchService decides whether a submission gets (re-)queued for
// evaluation and on which lane.
type DispatchService struct {
	subRepo repository.SubmissionRepository
	jobs    JobQueue
}

func NewDispatchService(subRepo repository.SubmissionRepository, jobs JobQueue) *DispatchService {
	return &DispatchService{subRepo: subRepo, jobs: jobs}
}

// Dispatch queues the submission for evaluation. A submission already queued
// or running is left alone: the guard and the queued transition are a single
// conditional update, so at most one evaluation is ever in flight.
func (s *DispatchService) Dispatch(ctx context.Context, sub *model.Submission, lane queue.Lane) error {
	if lane == "" {
		lane = queue.LaneNormal
	}
	ok, err := s.subRepo.MarkQueued(ctx, sub.ID)
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("Submission %d already queued or running, dispatch skipped.", sub.ID)
		return nil
	}
	sub.Status = model.StatusQueued
	sub.Accepted = nil
	sub.Summary = ""

	return s.jobs.Enqueue(ctx, sub.ID, lane)
}

// BulkRejudge schedules every submission in the set. Batches default to the
// low lane so they cannot starve interactive submissions.
func (s *DispatchService) BulkRejudge(ctx context.Context, ids []int64, lane queue.Lane) error {
	if lane == "" {
		lane = queue.LaneLow
	}
	for _, id := range ids {
		ok, err := s.subRepo.MarkQueued(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := s.jobs.Enqueue(ctx, id, lane); err != nil {
			return err
		}
	}
	log.Printf("Bulk rejudge of %d submissions scheduled on lane %s.", len(ids), lane)
	return nil
}
