package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gradex/internal/common"
	"gradex/internal/domain/model"
	"gradex/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

type MatrixKind string

const (
	MatrixPunchcard            MatrixKind = "punchcard"
	MatrixHeatmap              MatrixKind = "heatmap"
	MatrixViolin               MatrixKind = "violin"
	MatrixStackedStatus        MatrixKind = "stacked_status"
	MatrixTimeseries           MatrixKind = "timeseries"
	MatrixCumulativeTimeseries MatrixKind = "ctimeseries"
)

// MatrixOptions scope a matrix computation. Unset fields mean global scope.
type MatrixOptions struct {
	CourseID *int64
	UserID   *int64
	// Timezone shifts punchcard buckets; defaults to UTC.
	Timezone      *time.Location
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// MatrixEntry is a cached aggregate: the maximum submission id incorporated
// so far plus the merged counts. Entries over disjoint id ranges merge by
// per-key addition, so any partition of the id range folds to the same value.
type MatrixEntry struct {
	Cursor int64            `json:"cursor"`
	Value  map[string]int64 `json:"value"`
}

// Merge folds other into e. Addition per key is commutative and associative;
// the cursor advances to the larger of the two.
func (e *MatrixEntry) Merge(other *MatrixEntry) {
	for k, v := range other.Value {
		e.Value[k] += v
	}
	if other.Cursor > e.Cursor {
		e.Cursor = other.Cursor
	}
}

// MatrixCache persists matrix entries between reads. A miss returns (nil, nil).
type MatrixCache interface {
	Get(ctx context.Context, key string) (*MatrixEntry, error)
	Set(ctx context.Context, key string, entry *MatrixEntry) error
}

type RedisMatrixCache struct {
	rdb *redis.Client
}

func NewRedisMatrixCache(rdb *redis.Client) *RedisMatrixCache {
	return &RedisMatrixCache{rdb: rdb}
}

var _ MatrixCache = (*RedisMatrixCache)(nil)

func (c *RedisMatrixCache) Get(ctx context.Context, key string) (*MatrixEntry, error) {
	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, common.Errorf("failed to load matrix cache %s: %w", key, err)
	}
	var entry MatrixEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, common.Errorf("corrupt matrix cache %s: %w", key, err)
	}
	return &entry, nil
}

func (c *RedisMatrixCache) Set(ctx context.Context, key string, entry *MatrixEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return common.Errorf("failed to encode matrix cache %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, payload, 0).Err()
}

// AggregateService computes cursor-based, resumable aggregate matrices over
// the submission stream. Reads are batched to bound memory; results merge
// into the previously cached partial value.
type AggregateService struct {
	subRepo   repository.SubmissionRepository
	cache     MatrixCache
	batchSize int
}

func NewAggregateService(subRepo repository.SubmissionRepository, cache MatrixCache, batchSize int) *AggregateService {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &AggregateService{subRepo: subRepo, cache: cache, batchSize: batchSize}
}

// MatrixCacheKey builds the scoped cache key. Unscoped segments resolve to
// "global". Every option that changes which rows are folded in must appear
// in the key, or differently scoped queries would cross-merge one entry.
func MatrixCacheKey(kind MatrixKind, opts MatrixOptions) string {
	courseSeg := "global"
	if opts.CourseID != nil {
		courseSeg = strconv.FormatInt(*opts.CourseID, 10)
	}
	userSeg := "global"
	if opts.UserID != nil {
		userSeg = strconv.FormatInt(*opts.UserID, 10)
	}
	key := fmt.Sprintf("course/%s/user/%s", courseSeg, userSeg)
	if kind == MatrixPunchcard {
		key += "/timezone/" + timezoneOf(opts).String()
	}
	if opts.CreatedAfter != nil {
		key += "/from/" + opts.CreatedAfter.UTC().Format(time.RFC3339)
	}
	if opts.CreatedBefore != nil {
		key += "/until/" + opts.CreatedBefore.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s/%s_matrix", key, kind)
}

func timezoneOf(opts MatrixOptions) *time.Location {
	if opts.Timezone != nil {
		return opts.Timezone
	}
	return time.UTC
}

func filterFor(kind MatrixKind, opts MatrixOptions) repository.SubmissionFilter {
	f := repository.SubmissionFilter{
		UserID:        opts.UserID,
		CourseID:      opts.CourseID,
		CreatedAfter:  opts.CreatedAfter,
		CreatedBefore: opts.CreatedBefore,
	}
	switch kind {
	case MatrixPunchcard, MatrixHeatmap:
		// Activity matrices count every submission, judged or not.
	case MatrixCumulativeTimeseries:
		f.StudentsOnly = true
		f.FirstCorrectOnly = true
	default:
		f.JudgedOnly = true
		f.StudentsOnly = true
	}
	return f
}

// matrixKey derives the composite key one submission contributes to, or ""
// when the row carries nothing for this kind.
func matrixKey(kind MatrixKind, sub *model.Submission, opts MatrixOptions) string {
	switch kind {
	case MatrixPunchcard:
		t := sub.CreatedAt.In(timezoneOf(opts))
		return fmt.Sprintf("%d, %d", int(t.Weekday()), t.Hour())
	case MatrixHeatmap:
		return sub.CreatedAt.UTC().Format("2006-01-02")
	case MatrixViolin:
		return fmt.Sprintf("exercise/%d/user/%d", sub.ExerciseID, sub.UserID)
	case MatrixStackedStatus:
		return fmt.Sprintf("exercise/%d/status/%s", sub.ExerciseID, sub.Status)
	case MatrixTimeseries:
		return fmt.Sprintf("exercise/%d/date/%s/status/%s", sub.ExerciseID, sub.CreatedAt.UTC().Format("2006-01-02"), sub.Status)
	case MatrixCumulativeTimeseries:
		return fmt.Sprintf("exercise/%d/date/%s", sub.ExerciseID, sub.CreatedAt.UTC().Format("2006-01-02"))
	}
	return ""
}

// Matrix returns the up-to-date aggregate for the kind and scope. The cached
// entry is only rewritten when new submissions arrived beyond its cursor.
func (s *AggregateService) Matrix(ctx context.Context, kind MatrixKind, opts MatrixOptions) (*MatrixEntry, error) {
	key := MatrixCacheKey(kind, opts)
	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		entry = &MatrixEntry{Value: map[string]int64{}}
	}
	if entry.Value == nil {
		entry.Value = map[string]int64{}
	}

	delta, err := s.computeSince(ctx, kind, opts, entry.Cursor)
	if err != nil {
		return nil, err
	}
	if delta == nil {
		// Nothing new: return the cached value unchanged, no cache write.
		return entry, nil
	}

	entry.Merge(delta)
	if err := s.cache.Set(ctx, key, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// computeSince folds all submissions with id > cursor into a fresh entry,
// reading in bounded batches. Returns nil when no rows matched.
func (s *AggregateService) computeSince(ctx context.Context, kind MatrixKind, opts MatrixOptions, cursor int64) (*MatrixEntry, error) {
	filter := filterFor(kind, opts)
	delta := &MatrixEntry{Cursor: cursor, Value: map[string]int64{}}
	seen := false

	for {
		batch, err := s.subRepo.ListAfter(ctx, delta.Cursor, filter, s.batchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		seen = true
		for i := range batch {
			sub := &batch[i]
			if key := matrixKey(kind, sub, opts); key != "" {
				delta.Value[key]++
			}
		}
		delta.Cursor = batch[len(batch)-1].ID
		if len(batch) < s.batchSize {
			break
		}
	}

	if !seen {
		return nil, nil
	}
	return delta, nil
}
