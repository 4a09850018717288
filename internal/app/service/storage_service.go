package service

import (
	"compress/gzip"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gradex/internal/common"
	"gradex/internal/domain/model"
	"gradex/internal/domain/repository"
	"gradex/internal/platform/report"

	"github.com/google/uuid"
)

const (
	codeFileName   = "code"
	resultFileName = "result.json.gz"
	// Directory segment used when a submission has no course attached.
	noCourseDir = "no_course"

	fsKeyMaxAttempts = 5
)

// StorageService owns the per-submission directory holding the raw source
// code and the gzip-compressed verdict. The directory is keyed by
// (course, user, exercise, fs_key) and must follow the submission when any of
// the first three change.
type StorageService struct {
	root     string
	subRepo  repository.SubmissionRepository
	reporter report.Reporter

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewStorageService(root string, subRepo repository.SubmissionRepository, reporter report.Reporter) *StorageService {
	return &StorageService{
		root:     root,
		subRepo:  subRepo,
		reporter: reporter,
		locks:    map[int64]*sync.Mutex{},
	}
}

// lockFor serializes storage moves and writes per submission. Concurrent
// readers are safe; a rename racing a read or write is not.
func (s *StorageService) lockFor(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}

// EnsureFsKey lazily assigns the submission's storage token. Uniqueness is
// enforced by the database constraint; collisions retry with a fresh token.
func (s *StorageService) EnsureFsKey(ctx context.Context, sub *model.Submission) error {
	if sub.FsKey != "" {
		return nil
	}
	for attempt := 0; attempt < fsKeyMaxAttempts; attempt++ {
		key := uuid.NewString()
		err := s.subRepo.AssignFsKey(ctx, sub.ID, key)
		if err == nil {
			sub.FsKey = key
			return nil
		}
		if common.IsUniqueViolation(err) {
			log.Printf("fs_key collision for submission %d, retrying", sub.ID)
			continue
		}
		return common.Errorf("failed to assign fs_key for submission %d: %w", sub.ID, err)
	}
	return common.Errorf("exhausted fs_key attempts for submission %d: %w", sub.ID, common.ErrConflict)
}

// StoragePath returns the submission's directory. Callers must have ensured
// the fs_key first.
func (s *StorageService) StoragePath(sub *model.Submission) string {
	courseSeg := noCourseDir
	if sub.CourseID != nil {
		courseSeg = strconv.FormatInt(*sub.CourseID, 10)
	}
	return filepath.Join(s.root,
		courseSeg,
		strconv.FormatInt(sub.UserID, 10),
		strconv.FormatInt(sub.ExerciseID, 10),
		sub.FsKey)
}

func (s *StorageService) WriteCode(ctx context.Context, sub *model.Submission, code []byte) error {
	if err := s.EnsureFsKey(ctx, sub); err != nil {
		return err
	}
	l := s.lockFor(sub.ID)
	l.Lock()
	defer l.Unlock()

	dir := s.StoragePath(sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return common.Errorf("failed to create storage dir for submission %d: %w", sub.ID, err)
	}
	if err := os.WriteFile(filepath.Join(dir, codeFileName), code, 0o644); err != nil {
		return common.Errorf("failed to write code for submission %d: %w", sub.ID, err)
	}
	return nil
}

// ReadCode returns the stored source. A missing file is a storage
// inconsistency: it is reported out of band and read as empty, never as a
// hard failure.
func (s *StorageService) ReadCode(ctx context.Context, sub *model.Submission) ([]byte, error) {
	if sub.FsKey == "" {
		// Storage was never touched; nothing to report.
		return nil, nil
	}
	code, err := os.ReadFile(filepath.Join(s.StoragePath(sub), codeFileName))
	if err != nil {
		s.reporter.Report(common.Errorf("missing code file: %w", err), map[string]interface{}{
			"submission_id": sub.ID,
			"path":          s.StoragePath(sub),
		})
		return nil, nil
	}
	return code, nil
}

func (s *StorageService) WriteResult(ctx context.Context, sub *model.Submission, result []byte) error {
	if err := s.EnsureFsKey(ctx, sub); err != nil {
		return err
	}
	l := s.lockFor(sub.ID)
	l.Lock()
	defer l.Unlock()

	dir := s.StoragePath(sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return common.Errorf("failed to create storage dir for submission %d: %w", sub.ID, err)
	}
	f, err := os.Create(filepath.Join(dir, resultFileName))
	if err != nil {
		return common.Errorf("failed to create result file for submission %d: %w", sub.ID, err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if _, err := zw.Write(result); err != nil {
		zw.Close()
		return common.Errorf("failed to write result for submission %d: %w", sub.ID, err)
	}
	return zw.Close()
}

// ReadResult returns the decompressed verdict payload. A submission still in
// the queue has no result yet; a missing or corrupt file after judging is
// reported and read as absent.
func (s *StorageService) ReadResult(ctx context.Context, sub *model.Submission) ([]byte, error) {
	if sub.Status.InFlight() || sub.FsKey == "" {
		return nil, nil
	}
	f, err := os.Open(filepath.Join(s.StoragePath(sub), resultFileName))
	if err != nil {
		s.reporter.Report(common.Errorf("missing result file: %w", err), map[string]interface{}{
			"submission_id": sub.ID,
			"path":          s.StoragePath(sub),
		})
		return nil, nil
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		s.reporter.Report(common.Errorf("corrupt result file: %w", err), map[string]interface{}{
			"submission_id": sub.ID,
		})
		return nil, nil
	}
	defer zr.Close()

	payload, err := io.ReadAll(zr)
	if err != nil {
		s.reporter.Report(common.Errorf("corrupt result file: %w", err), map[string]interface{}{
			"submission_id": sub.ID,
		})
		return nil, nil
	}
	return payload, nil
}

// Relocate moves the storage directory when an identity-relevant attribute
// (course, user or exercise) changes. No I/O happens when the computed path
// is unchanged. The move is serialized against writes on the same submission.
func (s *StorageService) Relocate(ctx context.Context, sub *model.Submission, courseID *int64, userID, exerciseID int64) error {
	if sub.FsKey == "" {
		return nil // nothing on disk yet
	}
	oldPath := s.StoragePath(sub)
	moved := *sub
	moved.CourseID = courseID
	moved.UserID = userID
	moved.ExerciseID = exerciseID
	newPath := s.StoragePath(&moved)
	if oldPath == newPath {
		return nil
	}

	l := s.lockFor(sub.ID)
	l.Lock()
	defer l.Unlock()

	if _, err := os.Stat(oldPath); os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return common.Errorf("failed to prepare new storage path for submission %d: %w", sub.ID, err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return common.Errorf("failed to move storage for submission %d: %w", sub.ID, err)
	}
	return nil
}

// Remove deletes the storage directory. Called on record destruction and when
// a creation rolls back after storage was already written.
func (s *StorageService) Remove(sub *model.Submission) error {
	if sub.FsKey == "" {
		return nil
	}
	dir := s.StoragePath(sub)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return common.Errorf("failed to remove storage for submission %d: %w", sub.ID, err)
	}
	return nil
}
