package model

import "time"

type SubmissionStatus string

const (
	StatusUnknown             SubmissionStatus = "unknown"
	StatusQueued              SubmissionStatus = "queued"
	StatusRunning             SubmissionStatus = "running"
	StatusCorrect             SubmissionStatus = "correct"
	StatusWrong               SubmissionStatus = "wrong"
	StatusTimeLimitExceeded   SubmissionStatus = "time limit exceeded"
	StatusCompilationError    SubmissionStatus = "compilation error"
	StatusRuntimeError        SubmissionStatus = "runtime error"
	StatusMemoryLimitExceeded SubmissionStatus = "memory limit exceeded"
	StatusOutputLimitExceeded SubmissionStatus = "output limit exceeded"
	StatusInternalError       SubmissionStatus = "internal error"
)

// MaxCodeLength bounds stored source code at 64 KiB.
const MaxCodeLength = 64 * 1024

// RateLimitInterval is the minimum delay between two submissions by the same
// user, across all exercises.
const RateLimitInterval = 5 * time.Second

var terminalStatuses = map[SubmissionStatus]bool{
	StatusCorrect:             true,
	StatusWrong:               true,
	StatusTimeLimitExceeded:   true,
	StatusCompilationError:    true,
	StatusRuntimeError:        true,
	StatusMemoryLimitExceeded: true,
	StatusOutputLimitExceeded: true,
	StatusInternalError:       true,
}

var knownStatuses = map[SubmissionStatus]bool{
	StatusUnknown: true,
	StatusQueued:  true,
	StatusRunning: true,
}

func init() {
	for s := range terminalStatuses {
		knownStatuses[s] = true
	}
}

// NormalizeStatus maps a runner's free-form status string onto the known set.
// The judge's long forms for correct/wrong answers are accepted; anything else
// outside the known set degrades to unknown.
func NormalizeStatus(raw string) SubmissionStatus {
	switch raw {
	case "correct answer":
		return StatusCorrect
	case "wrong answer":
		return StatusWrong
	}
	if s := SubmissionStatus(raw); knownStatuses[s] {
		return s
	}
	return StatusUnknown
}

// IsTerminal reports whether s is a judged (terminal) status.
func (s SubmissionStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// InFlight reports whether s blocks re-dispatch.
func (s SubmissionStatus) InFlight() bool {
	return s == StatusQueued || s == StatusRunning
}

type Submission struct {
	ID         int64            `json:"id"`
	UserID     int64            `json:"user_id"`
	ExerciseID int64            `json:"exercise_id"`
	CourseID   *int64           `json:"course_id,omitempty"`
	Status     SubmissionStatus `json:"status"`
	Accepted   *bool            `json:"accepted,omitempty"`
	Summary    string           `json:"summary,omitempty"`
	// FsKey names this submission's storage directory. Assigned lazily on
	// first storage access, globally unique, immutable once set.
	FsKey     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Judged reports whether the submission has reached a terminal status.
func (s *Submission) Judged() bool {
	return s.Status.IsTerminal()
}
