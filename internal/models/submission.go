package models

import (
	"errors"
	"strings"
	"time"
)

const (
	StatusAccepted            = "ACCEPTED"
	StatusWrongAnswer         = "WRONG_ANSWER"
	StatusCompilationError    = "COMPILATION_ERROR"
	StatusRuntimeError        = "RUNTIME_ERROR"
	StatusTimeLimitExceeded   = "TIME_LIMIT_EXCEEDED"
	StatusMemoryLimitExceeded = "MEMORY_LIMIT_EXCEEDED"
)

// ExecutionMode selects which test cases the harness runs.
type ExecutionMode string

const (
	ModeRun    ExecutionMode = "run"
	ModeSubmit ExecutionMode = "submit"
)

// ExecutionRequest is the immutable per-call input to the evaluation
// engine. UserID and ContestID are zero when absent.
type ExecutionRequest struct {
	SourceCode  string
	Language    string
	ChallengeID int
	Mode        ExecutionMode
	TestCaseID  int
	UserID      int
	ContestID   int
}

// ExecutionOutcome is the result of one sandbox run against one test
// case. Produced once, never mutated.
type ExecutionOutcome struct {
	TestCaseID     int    `json:"test_case_id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	ActualOutput   string `json:"actual_output"`
	Passed         bool   `json:"passed"`
	RuntimeMs      int    `json:"runtime_ms"`
	MemoryMb       int    `json:"memory_mb"`
	ErrorMessage   string `json:"error_message,omitempty"`
	Status         string `json:"status"`
}

// Verdict is the reduction of a full outcome list. Transient; persisted
// only as part of a Submission.
type Verdict struct {
	OverallStatus string
	PassedCount   int
	TotalCount    int
	AvgRuntimeMs  int
	AvgMemoryMb   int
}

func (v Verdict) AllPassed() bool {
	return v.PassedCount == v.TotalCount
}

type Submission struct {
	ID          int       `db:"id" json:"id"`
	UserID      int       `db:"user_id" json:"user_id"`
	ChallengeID int       `db:"challenge_id" json:"challenge_id"`
	SourceCode  string    `db:"source_code" json:"source_code"`
	Language    string    `db:"language" json:"language"`
	Status      string    `db:"status" json:"status"`
	RuntimeMs   int       `db:"runtime_ms" json:"runtime_ms"`
	MemoryMb    int       `db:"memory_mb" json:"memory_mb"`
	TestResults string    `db:"test_results" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type ExecuteCodeRequest struct {
	Code         string `json:"code" binding:"required"`
	Language     string `json:"language" binding:"required"`
	ChallengeID  int    `json:"challenge_id" binding:"required"`
	TestCaseID   int    `json:"test_case_id"`
	IsSubmission bool   `json:"is_submission"`
	ContestID    int    `json:"contest_id"`
}

func (r *ExecuteCodeRequest) ValidateRequest() error {
	if strings.TrimSpace(r.Code) == "" {
		return errors.New("code cannot be empty")
	}
	if strings.TrimSpace(r.Language) == "" {
		return errors.New("language is required")
	}
	if r.ChallengeID <= 0 {
		return errors.New("challenge ID must be a positive integer")
	}
	return nil
}

// ExecuteCodeResponse is the user-visible result of one evaluation.
// ScoreRecorded is false when the verdict could not be persisted.
type ExecuteCodeResponse struct {
	Success          bool               `json:"success"`
	TestResults      []ExecutionOutcome `json:"test_results"`
	RuntimeMs        int                `json:"runtime"`
	MemoryMb         int                `json:"memory"`
	AllPassed        bool               `json:"all_passed"`
	PassedTests      int                `json:"passed_tests"`
	TotalTests       int                `json:"total_tests"`
	CompilationError string             `json:"compilation_error,omitempty"`
	Status           string             `json:"status"`
	ScoreRecorded    bool               `json:"score_recorded"`
	SubmissionID     int                `json:"submission_id,omitempty"`
}
