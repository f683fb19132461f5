package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"honest-grader/internal/grading"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var ErrGradingNotFound = errors.New("grading not found")

// Grading is one submission and, once graded, its result.
type Grading struct {
	ID        uuid.UUID       `json:"id"`
	Status    Status          `json:"status"`
	Request   grading.Request `json:"request"`
	Result    *grading.Result `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Summary is the list view of a grading.
type Summary struct {
	ID             uuid.UUID `json:"id"`
	Status         Status    `json:"status"`
	AssignmentType string    `json:"assignment_type"`
	GradeLevel     string    `json:"grade_level"`
	LetterGrade    string    `json:"letter_grade,omitempty"`
	Percent        *float64  `json:"percent,omitempty"`
	TopFixes       []string  `json:"top_fixes"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store defines persistence contract for grading history.
type Store interface {
	CreateGrading(ctx context.Context, req grading.Request) (Grading, error)
	GetGrading(ctx context.Context, id uuid.UUID) (Grading, error)
	UpdateGradingStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string) error
	SaveResult(ctx context.Context, id uuid.UUID, result grading.Result) error
	ListGradings(ctx context.Context, limit int) ([]Summary, error)
	Close() error
}
