package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"honest-grader/internal/retry"
)

// TaskType enumerates supported task categories.
type TaskType string

const (
	TaskTypeGrade TaskType = "grade"
)

// DefaultMaxAttempts applies when a task does not set MaxAttempts.
const DefaultMaxAttempts = 5

// Task represents a unit of work handed from the gateway to a worker.
type Task struct {
	ID          uuid.UUID
	Type        TaskType
	Payload     []byte
	Attempts    int
	MaxAttempts int
	NotBefore   time.Time
}

// LastAttempt reports whether a failure now will not be retried.
func (t Task) LastAttempt() bool {
	maxAttempts := t.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return t.Attempts+1 >= maxAttempts
}

// GradePayload is the body of a grade task.
type GradePayload struct {
	GradingID uuid.UUID `json:"grading_id"`
}

type Handler func(context.Context, Task) error

// Queue exposes a minimal contract to enqueue and consume tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Worker(ctx context.Context, taskType TaskType, handler Handler) error
}

// EnqueueWithRetry attempts to enqueue with retries and exponential backoff.
func EnqueueWithRetry(ctx context.Context, q Queue, task Task, attempts int, base time.Duration) error {
	return retry.Do(ctx, attempts, base, func(ctx context.Context) error {
		return q.Enqueue(ctx, task)
	})
}
