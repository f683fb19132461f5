package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"honest-grader/internal/app"
	"honest-grader/internal/grading"
	"honest-grader/internal/httputil"
	"honest-grader/internal/queue"
	"honest-grader/internal/store"
)

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()
	if deps.Store == nil || deps.Queue == nil {
		deps.Log.Error("worker needs STORE_PROVIDER=postgres and QUEUE_PROVIDER=nats")
		os.Exit(1)
	}
	deps.Log.Info("grading worker starting", "model", deps.LLM.Model())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// Run queue worker
	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeGrade, func(ctx context.Context, task queue.Task) error {
			return handleTask(ctx, deps, task)
		})
	})

	// Run health check server
	g.Go(func() error {
		return httputil.ServeHealth(ctx, deps.Config.Port, "worker", deps.Log)
	})

	// Wait for either to fail
	if err := g.Wait(); err != nil {
		deps.Log.Error("grading worker stopped", "err", err)
	}
}

func handleTask(ctx context.Context, deps app.Deps, task queue.Task) error {
	var payload queue.GradePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		// A malformed payload will never succeed; drop it.
		deps.Log.Error("invalid grade payload", "task_id", task.ID, "err", err)
		return nil
	}
	log := deps.Log.With("grading_id", payload.GradingID, "attempt", task.Attempts+1)

	err := handleGrade(ctx, deps, payload)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrGradingNotFound) {
		log.Warn("grading vanished, dropping task")
		return nil
	}
	var verr *grading.ValidationError
	if errors.As(err, &verr) || task.LastAttempt() {
		log.Error("grading failed", "err", err)
		if upErr := deps.Store.UpdateGradingStatus(ctx, payload.GradingID, store.StatusFailed, failureMessage(err)); upErr != nil {
			log.Error("failed to mark grading failed", "err", upErr)
		}
		return nil
	}
	log.Warn("grading attempt failed, will retry", "err", err)
	return err
}

// handleGrade loads a pending grading, grades it and stores the result.
func handleGrade(ctx context.Context, deps app.Deps, payload queue.GradePayload) error {
	g, err := deps.Store.GetGrading(ctx, payload.GradingID)
	if err != nil {
		return err
	}
	if g.Status == store.StatusCompleted {
		// Redelivered after success.
		return nil
	}
	if err := deps.Store.UpdateGradingStatus(ctx, g.ID, store.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	res, err := deps.Grader.Grade(ctx, g.Request)
	if err != nil {
		return err
	}
	if err := deps.Store.SaveResult(ctx, g.ID, res); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	deps.Log.Info("grading completed", "grading_id", g.ID, "letter_grade", res.LetterGrade, "parsed", res.Parsed)
	return nil
}

func failureMessage(err error) string {
	var verr *grading.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, grading.ErrLLMUnavailable):
		return "the grading model could not be reached"
	default:
		return "grading failed"
	}
}
