package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"honest-grader/internal/app"
	"honest-grader/internal/grading"
	"honest-grader/internal/httputil"
	"honest-grader/internal/queue"
	"honest-grader/internal/ratelimit"
	"honest-grader/internal/store"
	"honest-grader/internal/web"
)

// jsonBodyLimit bounds API request bodies; text limits are enforced by validation.
const jsonBodyLimit = 2 << 20

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	pages, err := web.New()
	if err != nil {
		deps.Log.Error("failed to parse templates", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(deps, pages),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		deps.Log.Info("gateway listening", "addr", srv.Addr, "model", deps.LLM.Model())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}

func newRouter(deps app.Deps, pages *web.Renderer) http.Handler {
	r := httputil.NewRouter(deps.Log, deps.Config.LLMTimeout+30*time.Second)
	r.Use(httputil.Metrics(deps.Metrics))

	limiter := ratelimit.New(deps.Config.RateLimitRPS, deps.Config.RateLimitBurst, 10*time.Minute)
	limited := httputil.RateLimit(limiter, deps.Log)

	r.Get("/", indexHandler(deps, pages))
	r.Get("/gradings/{id}", gradingPageHandler(deps, pages))
	r.Handle("/static/*", web.Static())

	r.Route("/api", func(r chi.Router) {
		r.Get("/rubrics", rubricsHandler(deps))
		r.Get("/gradings", listGradingsHandler(deps))
		r.Get("/gradings/{id}", getGradingHandler(deps))
		r.With(limited).Post("/grade", gradeHandler(deps))
		r.With(limited).Post("/gradings", createGradingHandler(deps))
	})
	r.With(limited).Post("/grade", gradeFormHandler(deps, pages))
	r.With(limited).Post("/gradings", createGradingFormHandler(deps, pages))

	r.Get("/healthz", httputil.HealthHandler(deps.Log))
	r.Get("/readyz", httputil.ReadyHandler(deps.Log, deps.LLM.Ping))
	r.Handle("/metrics", deps.Metrics.Handler())

	return r
}

func gradeHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req grading.Request
		if !decodeJSON(deps, w, r, &req) {
			return
		}
		res, err := deps.Grader.Grade(r.Context(), req)
		if err != nil {
			failGrade(deps, w, err)
			return
		}
		if deps.Store != nil {
			// History is best effort for synchronous grading.
			if _, err := persistResult(r.Context(), deps, req, res); err != nil {
				deps.Log.Warn("failed to persist grading", "err", err)
			}
		}
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func createGradingHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !asyncEnabled(deps) {
			httputil.Fail(deps.Log, w, "background grading is disabled (needs STORE_PROVIDER and QUEUE_PROVIDER)", nil, http.StatusServiceUnavailable)
			return
		}
		var req grading.Request
		if !decodeJSON(deps, w, r, &req) {
			return
		}
		g, err := enqueueGrading(r.Context(), deps, req)
		if err != nil {
			failGrade(deps, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"grading_id": g.ID.String(),
			"status":     g.Status,
		})
	}
}

func listGradingsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Store == nil {
			httputil.Fail(deps.Log, w, "grading history is disabled", nil, http.StatusServiceUnavailable)
			return
		}
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				httputil.Fail(deps.Log, w, "limit must be a positive integer", err, http.StatusBadRequest)
				return
			}
			limit = n
		}
		items, err := deps.Store.ListGradings(r.Context(), store.ClampLimit(limit))
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list gradings", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"gradings": items})
	}
}

func getGradingHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, status, err := loadGrading(deps, r)
		if err != nil {
			httputil.Fail(deps.Log, w, err.Error(), err, status)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, g)
	}
}

func rubricsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"rubrics": deps.Rubrics.List()})
	}
}

func decodeJSON(deps app.Deps, w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, jsonBodyLimit))
	if err := dec.Decode(v); err != nil {
		httputil.Fail(deps.Log, w, "invalid JSON body", err, http.StatusBadRequest)
		return false
	}
	return true
}

// failGrade maps grading errors onto API responses.
func failGrade(deps app.Deps, w http.ResponseWriter, err error) {
	var verr *grading.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.ValidationError(deps.Log, w, err)
	case errors.Is(err, grading.ErrLLMUnavailable):
		httputil.Fail(deps.Log, w, modelUnavailableMessage(deps), err, http.StatusBadGateway)
	default:
		httputil.Fail(deps.Log, w, "grading failed", err, http.StatusInternalServerError)
	}
}

func modelUnavailableMessage(deps app.Deps) string {
	return fmt.Sprintf("could not reach the grading model %q at %s; is Ollama running and the model pulled?",
		deps.LLM.Model(), deps.Config.OllamaHost)
}

func asyncEnabled(deps app.Deps) bool {
	return deps.Store != nil && deps.Queue != nil
}

// enqueueGrading validates req, records it as pending and hands it to the worker.
func enqueueGrading(ctx context.Context, deps app.Deps, req grading.Request) (store.Grading, error) {
	req, err := deps.Grader.Prepare(req)
	if err != nil {
		return store.Grading{}, err
	}
	g, err := deps.Store.CreateGrading(ctx, req)
	if err != nil {
		return store.Grading{}, fmt.Errorf("persist grading: %w", err)
	}
	body, err := json.Marshal(queue.GradePayload{GradingID: g.ID})
	if err != nil {
		markFailed(ctx, deps, g.ID, "marshal payload failed")
		return store.Grading{}, err
	}
	task := queue.Task{Type: queue.TaskTypeGrade, Payload: body, MaxAttempts: queue.DefaultMaxAttempts}
	if err := queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond); err != nil {
		markFailed(ctx, deps, g.ID, "failed to enqueue grading")
		return store.Grading{}, fmt.Errorf("enqueue grading: %w", err)
	}
	deps.Log.Info("grading enqueued", "grading_id", g.ID)
	return g, nil
}

func markFailed(ctx context.Context, deps app.Deps, id uuid.UUID, reason string) {
	if err := deps.Store.UpdateGradingStatus(ctx, id, store.StatusFailed, reason); err != nil {
		deps.Log.Error("failed to mark grading failed", "grading_id", id, "err", err)
	}
}

// persistResult stores a synchronously graded submission.
func persistResult(ctx context.Context, deps app.Deps, req grading.Request, res grading.Result) (store.Grading, error) {
	prepared, err := deps.Grader.Prepare(req)
	if err != nil {
		return store.Grading{}, err
	}
	g, err := deps.Store.CreateGrading(ctx, prepared)
	if err != nil {
		return store.Grading{}, err
	}
	if err := deps.Store.SaveResult(ctx, g.ID, res); err != nil {
		return store.Grading{}, err
	}
	g.Status = store.StatusCompleted
	g.Result = &res
	return g, nil
}

// loadGrading resolves the {id} URL param, returning an HTTP status with any error.
func loadGrading(deps app.Deps, r *http.Request) (store.Grading, int, error) {
	if deps.Store == nil {
		return store.Grading{}, http.StatusServiceUnavailable, errors.New("grading history is disabled")
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return store.Grading{}, http.StatusBadRequest, errors.New("invalid grading id")
	}
	g, err := deps.Store.GetGrading(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrGradingNotFound) {
			return store.Grading{}, http.StatusNotFound, store.ErrGradingNotFound
		}
		deps.Log.Error("failed to load grading", "grading_id", id, "err", err)
		return store.Grading{}, http.StatusInternalServerError, errors.New("failed to load grading")
	}
	return g, http.StatusOK, nil
}
