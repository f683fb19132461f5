package grading

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"honest-grader/internal/cache"
	"honest-grader/internal/llm"
	"honest-grader/internal/metrics"
	"honest-grader/internal/rubric"
)

// RubricSource resolves preset ids.
type RubricSource interface {
	Get(id string) (rubric.Preset, error)
}

// ServiceConfig bundles what a Service needs. Only LLM is required.
type ServiceConfig struct {
	LLM         llm.Client
	Cache       cache.Cache
	Rubrics     RubricSource
	Metrics     *metrics.Metrics
	Log         *slog.Logger
	Temperature float64
	CacheTTL    time.Duration
	Limits      Limits
}

// Service grades submissions against a language model.
type Service struct {
	llm         llm.Client
	cache       cache.Cache
	rubrics     RubricSource
	metrics     *metrics.Metrics
	log         *slog.Logger
	temperature float64
	cacheTTL    time.Duration
	limits      Limits
}

// NewService fills defaults for everything optional in cfg.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.LLM == nil {
		return nil, errors.New("grading: llm client required")
	}
	s := &Service{
		llm:         cfg.LLM,
		cache:       cfg.Cache,
		rubrics:     cfg.Rubrics,
		metrics:     cfg.Metrics,
		log:         cfg.Log,
		temperature: cfg.Temperature,
		cacheTTL:    cfg.CacheTTL,
		limits:      cfg.Limits,
	}
	if s.cache == nil {
		s.cache = cache.NewNoOpCache()
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 24 * time.Hour
	}
	return s, nil
}

// Model is the name of the model grading requests.
func (s *Service) Model() string { return s.llm.Model() }

// Prepare normalises and validates req and resolves a preset rubric, returning
// the request exactly as it will be graded.
func (s *Service) Prepare(req Request) (Request, error) {
	req = req.Normalize()
	if req.Rubric == "" && req.RubricID != "" {
		if s.rubrics == nil {
			return req, &ValidationError{Fields: map[string]string{"rubric_id": "rubric presets are not available"}}
		}
		preset, err := s.rubrics.Get(req.RubricID)
		if err != nil {
			if errors.Is(err, rubric.ErrUnknownPreset) {
				return req, &ValidationError{Fields: map[string]string{"rubric_id": "unknown rubric preset"}}
			}
			return req, err
		}
		req.Rubric = preset.Text
	}
	if err := Validate(req, s.limits); err != nil {
		return req, err
	}
	return req, nil
}

// Grade prepares req, asks the model, and returns a finalised Result. Replies
// that are not JSON still produce a Result (see Fallback); only validation and
// transport failures are errors.
func (s *Service) Grade(ctx context.Context, req Request) (Result, error) {
	req, err := s.Prepare(req)
	if err != nil {
		return Result{}, err
	}
	log := s.log.With("assignment_type", req.AssignmentType, "strictness", req.Strictness, "model", s.llm.Model())

	key := CacheKey(s.llm.Model(), req)
	if res, ok := s.lookup(ctx, key, log); ok {
		s.metrics.ObserveGrading(metrics.OutcomeCached)
		return res, nil
	}

	resp, err := s.llm.Chat(ctx, llm.ChatRequest{
		SystemPrompt: SystemPrompt(req.Strictness),
		UserPrompt:   UserPrompt(req),
		Temperature:  llm.Temperature(s.temperature),
		Schema:       ResultSchema(),
	})
	if err != nil {
		s.metrics.ObserveGrading(metrics.OutcomeError)
		return Result{}, fmt.Errorf("%w: %w", ErrLLMUnavailable, err)
	}
	s.metrics.ObserveLLM(resp.Duration, resp.PromptTokens, resp.CompletionTokens)

	res, err := ParseResult(resp.Content)
	if err != nil {
		log.Warn("model output was not valid JSON, using fallback", "err", err, "bytes", len(resp.Content))
		res = Fallback(resp.Content)
	}
	Finalize(&res, req.StudentWork)
	res.Model = resp.Model

	if res.Parsed {
		s.metrics.ObserveGrading(metrics.OutcomeParsed)
		s.store(ctx, key, res, log)
	} else {
		s.metrics.ObserveGrading(metrics.OutcomeFallback)
	}
	log.Info("graded submission",
		"letter_grade", res.LetterGrade,
		"percent", res.Percent,
		"parsed", res.Parsed,
		"duration_ms", resp.Duration.Milliseconds(),
	)
	return res, nil
}

func (s *Service) lookup(ctx context.Context, key string, log *slog.Logger) (Result, bool) {
	entry, err := s.cache.GetResult(ctx, key)
	if err != nil {
		log.Warn("cache lookup failed", "err", err)
		return Result{}, false
	}
	if entry == nil {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(entry.Result, &res); err != nil {
		log.Warn("failed to decode cached result", "err", err)
		return Result{}, false
	}
	res.Cached = true
	log.Info("cache hit")
	return res, true
}

func (s *Service) store(ctx context.Context, key string, res Result, log *slog.Logger) {
	body, err := json.Marshal(res)
	if err != nil {
		log.Warn("failed to marshal result, skipping cache", "err", err)
		return
	}
	entry := &cache.Entry{Model: res.Model, Result: body, StoredAt: time.Now().UTC()}
	if err := s.cache.SetResult(ctx, key, entry, s.cacheTTL); err != nil {
		// Log cache write failure but don't fail the request
		log.Warn("failed to cache result", "err", err)
	}
}

// CacheKey identifies a grading by model and every prompt input.
func CacheKey(model string, req Request) string {
	h := sha256.New()
	for _, part := range []string{
		model,
		string(NormalizeStrictness(req.Strictness)),
		req.AssignmentType,
		req.GradeLevel,
		req.Rubric,
		req.StudentWork,
	} {
		// Length-prefix each part so field boundaries cannot be forged.
		fmt.Fprintf(h, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil))
}
