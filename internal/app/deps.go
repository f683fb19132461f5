package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"honest-grader/internal/cache"
	"honest-grader/internal/config"
	"honest-grader/internal/grading"
	"honest-grader/internal/llm"
	"honest-grader/internal/logger"
	"honest-grader/internal/metrics"
	"honest-grader/internal/queue"
	"honest-grader/internal/rubric"
	"honest-grader/internal/store"
)

// Deps bundles common runtime dependencies for services.
// Store and Queue are nil when their provider is "none".
type Deps struct {
	Config  config.Config
	Log     *slog.Logger
	LLM     llm.Client
	Grader  *grading.Service
	Rubrics *rubric.Library
	Cache   cache.Cache
	Store   store.Store
	Queue   queue.Queue
	Metrics *metrics.Metrics

	closers []func() error
}

// Build loads env, config, and shared components.
func Build() (Deps, error) {
	if err := LoadEnvFile(); err != nil {
		return Deps{}, err
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	m := metrics.New()

	deps := Deps{Config: cfg, Log: log, Metrics: m}

	st, err := buildStore(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	if st != nil {
		deps.Store = st
		deps.closers = append(deps.closers, st.Close)
	}

	q, nc, err := buildQueue(cfg, log)
	if err != nil {
		deps.Close()
		return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	if q != nil {
		deps.Queue = q
		deps.closers = append(deps.closers, func() error { return nc.Drain() })
	}

	c := buildCache(cfg, log)
	deps.Cache = c
	deps.closers = append(deps.closers, c.Close)

	core, err := BuildGrader(cfg, log, c, m)
	if err != nil {
		deps.Close()
		return Deps{}, err
	}
	deps.LLM = core.LLM
	deps.Rubrics = core.Rubrics
	deps.Grader = core.Grader
	return deps, nil
}

// Close releases connections opened by Build.
func (d Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && d.Log != nil {
			d.Log.Warn("close failed", "err", err)
		}
	}
}

// LoadEnvFile loads .env when present.
func LoadEnvFile() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}

// Core is what grading needs without any persistence: used by the CLI and by Build.
type Core struct {
	LLM     llm.Client
	Rubrics *rubric.Library
	Grader  *grading.Service
}

// BuildGrader wires the LLM client, rubric presets and grading service.
// c and m may be nil.
func BuildGrader(cfg config.Config, log *slog.Logger, c cache.Cache, m *metrics.Metrics) (Core, error) {
	llmClient, err := buildLLM(cfg, log)
	if err != nil {
		return Core{}, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	lib, err := buildRubrics(cfg, log)
	if err != nil {
		return Core{}, fmt.Errorf("failed to load rubric presets: %w", err)
	}
	svc, err := grading.NewService(grading.ServiceConfig{
		LLM:         llmClient,
		Cache:       c,
		Rubrics:     lib,
		Metrics:     m,
		Log:         log,
		Temperature: cfg.LLMTemperature,
		CacheTTL:    cfg.CacheTTLDuration(),
		Limits: grading.Limits{
			MaxRubricChars: cfg.MaxRubricChars,
			MaxWorkChars:   cfg.MaxWorkChars,
		},
	})
	if err != nil {
		return Core{}, err
	}
	return Core{LLM: llmClient, Rubrics: lib, Grader: svc}, nil
}

func buildStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres store")
		return db, nil
	case "none", "":
		log.Info("grading history disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid options: postgres, none)", cfg.StoreProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, *nats.Conn, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL, nats.Name("honest-grader"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nc, nil
	case "none", "":
		log.Info("async grading disabled")
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid options: nats, none)", cfg.QueueProvider)
	}
}

func buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	switch cfg.CacheProvider {
	case "redis":
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("redis unavailable, caching disabled", "addr", cfg.RedisAddr, "err", err)
			return cache.NewNoOpCache()
		}
		log.Info("using Redis cache", "addr", cfg.RedisAddr)
		return c
	default:
		return cache.NewNoOpCache()
	}
}

func buildLLM(cfg config.Config, log *slog.Logger) (llm.Client, error) {
	switch cfg.LLMProvider {
	case llm.ProviderOllama, "":
		client, err := llm.NewOllamaClient(cfg.OllamaHost, cfg.LLMModel, llm.WithTimeout(cfg.LLMTimeout))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Ollama client: %w", err)
		}
		log.Info("using Ollama LLM client", "host", cfg.OllamaHost, "model", cfg.LLMModel)
		return client, nil
	case llm.ProviderOpenAI:
		baseURL := cfg.OpenAIBaseURL
		if baseURL == "" && cfg.OpenAIKey == "" {
			baseURL = llm.OllamaCompatBaseURL(cfg.OllamaHost)
		}
		client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: baseURL,
			Model:   cfg.LLMModel,
			Timeout: cfg.LLMTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		log.Info("using OpenAI-compatible LLM client", "base_url", baseURL, "model", cfg.LLMModel)
		return client, nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid options: ollama, openai)", cfg.LLMProvider)
	}
}

func buildRubrics(cfg config.Config, log *slog.Logger) (*rubric.Library, error) {
	lib, err := rubric.Load(cfg.RubricsFile)
	if err != nil {
		return nil, err
	}
	if cfg.RubricsFile != "" {
		log.Info("loaded rubric presets", "file", cfg.RubricsFile, "count", len(lib.List()))
	}
	return lib, nil
}
