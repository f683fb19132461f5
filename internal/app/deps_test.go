package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honest-grader/internal/cache"
	"honest-grader/internal/config"
	"honest-grader/internal/llm"
	"honest-grader/internal/logger"
)

func TestBuildLLM(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		want    any
		wantErr bool
	}{
		{
			name: "ollama native",
			cfg:  config.Config{LLMProvider: "ollama", OllamaHost: "http://localhost:11434", LLMModel: "llama3.1:8b"},
			want: &llm.OllamaClient{},
		},
		{
			name: "openai compatible against ollama needs no key",
			cfg:  config.Config{LLMProvider: "openai", OllamaHost: "http://localhost:11434", LLMModel: "llama3.1:8b"},
			want: &llm.OpenAIClient{},
		},
		{
			name:    "unknown provider",
			cfg:     config.Config{LLMProvider: "bard", LLMModel: "x"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := buildLLM(tt.cfg, logger.Discard())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, client)
			assert.Equal(t, tt.cfg.LLMModel, client.Model())
		})
	}
}

func TestBuildStoreAndQueueNone(t *testing.T) {
	st, err := buildStore(config.Config{StoreProvider: "none"}, logger.Discard())
	require.NoError(t, err)
	assert.Nil(t, st)

	q, nc, err := buildQueue(config.Config{QueueProvider: "none"}, logger.Discard())
	require.NoError(t, err)
	assert.Nil(t, q)
	assert.Nil(t, nc)
}

func TestBuildProvidersRequireURLs(t *testing.T) {
	_, err := buildStore(config.Config{StoreProvider: "postgres"}, logger.Discard())
	assert.ErrorContains(t, err, "DB_URL")

	_, _, err = buildQueue(config.Config{QueueProvider: "nats"}, logger.Discard())
	assert.ErrorContains(t, err, "QUEUE_URL")

	_, err = buildStore(config.Config{StoreProvider: "mongo"}, logger.Discard())
	assert.Error(t, err)
}

func TestBuildCacheFallsBackToNoOp(t *testing.T) {
	c := buildCache(config.Config{CacheProvider: "redis", RedisAddr: "127.0.0.1:1"}, logger.Discard())
	assert.IsType(t, &cache.NoOpCache{}, c)

	c = buildCache(config.Config{CacheProvider: "none"}, logger.Discard())
	assert.IsType(t, &cache.NoOpCache{}, c)
}

func TestBuildGrader(t *testing.T) {
	cfg := config.Config{
		LLMProvider:    "ollama",
		OllamaHost:     "http://localhost:11434",
		LLMModel:       "llama3.1:8b",
		LLMTemperature: 0.2,
		CacheTTL:       60,
	}
	core, err := BuildGrader(cfg, logger.Discard(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "llama3.1:8b", core.Grader.Model())
	assert.NotEmpty(t, core.Rubrics.List())

	cfg.RubricsFile = "does-not-exist.yaml"
	_, err = BuildGrader(cfg, logger.Discard(), nil, nil)
	assert.Error(t, err)
}
