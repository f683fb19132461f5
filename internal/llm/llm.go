package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider names accepted by LLM_PROVIDER.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const (
	defaultChatTimeout     = 120 * time.Second
	defaultChatTemperature = 0.2
)

// ErrEmptyResponse is returned when the model answers with no content.
var ErrEmptyResponse = errors.New("llm: empty response")

// ChatRequest is a single system+user exchange.
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	// Temperature nil means the client default.
	Temperature *float64
	// Schema is a JSON schema the reply should follow. Nil asks for plain JSON.
	Schema any
}

// ChatResponse carries the raw assistant text and usage counters.
type ChatResponse struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
}

// Client is a minimal LLM interface to allow pluggable providers.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Model() string
	// Ping reports whether the backing model is reachable and available.
	Ping(ctx context.Context) error
}

// StatusError is a non-2xx answer from the inference server.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm server returned status %d: %s", e.StatusCode, e.Body)
}

// Temperature is a helper for ChatRequest.Temperature.
func Temperature(v float64) *float64 { return &v }

func temperatureOrDefault(t *float64) float64 {
	if t == nil {
		return defaultChatTemperature
	}
	return *t
}
