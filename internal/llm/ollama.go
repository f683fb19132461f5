package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"honest-grader/internal/retry"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaClient talks to a local Ollama server through its native chat API.
type OllamaClient struct {
	host     string
	model    string
	timeout  time.Duration
	attempts int
	client   *http.Client
}

// OllamaOption customises an OllamaClient.
type OllamaOption func(*OllamaClient)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) OllamaOption {
	return func(c *OllamaClient) { c.client = hc }
}

// WithTimeout bounds a single chat call, retries included.
func WithTimeout(d time.Duration) OllamaOption {
	return func(c *OllamaClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithAttempts sets how many times a transient failure is retried.
func WithAttempts(n int) OllamaOption {
	return func(c *OllamaClient) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// NewOllamaClient builds a client for host (e.g. http://localhost:11434).
func NewOllamaClient(host, model string, opts ...OllamaOption) (*OllamaClient, error) {
	if host == "" {
		host = defaultOllamaHost
	}
	if model == "" {
		return nil, fmt.Errorf("ollama model required")
	}
	c := &OllamaClient{
		host:     strings.TrimRight(host, "/"),
		model:    model,
		timeout:  defaultChatTimeout,
		attempts: 2,
		client:   &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *OllamaClient) Model() string { return c.model }

func (c *OllamaClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if c == nil || c.client == nil {
		return ChatResponse{}, fmt.Errorf("nil ollama client")
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := ollamaChatRequest{
		Model: c.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Stream:  false,
		Options: ollamaOptions{Temperature: temperatureOrDefault(req.Temperature)},
	}
	if req.Schema != nil {
		payload.Format = req.Schema
	} else {
		payload.Format = "json"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	var out ollamaChatResponse
	err = retry.Do(reqCtx, c.attempts, 500*time.Millisecond, func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/chat", body, &out)
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("ollama chat: %w", err)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return ChatResponse{}, ErrEmptyResponse
	}
	model := out.Model
	if model == "" {
		model = c.model
	}
	return ChatResponse{
		Content:          out.Message.Content,
		Model:            model,
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
		Duration:         time.Since(start),
	}, nil
}

// Ping lists local models and checks the configured one has been pulled.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	for _, m := range tags.Models {
		if modelMatches(m.Name, c.model) || modelMatches(m.Model, c.model) {
			return nil
		}
	}
	return fmt.Errorf("model %q is not available on %s (run `ollama pull %s`)", c.model, c.host, c.model)
}

func (c *OllamaClient) postJSON(ctx context.Context, path string, body []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
		if resp.StatusCode < http.StatusInternalServerError {
			return retry.Permanent(statusErr)
		}
		return statusErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// modelMatches treats "llama3.1" and "llama3.1:latest" as the same model.
func modelMatches(have, want string) bool {
	if have == "" {
		return false
	}
	if have == want {
		return true
	}
	if !strings.Contains(want, ":") {
		return have == want+":latest"
	}
	return false
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   any             `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}
