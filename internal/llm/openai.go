package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIClient calls an OpenAI-compatible Chat Completions API. Ollama serves
// one under /v1, so by default it points at the local Ollama host.
type OpenAIClient struct {
	model   openai.ChatModel
	timeout time.Duration
	client  *openai.Client
}

// OpenAIConfig configures NewOpenAIClient.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // e.g. http://localhost:11434/v1/
	Model   string
	Timeout time.Duration
}

// NewOpenAIClient builds a client. An API key is only required against api.openai.com.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model required")
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("api key required when no base url is set")
		}
		// Ollama ignores the key but the SDK insists on one.
		apiKey = "ollama"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(ensureTrailingSlash(cfg.BaseURL)))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultChatTimeout
	}
	cli := openai.NewClient(opts...)
	return &OpenAIClient{
		model:   openai.ChatModel(cfg.Model),
		timeout: timeout,
		client:  &cli,
	}, nil
}

// OllamaCompatBaseURL returns the OpenAI-compatible endpoint of an Ollama host.
func OllamaCompatBaseURL(host string) string {
	if host == "" {
		host = defaultOllamaHost
	}
	return strings.TrimRight(host, "/") + "/v1/"
}

func (c *OpenAIClient) Model() string { return string(c.model) }

func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if c == nil || c.client == nil {
		return ChatResponse{}, fmt.Errorf("nil openai client")
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    buildMessages(req.SystemPrompt, req.UserPrompt),
		Temperature: openai.Float(temperatureOrDefault(req.Temperature)),
	}
	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "grade_result",
					Schema: req.Schema,
					Strict: openai.Bool(false),
				},
			},
		}
	} else {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(reqCtx, params)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return ChatResponse{}, ErrEmptyResponse
	}
	model := resp.Model
	if model == "" {
		model = string(c.model)
	}
	return ChatResponse{
		Content:          resp.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		Duration:         time.Since(start),
	}, nil
}

// Ping retrieves the configured model from the models endpoint.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.Get(ctx, string(c.model)); err != nil {
		return fmt.Errorf("model %q unavailable: %w", c.model, err)
	}
	return nil
}

func buildMessages(system, user string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(user),
				},
			},
		},
	}
}

func ensureTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
