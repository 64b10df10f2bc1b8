// Package openai provides a ready-made remote backend over any
// OpenAI-compatible chat completion endpoint.
package openai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/centsible/infera/internal/backend"
	"github.com/centsible/infera/internal/task"
)

const backendName = "openai-chat"

// Config configures the remote chat backend.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
}

// Backend invokes a chat completion per task, treating the task payload as
// the user message. It implements backend.Backend[string].
type Backend struct {
	client *openai.Client
	config Config
}

// New creates the remote backend.
func New(cfg Config) *Backend {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Backend{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

func (b *Backend) Kind() backend.Kind { return backend.KindRemote }
func (b *Backend) Name() string       { return backendName }

func (b *Backend) Invoke(ctx context.Context, t *task.Descriptor) (*backend.Result[string], error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if b.config.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: b.config.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: string(t.Payload),
	})

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    b.config.Model,
		Messages: messages,
	})
	if err != nil {
		return nil, backend.NewError(classify(err), backendName, err)
	}
	if len(resp.Choices) == 0 {
		return nil, backend.NewError(backend.ErrorProcessing, backendName,
			errors.New("empty completion response"))
	}

	choice := resp.Choices[0]
	return &backend.Result[string]{
		Data:           choice.Message.Content,
		Confidence:     confidenceFor(choice.FinishReason),
		ProcessingTime: time.Since(start),
		Cost:           costFor(resp.Usage),
	}, nil
}

// confidenceFor maps the finish reason onto the router's confidence scale.
// The API reports no real confidence, so a clean stop is trusted and a
// truncated or filtered answer is not.
func confidenceFor(reason openai.FinishReason) float64 {
	switch reason {
	case openai.FinishReasonStop:
		return 0.95
	case openai.FinishReasonLength:
		return 0.6
	case openai.FinishReasonContentFilter:
		return 0.0
	default:
		return 0.5
	}
}

// costFor is a rough token-based cost signal for telemetry, not billing.
func costFor(usage openai.Usage) float64 {
	return float64(usage.TotalTokens) / 1000.0
}

func classify(err error) backend.ErrorKind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return backend.ErrorPermissionDenied
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return backend.ErrorUnavailable
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return backend.ErrorTimeout
		default:
			return backend.ErrorProcessing
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return backend.ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return backend.ErrorTimeout
		}
		return backend.ErrorNetwork
	}
	return backend.ErrorNetwork
}
