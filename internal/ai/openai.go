package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	openAIMaxRetries  = 3
	openAIBaseBackoff = 2 * time.Second
	openAIMaxBackoff  = 32 * time.Second
)

var ErrAPIKeyNotSet = errors.New("openai: api key is required")

// OpenAIProvider talks to the OpenAI chat completions API (or any compatible endpoint).
type OpenAIProvider struct {
	client      openai.Client
	model       string
	baseBackoff time.Duration
}

func NewOpenAIProvider(apiKey, model, baseURL string) (*OpenAIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0), // rate limits are retried below with our own backoff
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		model:       model,
		baseBackoff: openAIBaseBackoff,
	}, nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	var lastErr error
	for attempt := 0; attempt <= openAIMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * p.baseBackoff
			if backoff > openAIMaxBackoff {
				backoff = openAIMaxBackoff
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		completion, err := p.client.Chat.Completions.New(ctx, params)
		if err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) {
				lastErr = &StatusError{Provider: "openai", StatusCode: apiErr.StatusCode, Message: apiErr.Message}
				if apiErr.StatusCode == 429 {
					continue
				}
				return "", lastErr
			}
			return "", fmt.Errorf("openai: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", errors.New("openai: no completion choices returned")
		}
		return completion.Choices[0].Message.Content, nil
	}
	return "", lastErr
}
