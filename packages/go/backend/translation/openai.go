package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures a chat-completions translator. BaseURL lets it talk
// to any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Temperature  float64
	Timeout      time.Duration
	MaxRetries   int
}

// OpenAITranslator translates through the chat completions API.
type OpenAITranslator struct {
	client openai.Client
	cfg    OpenAIConfig
}

// NewOpenAITranslator fails when no model is configured.
func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai translator: model is required")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	opts := []option.RequestOption{option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAITranslator{client: openai.NewClient(opts...), cfg: cfg}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, text string) (Translation, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(t.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(t.cfg.SystemPrompt),
			openai.UserMessage(text),
		},
	}
	if t.cfg.Temperature > 0 {
		params.Temperature = openai.Float(t.cfg.Temperature)
	}

	completion, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return Translation{}, ctx.Err()
		}
		return Translation{}, fmt.Errorf("%w: %v", ErrTranslationFailed, err)
	}
	if len(completion.Choices) == 0 {
		return Translation{}, fmt.Errorf("%w: empty completion", ErrTranslationFailed)
	}

	translated := strings.TrimSpace(completion.Choices[0].Message.Content)
	if translated == "" {
		return Translation{}, fmt.Errorf("%w: empty completion", ErrTranslationFailed)
	}
	return Translation{SourceText: text, TranslatedText: translated, Provider: "openai"}, nil
}

func (t *OpenAITranslator) Health() HealthStatus {
	return HealthStatus{Healthy: true, Message: "openai model " + t.cfg.Model}
}
