package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 2048

// AnthropicConfig configures a Messages API translator. MaxTokens defaults to
// 2048 when zero.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int64
	Timeout      time.Duration
	MaxRetries   int
}

// AnthropicTranslator translates through the Messages API.
type AnthropicTranslator struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

// NewAnthropicTranslator fails when no model is configured.
func NewAnthropicTranslator(cfg AnthropicConfig) (*AnthropicTranslator, error) {
	if cfg.Model == "" {
		return nil, errors.New("anthropic translator: model is required")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultAnthropicMaxTokens
	}

	opts := []anthropicoption.RequestOption{anthropicoption.WithMaxRetries(cfg.MaxRetries)}
	if cfg.APIKey != "" {
		opts = append(opts, anthropicoption.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, anthropicoption.WithRequestTimeout(cfg.Timeout))
	}

	return &AnthropicTranslator{client: anthropic.NewClient(opts...), cfg: cfg}, nil
}

func (t *AnthropicTranslator) Translate(ctx context.Context, text string) (Translation, error) {
	msg, err := t.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(t.cfg.Model),
		MaxTokens: t.cfg.MaxTokens,
		System:    []anthropic.TextBlockParam{{Text: t.cfg.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return Translation{}, ctx.Err()
		}
		return Translation{}, fmt.Errorf("%w: %v", ErrTranslationFailed, err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	translated := strings.TrimSpace(out.String())
	if translated == "" {
		return Translation{}, fmt.Errorf("%w: empty response", ErrTranslationFailed)
	}
	return Translation{SourceText: text, TranslatedText: translated, Provider: "anthropic"}, nil
}

func (t *AnthropicTranslator) Health() HealthStatus {
	return HealthStatus{Healthy: true, Message: "anthropic model " + t.cfg.Model}
}
