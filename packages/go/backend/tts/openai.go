package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultSpeechModel = "tts-1"
	defaultSpeechVoice = "alloy"
)

// OpenAIConfig configures the speech endpoint of an OpenAI-compatible API.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Voice      string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAISynthesizer produces MP3 clips through the audio speech API.
type OpenAISynthesizer struct {
	client openai.Client
	cfg    OpenAIConfig
}

func NewOpenAISynthesizer(cfg OpenAIConfig) *OpenAISynthesizer {
	if cfg.Model == "" {
		cfg.Model = defaultSpeechModel
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultSpeechVoice
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

	return &OpenAISynthesizer{client: openai.NewClient(opts...), cfg: cfg}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (Audio, error) {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(s.cfg.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Audio{}, ctx.Err()
		}
		return Audio{}, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: read body: %v", ErrSynthesisFailed, err)
	}
	if len(data) == 0 {
		return Audio{}, fmt.Errorf("%w: %w", ErrSynthesisFailed, errors.New("empty audio"))
	}
	return Audio{Data: data, Format: FormatMP3}, nil
}

func (s *OpenAISynthesizer) Health() HealthStatus {
	return HealthStatus{Healthy: true, Message: "openai speech " + s.cfg.Model + "/" + s.cfg.Voice}
}
