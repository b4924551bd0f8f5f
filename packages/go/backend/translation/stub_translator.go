package translation

import (
	"context"
	"fmt"
	"time"
)

// StubTranslatorConfig configures the stub translator behavior.
type StubTranslatorConfig struct {
	// ProcessingDelay simulates translation processing time.
	ProcessingDelay time.Duration
	// Dictionary maps source text to translated text.
	// If a text is missing, the result is Prefix + original text.
	Dictionary map[string]string
	// Prefix marks texts absent from Dictionary.
	Prefix string
	// FailOn lists source texts that return ErrTranslationFailed.
	FailOn map[string]bool
}

// DefaultStubTranslatorConfig returns sensible defaults for local runs.
func DefaultStubTranslatorConfig() *StubTranslatorConfig {
	return &StubTranslatorConfig{
		ProcessingDelay: 50 * time.Millisecond,
		Dictionary: map[string]string{
			"如是我聞。":       "我係咁聽返嚟嘅。",
			"一時佛在舍衛國。":    "有一次，佛陀喺舍衛國。",
			"觀自在菩薩。":      "觀自在菩薩。",
			"色不異空，空不異色。": "色同空冇分別，空同色都冇分別。",
		},
		Prefix: "[粵] ",
	}
}

// StubTranslator is a deterministic implementation for tests and offline runs.
type StubTranslator struct {
	config *StubTranslatorConfig
}

// NewStubTranslator creates a new stub translator with the given config.
func NewStubTranslator(config *StubTranslatorConfig) *StubTranslator {
	if config == nil {
		config = DefaultStubTranslatorConfig()
	}
	return &StubTranslator{config: config}
}

// Translate converts a single text segment.
func (s *StubTranslator) Translate(ctx context.Context, text string) (Translation, error) {
	if s.config.ProcessingDelay > 0 {
		select {
		case <-time.After(s.config.ProcessingDelay):
		case <-ctx.Done():
			return Translation{}, ctx.Err()
		}
	}

	if s.config.FailOn[text] {
		return Translation{}, fmt.Errorf("%w: stub rejected %q", ErrTranslationFailed, text)
	}

	translated, ok := s.config.Dictionary[text]
	if !ok {
		translated = s.config.Prefix + text
	}

	return Translation{
		SourceText:     text,
		TranslatedText: translated,
		Provider:       "stub",
	}, nil
}

// Health returns the health status of the stub translator.
func (s *StubTranslator) Health() HealthStatus {
	return HealthStatus{
		Healthy: true,
		Message: "stub translator ready",
	}
}
