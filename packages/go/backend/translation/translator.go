package translation

import (
	"context"
	"errors"
)

// ErrTranslationFailed wraps every provider failure so callers can recover
// per unit of work.
var ErrTranslationFailed = errors.New("translation failed")

// DefaultSystemPrompt asks for colloquial Cantonese from classical Chinese.
const DefaultSystemPrompt = "你是一位精通佛經與粵語的翻譯。請將使用者提供的古文翻譯成地道、自然的粵語口語，保留原意，只輸出譯文，不要加入解釋。"

// Translation represents a translated segment.
type Translation struct {
	// SourceText is the original text that was translated.
	SourceText string `json:"sourceText"`
	// TranslatedText is the translated result.
	TranslatedText string `json:"translatedText"`
	// Provider names the backend that produced the result.
	Provider string `json:"provider"`
}

// HealthStatus represents the health of a component.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Translator converts one text unit. Implementations must be safe for
// concurrent use across sessions.
type Translator interface {
	// Translate converts text. Errors wrap ErrTranslationFailed or a context error.
	Translate(ctx context.Context, text string) (Translation, error)

	// Health returns the current health status of the translator.
	Health() HealthStatus
}
