package tts

import (
	"context"
	"errors"
)

// ErrSynthesisFailed wraps every provider failure.
var ErrSynthesisFailed = errors.New("speech synthesis failed")

// Audio formats produced by the synthesizers.
const (
	FormatWAV = "wav"
	FormatMP3 = "mp3"
)

// Audio is one synthesized clip.
type Audio struct {
	// Data holds the encoded audio bytes.
	Data []byte `json:"-"`
	// Format is the container format, e.g. "wav" or "mp3".
	Format string `json:"format"`
}

// HealthStatus represents the health of a component.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Synthesizer converts text to speech audio.
type Synthesizer interface {
	// Synthesize generates audio for text. Errors wrap ErrSynthesisFailed or
	// a context error.
	Synthesize(ctx context.Context, text string) (Audio, error)

	// Health returns the current health status of the synthesizer.
	Health() HealthStatus
}

// ContentType maps an audio format to its MIME type.
func ContentType(format string) string {
	switch format {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
