package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// StubSynthesizerConfig configures the stub synthesizer behavior.
type StubSynthesizerConfig struct {
	// ProcessingDelay simulates TTS processing time.
	ProcessingDelay time.Duration
	// SampleRate for generated audio.
	SampleRate int
	// PerRune is the clip length generated for each character of input.
	PerRune time.Duration
}

// DefaultStubSynthesizerConfig returns sensible defaults for testing.
func DefaultStubSynthesizerConfig() *StubSynthesizerConfig {
	return &StubSynthesizerConfig{
		ProcessingDelay: 100 * time.Millisecond,
		SampleRate:      16000,
		PerRune:         150 * time.Millisecond,
	}
}

// StubSynthesizer returns silent WAV clips sized to the input.
type StubSynthesizer struct {
	config *StubSynthesizerConfig
}

// NewStubSynthesizer creates a new stub synthesizer with the given config.
func NewStubSynthesizer(config *StubSynthesizerConfig) *StubSynthesizer {
	if config == nil {
		config = DefaultStubSynthesizerConfig()
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.PerRune <= 0 {
		config.PerRune = 150 * time.Millisecond
	}
	return &StubSynthesizer{config: config}
}

// Synthesize generates audio from text.
func (s *StubSynthesizer) Synthesize(ctx context.Context, text string) (Audio, error) {
	if s.config.ProcessingDelay > 0 {
		select {
		case <-time.After(s.config.ProcessingDelay):
		case <-ctx.Done():
			return Audio{}, ctx.Err()
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Audio{}, fmt.Errorf("%w: empty text", ErrSynthesisFailed)
	}

	duration := time.Duration(utf8.RuneCountInString(text)) * s.config.PerRune
	samples := int(duration.Seconds() * float64(s.config.SampleRate))

	return Audio{Data: silentWAV(s.config.SampleRate, samples), Format: FormatWAV}, nil
}

// Health returns the health status of the stub synthesizer.
func (s *StubSynthesizer) Health() HealthStatus {
	return HealthStatus{Healthy: true, Message: "stub synthesizer ready"}
}

// silentWAV encodes mono 16-bit PCM silence with a canonical RIFF header.
func silentWAV(sampleRate, samples int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := samples * channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + dataSize)
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*bitsPerSample/8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}
