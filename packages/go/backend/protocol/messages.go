// Package protocol defines the JSON messages exchanged over a session.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound message types.
const (
	TypeTranslateFile = "translate_file"
	TypeTranslateText = "translate_text"
	TypeGenerateAudio = "generate_audio"
)

// Outbound event types.
const (
	TypeTranslationStart      = "translation_start"
	TypeTranslationResult     = "translation_result"
	TypeTranslationComplete   = "translation_complete"
	TypeTextTranslationResult = "text_translation_result"
	TypeAudioReady            = "audio_ready"
	TypeError                 = "error"
)

// ErrProtocol is wrapped by every DecodeError.
var ErrProtocol = errors.New("protocol error")

// DecodeError describes an inbound message that could not be dispatched.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "invalid message: " + e.Reason }

func (e *DecodeError) Unwrap() error { return ErrProtocol }

func decodeErrorf(format string, args ...any) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// Envelope is a decoded inbound message. Only the fields relevant to Type are set.
type Envelope struct {
	Type        string
	DocumentID  string
	Text        string
	ParagraphID *int
}

type rawEnvelope struct {
	Type        *string         `json:"type"`
	DocumentID  string          `json:"document_id"`
	FileID      string          `json:"file_id"`
	Text        *string         `json:"text"`
	ParagraphID json.RawMessage `json:"paragraph_id"`
}

// Decode parses one inbound JSON object. Every failure is a *DecodeError.
func Decode(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, decodeErrorf("expected a JSON object")
	}

	var raw rawEnvelope
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Envelope{}, decodeErrorf("malformed JSON: %v", err)
	}
	if raw.Type == nil || *raw.Type == "" {
		return Envelope{}, decodeErrorf("missing type")
	}

	env := Envelope{Type: *raw.Type}
	switch env.Type {
	case TypeTranslateFile:
		env.DocumentID = strings.TrimSpace(raw.DocumentID)
		if env.DocumentID == "" {
			env.DocumentID = strings.TrimSpace(raw.FileID)
		}
		if env.DocumentID == "" {
			return Envelope{}, decodeErrorf("%s requires document_id", env.Type)
		}
	case TypeTranslateText:
		if raw.Text == nil || strings.TrimSpace(*raw.Text) == "" {
			return Envelope{}, decodeErrorf("%s requires text", env.Type)
		}
		env.Text = strings.TrimSpace(*raw.Text)
	case TypeGenerateAudio:
		if raw.Text == nil || strings.TrimSpace(*raw.Text) == "" {
			return Envelope{}, decodeErrorf("%s requires text", env.Type)
		}
		env.Text = strings.TrimSpace(*raw.Text)
		id, err := decodeParagraphID(raw.ParagraphID)
		if err != nil {
			return Envelope{}, err
		}
		env.ParagraphID = id
	default:
		return Envelope{}, decodeErrorf("unknown message type %q", env.Type)
	}
	return env, nil
}

func decodeParagraphID(raw json.RawMessage) (*int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var id int
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, decodeErrorf("paragraph_id must be an integer")
	}
	if id < 0 {
		return nil, decodeErrorf("paragraph_id must not be negative")
	}
	return &id, nil
}

// TranslationStart opens a document stream.
type TranslationStart struct {
	Type            string `json:"type"`
	DocumentID      string `json:"document_id"`
	Filename        string `json:"filename"`
	TotalParagraphs int    `json:"total_paragraphs"`
}

// TranslationResult carries one paragraph. Failed results keep the same
// paragraph_id and progress as successes.
type TranslationResult struct {
	Type        string  `json:"type"`
	ParagraphID int     `json:"paragraph_id"`
	Original    string  `json:"original"`
	Translated  string  `json:"translated"`
	Progress    float64 `json:"progress"`
	Failed      bool    `json:"failed,omitempty"`
}

// TranslationComplete closes a document stream.
type TranslationComplete struct {
	Type            string `json:"type"`
	DocumentID      string `json:"document_id"`
	TotalParagraphs int    `json:"total_paragraphs"`
}

// TextTranslationResult answers a translate_text request.
type TextTranslationResult struct {
	Type       string `json:"type"`
	Original   string `json:"original"`
	Translated string `json:"translated"`
}

// AudioReady points at generated audio. ParagraphID is null when the request
// carried none.
type AudioReady struct {
	Type        string `json:"type"`
	AudioID     string `json:"audio_id"`
	AudioURL    string `json:"audio_url"`
	Format      string `json:"format"`
	ParagraphID *int   `json:"paragraph_id"`
}

// Error reports a failed request without ending the session.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewTranslationStart announces total paragraphs for documentID.
func NewTranslationStart(documentID, filename string, total int) TranslationStart {
	return TranslationStart{Type: TypeTranslationStart, DocumentID: documentID, Filename: filename, TotalParagraphs: total}
}

// NewTranslationResult computes progress as (index+1)/total*100.
func NewTranslationResult(index, total int, original, translated string, failed bool) TranslationResult {
	progress := 100.0
	if total > 0 {
		progress = float64(index+1) / float64(total) * 100
	}
	return TranslationResult{
		Type:        TypeTranslationResult,
		ParagraphID: index,
		Original:    original,
		Translated:  translated,
		Progress:    progress,
		Failed:      failed,
	}
}

// NewTranslationComplete marks the end of documentID's stream.
func NewTranslationComplete(documentID string, total int) TranslationComplete {
	return TranslationComplete{Type: TypeTranslationComplete, DocumentID: documentID, TotalParagraphs: total}
}

// NewTextTranslationResult pairs free text with its translation.
func NewTextTranslationResult(original, translated string) TextTranslationResult {
	return TextTranslationResult{Type: TypeTextTranslationResult, Original: original, Translated: translated}
}

// NewAudioReady points the client at a stored clip. paragraphID may be nil.
func NewAudioReady(audioID, url, format string, paragraphID *int) AudioReady {
	return AudioReady{Type: TypeAudioReady, AudioID: audioID, AudioURL: url, Format: format, ParagraphID: paragraphID}
}

// NewError builds an error event carrying message.
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}
