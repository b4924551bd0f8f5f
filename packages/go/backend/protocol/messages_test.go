package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestDecodeTranslateFile(t *testing.T) {
	t.Parallel()

	env, err := Decode([]byte(`{"type":"translate_file","document_id":"doc-1"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Type != TypeTranslateFile || env.DocumentID != "doc-1" {
		t.Fatalf("unexpected envelope: %#v", env)
	}

	env, err = Decode([]byte(`{"type":"translate_file","file_id":"legacy"}`))
	if err != nil {
		t.Fatalf("Decode with file_id: %v", err)
	}
	if env.DocumentID != "legacy" {
		t.Fatalf("expected file_id alias, got %q", env.DocumentID)
	}
}

func TestDecodeGenerateAudio(t *testing.T) {
	t.Parallel()

	env, err := Decode([]byte(`{"type":"generate_audio","text":" 如是我聞 ","paragraph_id":3}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Text != "如是我聞" {
		t.Fatalf("expected trimmed text, got %q", env.Text)
	}
	if env.ParagraphID == nil || *env.ParagraphID != 3 {
		t.Fatalf("expected paragraph id 3, got %v", env.ParagraphID)
	}

	env, err = Decode([]byte(`{"type":"generate_audio","text":"x","paragraph_id":null}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.ParagraphID != nil {
		t.Fatalf("expected nil paragraph id, got %v", *env.ParagraphID)
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":           `hello`,
		"array":              `[1,2]`,
		"broken":             `{"type":`,
		"missing type":       `{"text":"x"}`,
		"unknown type":       `{"type":"dance"}`,
		"file without id":    `{"type":"translate_file"}`,
		"blank text":         `{"type":"translate_text","text":"   "}`,
		"audio without text": `{"type":"generate_audio"}`,
		"string paragraph":   `{"type":"generate_audio","text":"x","paragraph_id":"a"}`,
		"negative paragraph": `{"type":"generate_audio","text":"x","paragraph_id":-1}`,
	}
	for name, input := range cases {
		_, err := Decode([]byte(input))
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		if !errors.Is(err, ErrProtocol) {
			t.Errorf("%s: expected ErrProtocol, got %v", name, err)
		}
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("%s: expected *DecodeError, got %T", name, err)
		}
	}
}

func TestTranslationResultProgress(t *testing.T) {
	t.Parallel()

	want := []float64{100.0 / 3, 200.0 / 3, 100}
	for i, expected := range want {
		got := NewTranslationResult(i, 3, "o", "t", false).Progress
		if math.Abs(got-expected) > 1e-9 {
			t.Fatalf("paragraph %d: expected progress %.4f, got %.4f", i, expected, got)
		}
	}
}

func TestEventJSONShapes(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal(NewAudioReady("a1", "/audio/a1", "wav", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(payload), `"paragraph_id":null`) {
		t.Fatalf("expected explicit null paragraph_id, got %s", payload)
	}

	payload, err = json.Marshal(NewTranslationResult(0, 1, "a", "b", false))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(payload), "failed") {
		t.Fatalf("successful result must not carry failed flag: %s", payload)
	}

	payload, err = json.Marshal(NewError("boom"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"type":"error","message":"boom"}` {
		t.Fatalf("unexpected error event: %s", payload)
	}
}
