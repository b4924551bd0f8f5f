package main

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type wireEvent struct {
	Type            string  `json:"type"`
	DocumentID      string  `json:"document_id"`
	TotalParagraphs int     `json:"total_paragraphs"`
	ParagraphID     *int    `json:"paragraph_id"`
	Original        string  `json:"original"`
	Translated      string  `json:"translated"`
	Progress        float64 `json:"progress"`
	AudioID         string  `json:"audio_id"`
	AudioURL        string  `json:"audio_url"`
	Format          string  `json:"format"`
	Message         string  `json:"message"`
}

func dialSession(t *testing.T, serverURL, sessionID string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws/" + sessionID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline failed: %v", err)
	}
	var event wireEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	return event
}

func uploadText(t *testing.T, serverURL, filename, text string) uploadResponse {
	t.Helper()

	body, contentType := multipartBody(t, "file", filename, []byte(text))
	resp, err := http.Post(serverURL+"/upload", contentType, body)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload returned %d: %s", resp.StatusCode, raw)
	}
	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode upload response: %v", err)
	}
	return out
}

func TestUploadThenStreamTranslation(t *testing.T) {
	srv, _ := newTestServer(t)

	uploaded := uploadText(t, srv.URL, "sutra.txt", "如是我聞。\n\n一時佛在舍衛國。\n與大比丘眾千二百五十人俱。\n")
	if uploaded.Paragraphs != 3 {
		t.Fatalf("expected 3 paragraphs, got %d", uploaded.Paragraphs)
	}

	conn := dialSession(t, srv.URL, "session-e2e")
	if err := conn.WriteJSON(map[string]string{"type": "translate_file", "document_id": uploaded.DocumentID}); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}

	start := readEvent(t, conn)
	if start.Type != "translation_start" || start.TotalParagraphs != 3 {
		t.Fatalf("unexpected start event: %+v", start)
	}

	wantProgress := []float64{100.0 / 3, 200.0 / 3, 100}
	for i := 0; i < 3; i++ {
		result := readEvent(t, conn)
		if result.Type != "translation_result" {
			t.Fatalf("expected translation_result, got %+v", result)
		}
		if result.ParagraphID == nil || *result.ParagraphID != i {
			t.Fatalf("expected paragraph_id %d, got %v", i, result.ParagraphID)
		}
		if math.Abs(result.Progress-wantProgress[i]) > 0.01 {
			t.Fatalf("paragraph %d: expected progress %.2f, got %.2f", i, wantProgress[i], result.Progress)
		}
		if result.Translated != "[粵] "+result.Original {
			t.Fatalf("unexpected translation %q for %q", result.Translated, result.Original)
		}
	}

	complete := readEvent(t, conn)
	if complete.Type != "translation_complete" || complete.DocumentID != uploaded.DocumentID {
		t.Fatalf("unexpected complete event: %+v", complete)
	}
}

func TestSessionReportsUnknownDocumentAndBadMessages(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialSession(t, srv.URL, "session-errors")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{broken")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if event := readEvent(t, conn); event.Type != "error" {
		t.Fatalf("expected error event, got %+v", event)
	}

	if err := conn.WriteJSON(map[string]string{"type": "translate_file", "file_id": "nope"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	event := readEvent(t, conn)
	if event.Type != "error" || !strings.Contains(event.Message, "nope") {
		t.Fatalf("expected not-found error, got %+v", event)
	}

	// The session keeps serving after errors.
	if err := conn.WriteJSON(map[string]string{"type": "translate_text", "text": "你好"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	event = readEvent(t, conn)
	if event.Type != "text_translation_result" || event.Translated != "[粵] 你好" {
		t.Fatalf("unexpected text result: %+v", event)
	}
}

func TestGenerateAudioThenFetch(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dialSession(t, srv.URL, "session-audio")

	if err := conn.WriteJSON(map[string]any{"type": "generate_audio", "text": "我係咁聽返嚟嘅", "paragraph_id": 1}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	event := readEvent(t, conn)
	if event.Type != "audio_ready" {
		t.Fatalf("expected audio_ready, got %+v", event)
	}
	if event.ParagraphID == nil || *event.ParagraphID != 1 {
		t.Fatalf("expected paragraph_id 1, got %v", event.ParagraphID)
	}
	if event.AudioURL != "/audio/"+event.AudioID || event.Format != "wav" {
		t.Fatalf("unexpected audio event: %+v", event)
	}

	resp, err := http.Get(srv.URL + event.AudioURL)
	if err != nil {
		t.Fatalf("GET audio failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("unexpected content type %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	if len(data) < 44 || string(data[:4]) != "RIFF" {
		t.Fatalf("expected a WAV payload, got %d bytes", len(data))
	}
}

func TestAudioHandlerUnknownID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/audio/0b0c8e8e-4f1a-4c55-9a3e-2f1d8b0c7a11")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSessionRejectsInvalidID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws/bad%20id")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSessionDisconnectReleasesRegistration(t *testing.T) {
	srv, c := newTestServer(t)
	conn := dialSession(t, srv.URL, "session-bye")

	deadline := time.Now().Add(2 * time.Second)
	for !c.Registry.Connected("session-bye") {
		if time.Now().After(deadline) {
			t.Fatal("session never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for c.Registry.Connected("session-bye") {
		if time.Now().After(deadline) {
			t.Fatal("session still registered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
