// Package pipeline runs the per-session jobs: progressive document
// translation, single-text translation and audio generation. Jobs report
// every outcome as an outbound event and never return errors to the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"docrelay/packages/go/backend/cache"
	"docrelay/packages/go/backend/protocol"
	"docrelay/packages/go/backend/telemetry"
	"docrelay/packages/go/backend/textproc"
	"docrelay/packages/go/backend/translation"
	"docrelay/packages/go/backend/tts"
)

// DefaultPacingDelay is the pause after each translated paragraph.
const DefaultPacingDelay = 100 * time.Millisecond

// FailureMarker prefixes the original text of a paragraph whose translation failed.
const FailureMarker = "[translation failed] "

// DefaultAudioURLPrefix is joined with the audio id to form audio_url.
const DefaultAudioURLPrefix = "/audio/"

// Emitter delivers events to a session. Send never fails from the caller's
// point of view.
type Emitter interface {
	Send(ctx context.Context, sessionID string, event any)
	Connected(sessionID string) bool
}

// DocumentSource resolves uploaded documents.
type DocumentSource interface {
	Get(ctx context.Context, id string) (cache.Document, error)
}

// AudioStore persists generated clips and returns their id.
type AudioStore interface {
	Save(ctx context.Context, audio tts.Audio) (string, error)
}

// Config tunes job behaviour.
type Config struct {
	// PacingDelay is slept after each paragraph. Zero disables pacing.
	PacingDelay time.Duration
	// MaxParagraphRunes splits long paragraphs when documents carry no
	// pre-split paragraphs. Zero disables splitting.
	MaxParagraphRunes int
	// AudioURLPrefix is prepended to audio ids in audio_ready events.
	AudioURLPrefix string
}

// Deps are the collaborators a Jobs instance drives.
type Deps struct {
	Emitter     Emitter
	Documents   DocumentSource
	Translator  translation.Translator
	Synthesizer tts.Synthesizer
	Audio       AudioStore
	Logger      *zap.SugaredLogger
	Metrics     *telemetry.Metrics
}

// Jobs is safe for concurrent use by many sessions.
type Jobs struct {
	deps      Deps
	maxRunes  int
	urlPrefix string
	pacing    atomic.Int64
}

// New builds a job runner. A nil logger is replaced by a no-op one.
func New(deps Deps, cfg Config) *Jobs {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if cfg.AudioURLPrefix == "" {
		cfg.AudioURLPrefix = DefaultAudioURLPrefix
	}
	j := &Jobs{deps: deps, maxRunes: cfg.MaxParagraphRunes, urlPrefix: cfg.AudioURLPrefix}
	j.SetPacing(cfg.PacingDelay)
	return j
}

// SetPacing changes the paragraph pacing delay for jobs started or running
// after the call. Negative values disable pacing.
func (j *Jobs) SetPacing(d time.Duration) {
	if d < 0 {
		d = 0
	}
	j.pacing.Store(int64(d))
}

// Pacing returns the current delay between paragraphs.
func (j *Jobs) Pacing() time.Duration {
	return time.Duration(j.pacing.Load())
}

// TranslateDocument streams translation_start, one translation_result per
// non-empty paragraph and translation_complete. A missing document yields a
// single error event. The job stops silently once the session disconnects.
func (j *Jobs) TranslateDocument(ctx context.Context, sessionID, documentID string) {
	ctx, finish := j.deps.Metrics.StartJob(ctx, "translate_document",
		attribute.String("sessionID", sessionID),
		attribute.String("documentID", documentID),
	)
	var jobErr error
	defer func() { finish(jobErr) }()
	defer j.recoverJob(ctx, sessionID, "translate_document", &jobErr)

	jobErr = j.translateDocument(ctx, sessionID, documentID)
}

func (j *Jobs) translateDocument(ctx context.Context, sessionID, documentID string) error {
	logger := j.deps.Logger.With("sessionID", sessionID, "documentID", documentID)

	doc, err := j.deps.Documents.Get(ctx, documentID)
	if errors.Is(err, cache.ErrNotFound) {
		logger.Infow("document not found")
		j.deps.Emitter.Send(ctx, sessionID, protocol.NewError(fmt.Sprintf("document not found or expired (id: %s)", documentID)))
		return err
	}
	if err != nil {
		logger.Errorw("failed to load document", "error", err)
		j.deps.Emitter.Send(ctx, sessionID, protocol.NewError("failed to load document: "+err.Error()))
		return err
	}

	paragraphs := j.paragraphs(doc)
	total := len(paragraphs)
	logger.Infow("translation started", "filename", doc.Filename, "paragraphs", total)
	j.deps.Emitter.Send(ctx, sessionID, protocol.NewTranslationStart(doc.ID, doc.Filename, total))

	failures := 0
	for i, paragraph := range paragraphs {
		if ctx.Err() != nil || !j.deps.Emitter.Connected(sessionID) {
			logger.Infow("session gone, stopping translation", "paragraph", i)
			return nil
		}

		translated, failed := j.translateParagraph(ctx, logger, i, paragraph)
		if ctx.Err() != nil {
			return nil
		}
		if failed {
			failures++
		}
		j.deps.Metrics.RecordParagraph(ctx, failed)
		j.deps.Emitter.Send(ctx, sessionID, protocol.NewTranslationResult(i, total, paragraph, translated, failed))

		if err := j.pace(ctx); err != nil {
			return nil
		}
	}

	if !j.deps.Emitter.Connected(sessionID) {
		return nil
	}
	j.deps.Emitter.Send(ctx, sessionID, protocol.NewTranslationComplete(doc.ID, total))
	logger.Infow("translation complete", "paragraphs", total, "failures", failures)
	return nil
}

func (j *Jobs) translateParagraph(ctx context.Context, logger *zap.SugaredLogger, index int, paragraph string) (string, bool) {
	result, err := j.deps.Translator.Translate(ctx, paragraph)
	if err != nil {
		logger.Warnw("paragraph translation failed", "paragraph", index, "error", err)
		return FailureMarker + paragraph, true
	}
	return result.TranslatedText, false
}

func (j *Jobs) paragraphs(doc cache.Document) []string {
	source := doc.Paragraphs
	if source == nil {
		source = textproc.Split(doc.Text, j.maxRunes)
	}
	out := make([]string, 0, len(source))
	for _, p := range source {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (j *Jobs) pace(ctx context.Context) error {
	delay := j.Pacing()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TranslateText answers with text_translation_result or error.
func (j *Jobs) TranslateText(ctx context.Context, sessionID, text string) {
	ctx, finish := j.deps.Metrics.StartJob(ctx, "translate_text", attribute.String("sessionID", sessionID))
	var jobErr error
	defer func() { finish(jobErr) }()
	defer j.recoverJob(ctx, sessionID, "translate_text", &jobErr)

	result, err := j.deps.Translator.Translate(ctx, text)
	if err != nil {
		jobErr = err
		j.deps.Logger.Warnw("text translation failed", "sessionID", sessionID, "error", err)
		j.deps.Emitter.Send(ctx, sessionID, protocol.NewError("translation failed: "+err.Error()))
		return
	}
	j.deps.Emitter.Send(ctx, sessionID, protocol.NewTextTranslationResult(text, result.TranslatedText))
}

// GenerateAudio synthesizes text, stores the clip and answers with
// audio_ready carrying a retrievable URL, or error.
func (j *Jobs) GenerateAudio(ctx context.Context, sessionID, text string, paragraphID *int) {
	ctx, finish := j.deps.Metrics.StartJob(ctx, "generate_audio", attribute.String("sessionID", sessionID))
	var jobErr error
	defer func() { finish(jobErr) }()
	defer j.recoverJob(ctx, sessionID, "generate_audio", &jobErr)

	logger := j.deps.Logger.With("sessionID", sessionID)

	audio, err := j.deps.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		jobErr = err
		logger.Warnw("speech synthesis failed", "error", err)
		j.deps.Emitter.Send(ctx, sessionID, protocol.NewError("audio generation failed: "+err.Error()))
		return
	}

	id, err := j.deps.Audio.Save(ctx, audio)
	if err != nil {
		jobErr = err
		logger.Errorw("failed to store audio", "error", err)
		j.deps.Emitter.Send(ctx, sessionID, protocol.NewError("audio generation failed: "+err.Error()))
		return
	}

	logger.Infow("audio ready", "audioID", id, "format", audio.Format, "bytes", len(audio.Data))
	j.deps.Emitter.Send(ctx, sessionID, protocol.NewAudioReady(id, j.urlPrefix+id, audio.Format, paragraphID))
}

// recoverJob turns a panic inside a job into one error event.
func (j *Jobs) recoverJob(ctx context.Context, sessionID, job string, jobErr *error) {
	r := recover()
	if r == nil {
		return
	}
	*jobErr = fmt.Errorf("%s panicked: %v", job, r)
	j.deps.Logger.Errorw("job panicked", "sessionID", sessionID, "job", job, "panic", r)
	j.deps.Emitter.Send(ctx, sessionID, protocol.NewError("internal error during "+job))
}
