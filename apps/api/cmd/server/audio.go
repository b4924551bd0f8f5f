package main

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"docrelay/packages/go/backend/tts"
)

// AudioOpener resolves stored clips by id.
type AudioOpener interface {
	Open(id string) (tts.Clip, error)
}

func audioHandler(store AudioOpener, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		clip, err := store.Open(id)
		if err != nil {
			if errors.Is(err, tts.ErrAudioNotFound) {
				writeError(w, logger, http.StatusNotFound, fmt.Errorf("audio %s not found", id))
				return
			}
			writeError(w, logger, http.StatusInternalServerError, fmt.Errorf("failed to open audio: %w", err))
			return
		}
		defer func() {
			if err := clip.File.Close(); err != nil {
				logger.Debugw("failed to close audio file", "error", err, "audioID", id)
			}
		}()

		w.Header().Set("Content-Type", tts.ContentType(clip.Format))
		w.Header().Set("Cache-Control", "private, max-age=3600")
		http.ServeContent(w, r, clip.ID+"."+clip.Format, clip.ModTime, clip.File)
	}
}
