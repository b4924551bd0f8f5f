package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docrelay/packages/go/backend/cache"
	"docrelay/packages/go/backend/config"
	"docrelay/packages/go/backend/telemetry"
	"docrelay/packages/go/backend/textproc"
)

// multipartOverhead leaves room for boundaries and headers around the file part.
const multipartOverhead = 1 << 20

type uploadResponse struct {
	DocumentID string `json:"document_id"`
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	TextLength int    `json:"text_length"`
	Paragraphs int    `json:"paragraphs"`
	Status     string `json:"status"`
}

func uploadHandler(docs cache.Store, cfg config.UploadConfig, maxParagraphRunes int, metrics *telemetry.Metrics, logger *zap.SugaredLogger) http.HandlerFunc {
	allowed := cfg.AllowedExtensions
	if len(allowed) == 0 {
		allowed = textproc.DefaultExtensions
	}

	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxBytes+multipartOverhead)
		defer func() {
			if err := r.Body.Close(); err != nil {
				logger.Debugw("failed to close request body", "error", err)
			}
		}()

		file, header, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			switch {
			case errors.As(err, &maxErr):
				writeError(w, logger, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds %d bytes", cfg.MaxBytes))
			case errors.Is(err, http.ErrMissingFile):
				writeError(w, logger, http.StatusBadRequest, errors.New("no file uploaded"))
			default:
				writeError(w, logger, http.StatusBadRequest, fmt.Errorf("invalid upload: %w", err))
			}
			return
		}
		defer file.Close()

		filename := header.Filename
		if filename != "" {
			filename = filepath.Base(filename)
		}
		ext, err := textproc.ValidateFilename(filename, allowed)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, err)
			return
		}

		data, err := io.ReadAll(io.LimitReader(file, cfg.MaxBytes+1))
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err))
			return
		}
		if int64(len(data)) > cfg.MaxBytes {
			writeError(w, logger, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds %d bytes", cfg.MaxBytes))
			return
		}

		text, err := textproc.Extract(filename, data)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, textproc.ErrExtraction) {
				status = http.StatusUnprocessableEntity
			}
			writeError(w, logger, status, err)
			return
		}

		doc := cache.Document{
			ID:         uuid.NewString(),
			Filename:   filename,
			Text:       text,
			Paragraphs: textproc.Split(text, maxParagraphRunes),
			Size:       int64(len(data)),
			CreatedAt:  time.Now(),
		}

		ctx := r.Context()
		if err := docs.Put(ctx, doc); err != nil {
			writeError(w, logger, http.StatusInternalServerError, fmt.Errorf("failed to store document: %w", err))
			return
		}
		metrics.RecordUpload(ctx, ext)

		logger.Infow("document uploaded",
			"documentID", doc.ID,
			"filename", doc.Filename,
			"size", doc.Size,
			"paragraphs", len(doc.Paragraphs),
		)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(uploadResponse{
			DocumentID: doc.ID,
			FileID:     doc.ID,
			Filename:   doc.Filename,
			Size:       doc.Size,
			TextLength: len([]rune(text)),
			Paragraphs: len(doc.Paragraphs),
			Status:     "success",
		}); err != nil {
			logger.Errorw("failed to encode response", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, logger *zap.SugaredLogger, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload := map[string]string{"error": err.Error()}
	if encodeErr := json.NewEncoder(w).Encode(payload); encodeErr != nil {
		logger.Errorw("failed to encode error response", "error", encodeErr)
	}
}
