package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"docrelay/packages/go/backend/di"
	"docrelay/packages/go/backend/translation"
	"docrelay/packages/go/backend/tts"
)

type healthResponse struct {
	Status      string                   `json:"status"`
	Timestamp   time.Time                `json:"timestamp"`
	Connections int                      `json:"connections"`
	CacheSize   int                      `json:"cache_size"`
	Translator  translation.HealthStatus `json:"translator"`
	Synthesizer tts.HealthStatus         `json:"synthesizer"`
}

// pinger is implemented by stores backed by a remote server.
type pinger interface {
	Ping(ctx context.Context) error
}

func healthHandler(c *di.Container, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Connections: c.Registry.Len(),
			Translator:  c.Translator.Health(),
			Synthesizer: c.Synthesizer.Health(),
		}

		size, err := c.Documents.Len(r.Context())
		if err != nil {
			logger.Warnw("failed to read cache size", "error", err)
			resp.Status = "degraded"
		}
		resp.CacheSize = size
		if p, ok := c.Documents.(pinger); ok {
			if err := p.Ping(r.Context()); err != nil {
				logger.Warnw("document store unreachable", "error", err)
				resp.Status = "degraded"
			}
		}
		if !resp.Translator.Healthy || !resp.Synthesizer.Healthy {
			resp.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Errorw("failed to write health response", "error", err)
		}
	}
}
