// Package registry maps live session ids to their transports and delivers
// events to them on a best-effort basis.
package registry

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"docrelay/packages/go/backend/telemetry"
)

// Transport is one open connection to a client. WriteText must be safe for
// concurrent use.
type Transport interface {
	WriteText(ctx context.Context, payload []byte) error
	Close() error
}

// Registry is safe for concurrent use. Writes happen outside the map lock so
// a slow client never blocks other sessions.
type Registry struct {
	logger  *zap.SugaredLogger
	metrics *telemetry.Metrics

	mu       sync.RWMutex
	sessions map[string]Transport
}

// New returns an empty registry. metrics may be nil.
func New(logger *zap.SugaredLogger, metrics *telemetry.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]Transport),
	}
}

// Register maps id to transport, replacing any previous transport for id.
// The replaced transport is not closed.
func (r *Registry) Register(id string, transport Transport) {
	r.mu.Lock()
	_, replaced := r.sessions[id]
	r.sessions[id] = transport
	count := len(r.sessions)
	r.mu.Unlock()

	if replaced {
		r.logger.Warnw("session id reused, previous connection detached", "sessionID", id)
	}
	r.logger.Infow("client connected", "sessionID", id, "connections", count)
}

// Unregister removes id. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.logger.Infow("client disconnected", "sessionID", id, "connections", count)
	}
}

// Release removes id only while it still maps to transport, so a connection
// that was replaced cannot evict its successor.
func (r *Registry) Release(id string, transport Transport) bool {
	r.mu.Lock()
	current, ok := r.sessions[id]
	if !ok || current != transport {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	count := len(r.sessions)
	r.mu.Unlock()

	r.logger.Infow("client disconnected", "sessionID", id, "connections", count)
	return true
}

// Connected reports whether id currently has a transport.
func (r *Registry) Connected(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Send encodes event as JSON and writes it to id's transport. Unknown ids are
// a no-op. A failed write releases the session; the error is never returned.
func (r *Registry) Send(ctx context.Context, id string, event any) {
	r.mu.RLock()
	transport, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debugw("dropping event for unknown session", "sessionID", id)
		r.metrics.RecordDropped(ctx, "unknown_session")
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Errorw("failed to encode event", "error", err, "sessionID", id)
		r.metrics.RecordDropped(ctx, "encode")
		return
	}

	if err := transport.WriteText(ctx, payload); err != nil {
		r.logger.Warnw("failed to deliver event, releasing session", "error", err, "sessionID", id)
		r.metrics.RecordDropped(ctx, "transport")
		r.Release(id, transport)
	}
}
