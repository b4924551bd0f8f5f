// Package session runs the per-connection dispatch loop.
package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"docrelay/packages/go/backend/protocol"
	"docrelay/packages/go/backend/registry"
	"docrelay/packages/go/backend/telemetry"
)

// Conn is a client connection the dispatcher can read from and the registry
// can write to.
type Conn interface {
	registry.Transport
	// ReadMessage blocks until the next inbound message or a transport error.
	ReadMessage() ([]byte, error)
}

// Handler executes decoded requests. Calls for one session are made
// sequentially, in arrival order.
type Handler interface {
	TranslateDocument(ctx context.Context, sessionID, documentID string)
	TranslateText(ctx context.Context, sessionID, text string)
	GenerateAudio(ctx context.Context, sessionID, text string, paragraphID *int)
}

// Dispatcher serves sessions. One Dispatcher is shared by all connections.
type Dispatcher struct {
	registry *registry.Registry
	handler  Handler
	logger   *zap.SugaredLogger
	metrics  *telemetry.Metrics
}

// NewDispatcher routes inbound messages of sessions registered in reg to handler.
func NewDispatcher(reg *registry.Registry, handler Handler, logger *zap.SugaredLogger, metrics *telemetry.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{registry: reg, handler: handler, logger: logger, metrics: metrics}
}

// Serve registers conn under sessionID and processes its messages until the
// transport fails or ctx is cancelled. Malformed messages are answered with an
// error event and do not end the session. Serve closes conn before returning.
func (d *Dispatcher) Serve(ctx context.Context, sessionID string, conn Conn) {
	logger := d.logger.With("sessionID", sessionID)

	d.registry.Register(sessionID, conn)
	d.metrics.SessionOpened(ctx)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	defer func() {
		stop()
		d.registry.Release(sessionID, conn)
		_ = conn.Close()
		d.metrics.SessionClosed(context.WithoutCancel(ctx))
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				logger.Infow("session closed on shutdown")
			} else {
				logger.Infow("client disconnected", "reason", err)
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				logger.Debugw("rejecting inbound message", "reason", decodeErr.Reason)
			}
			d.registry.Send(ctx, sessionID, protocol.NewError(err.Error()))
			continue
		}

		d.dispatch(ctx, sessionID, env)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, sessionID string, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeTranslateFile:
		d.handler.TranslateDocument(ctx, sessionID, env.DocumentID)
	case protocol.TypeTranslateText:
		d.handler.TranslateText(ctx, sessionID, env.Text)
	case protocol.TypeGenerateAudio:
		d.handler.GenerateAudio(ctx, sessionID, env.Text, env.ParagraphID)
	default:
		d.registry.Send(ctx, sessionID, protocol.NewError("unsupported message type "+env.Type))
	}
}
