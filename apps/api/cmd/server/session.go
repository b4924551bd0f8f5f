package main

import (
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"docrelay/packages/go/backend/registry"
	"docrelay/packages/go/backend/session"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return slices.ContainsFunc(allowedOrigins, func(allowed string) bool {
				return strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host)
			})
		},
	}
}

// sessionHandler upgrades GET /ws/{id} and hands the connection to the
// dispatcher for the rest of its life.
func sessionHandler(dispatcher *session.Dispatcher, allowedOrigins []string, logger *zap.SugaredLogger) http.HandlerFunc {
	upgrader := newUpgrader(allowedOrigins)

	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !sessionIDPattern.MatchString(sessionID) {
			writeError(w, logger, http.StatusBadRequest, errors.New("invalid session id"))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written an HTTP error response.
			logger.Warnw("websocket upgrade failed", "error", err, "sessionID", sessionID)
			return
		}

		dispatcher.Serve(r.Context(), sessionID, registry.NewWebSocketConn(conn))
	}
}
