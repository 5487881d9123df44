// Package api provides the HTTP server and the widget action handlers.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/flmngr/flmngr-server-go/internal/apperr"
	"github.com/flmngr/flmngr-server-go/internal/auth"
	"github.com/flmngr/flmngr-server-go/internal/filemanager"
	"github.com/flmngr/flmngr-server-go/internal/logging"
	"github.com/flmngr/flmngr-server-go/internal/metrics"
)

// internalErrorText is the body of a 500 answer. Details go to the log only.
const internalErrorText = "An error occurred on the server side. Please check server logs."

// Server is the HTTP server.
type Server struct {
	fm            *filemanager.Manager
	auth          *auth.Auth
	maxUploadSize int64
	actions       map[string]action
}

// NewServer creates a new server. A nil authHandler leaves the API open.
func NewServer(fm *filemanager.Manager, authHandler *auth.Auth, maxUploadSize int64) *Server {
	s := &Server{
		fm:            fm,
		auth:          authHandler,
		maxUploadSize: maxUploadSize,
	}
	s.actions = s.routes()
	return s
}

// Handler returns the HTTP handler with auth and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	var flmngr http.Handler = http.HandlerFunc(s.handleFlmngr)
	if s.auth != nil {
		flmngr = s.auth.Middleware(flmngr)
	}
	mux.Handle("/flmngr", flmngr)

	return metrics.Middleware(logging.Middleware(mux))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "root": s.fm.RootName()})
}

// ─── Actions ────────────────────────────────────────────────────────────────

func (s *Server) handleFlmngr(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p, err := parseParams(w, r, s.maxUploadSize)
	if err != nil {
		s.sendError(w, r, "", err)
		return
	}
	name := p.str("action", "")

	act, ok := s.actions[name]
	if !ok {
		s.sendError(w, r, name, apperr.Newf(apperr.ActionNotFound, "dispatch", "", "unknown action %q", name))
		return
	}
	if act.writes {
		if claims := auth.GetClaims(r.Context()); claims != nil && claims.ReadOnly {
			s.sendError(w, r, name, apperr.Newf(apperr.Unauthorized, name, "", "token is read-only"))
			return
		}
	}

	if act.blob != nil {
		blob, err := act.blob(r.Context(), p)
		if err != nil {
			s.sendError(w, r, name, err)
			return
		}
		s.sendBlob(w, r, blob)
		return
	}

	data, err := act.json(r.Context(), p)
	if err != nil {
		s.sendError(w, r, name, err)
		return
	}
	sendJSON(w, http.StatusOK, envelope{Data: data})
}

// envelope is the body of every JSON answer.
type envelope struct {
	Error *Message `json:"error"`
	Data  any      `json:"data"`
}

func sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, action string, err error) {
	log := logging.WithContext(r.Context())
	msg, status := messageFor(err)
	if msg == nil {
		log.Error("action failed", zap.String("action", action), zap.Error(err))
		http.Error(w, internalErrorText, status)
		return
	}
	log.Warn("action returned an error",
		zap.String("action", action),
		zap.Int("code", msg.Code),
		zap.Error(err))
	sendJSON(w, status, envelope{Error: msg})
}

func (s *Server) sendBlob(w http.ResponseWriter, r *http.Request, blob *filemanager.Blob) {
	defer blob.Body.Close()
	w.Header().Set("Content-Type", blob.MimeType)
	if blob.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, blob.Body); err != nil {
		logging.WithContext(r.Context()).Warn("stream interrupted", zap.Error(err))
	}
}

// action is one widget action. Exactly one of json and blob is set.
type action struct {
	json   func(ctx context.Context, p *params) (any, error)
	blob   func(ctx context.Context, p *params) (*filemanager.Blob, error)
	writes bool
}
