// Package server exposes the streaming chat core and the session store over
// HTTP.
//
// # Wire format
//
// Every JSON response uses one envelope:
//
//	{ "code": 0, "data": {...}, "msg": "..." }   // code -1 on failure
//
// POST /api/v1/chat/stream answers with server-sent events, one canonical
// event per frame, followed by a [DONE] sentinel:
//
//	data: {"type":"tool_started","tool":{"item_id":"ws_1","type":"web_search","status":"in_progress",...}}
//	data: {"type":"text_delta","text":"Hello"}
//	data: {"type":"done"}
//	data: [DONE]
//
// A cancelled stream ends with [DONE] and no done or error frame.
//
// # Usage
//
//	srv := server.New(server.Options{Controller: ctl, Store: store, Defaults: defaults})
//	http.ListenAndServe(":8080", srv.Router())
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bitop-dev/chatstream/pkg/ai"
	"github.com/bitop-dev/chatstream/pkg/chat"
	"github.com/bitop-dev/chatstream/pkg/session"
)

// Defaults fill in what a stream request leaves out.
type Defaults struct {
	Config       ai.ProviderConfig
	Tools        []ai.ToolType
	SystemPrompt string
}

// Options configures a Server.
type Options struct {
	Controller *chat.Controller
	Store      session.Store // nil → session routes are not mounted
	Defaults   Defaults
	Logger     *slog.Logger // nil → discard
}

// Server holds the HTTP handlers. Defaults may be swapped at runtime.
type Server struct {
	chat     *chat.Controller
	store    session.Store
	defaults atomic.Pointer[Defaults]
	logger   *slog.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{chat: opts.Controller, store: opts.Store, logger: opts.Logger}
	if s.chat == nil {
		s.chat = chat.New(chat.Options{Logger: opts.Logger})
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	d := opts.Defaults
	s.defaults.Store(&d)
	return s
}

// SetDefaults replaces the defaults used by subsequent stream requests.
func (s *Server) SetDefaults(d Defaults) {
	s.defaults.Store(&d)
	s.logger.Info("server: defaults updated", "provider", d.Config.Provider, "model", d.Config.Model)
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/chat/stream", s.handleStream)
		api.Post("/chat/{requestID}/cancel", s.handleCancel)

		if s.store == nil {
			return
		}
		api.Get("/sessions", s.handleListSessions)
		api.Post("/sessions", s.handleCreateSession)
		api.Get("/sessions/{id}", s.handleGetSession)
		api.Patch("/sessions/{id}", s.handleRenameSession)
		api.Delete("/sessions/{id}", s.handleDeleteSession)
		api.Get("/sessions/{id}/messages", s.handleListMessages)
		api.Post("/sessions/{id}/messages", s.handleCreateMessage)
		api.Get("/sessions/{id}/export", s.handleExport)
		api.Patch("/messages/{id}", s.handleUpdateMessage)
		api.Post("/messages/{id}/append", s.handleAppendMessage)
	})
	return r
}

// requestLogger logs one line per request. Streams are logged when they end.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"req_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondOK(w, http.StatusOK, map[string]string{"status": "ok"}, "")
}

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

const (
	codeOK   = 0
	codeFail = -1
)

type envelope struct {
	Code int    `json:"code"`
	Data any    `json:"data,omitempty"`
	Msg  string `json:"msg,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondOK(w http.ResponseWriter, status int, data any, msg string) {
	s.respondJSON(w, status, envelope{Code: codeOK, Data: data, Msg: msg})
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, envelope{Code: codeFail, Msg: err.Error()})
}

// respondStoreError maps store errors onto HTTP statuses.
func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		s.respondJSON(w, http.StatusNotFound, envelope{Code: codeFail, Msg: "Chat session not found"})
	case errors.Is(err, session.ErrMessageNotFound):
		s.respondJSON(w, http.StatusNotFound, envelope{Code: codeFail, Msg: "Message not found"})
	default:
		s.logger.Error("server: store error", "error", err)
		s.respondError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("bad request: %w", err)
	}
	return nil
}
