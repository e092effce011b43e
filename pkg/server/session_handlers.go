package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bitop-dev/chatstream/pkg/session"
)

type titleBody struct {
	Title string `json:"title"`
}

type appendBody struct {
	Content string `json:"content"`
}

type idResult struct {
	ID string `json:"id"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	list, err := s.store.ListSessions(r.Context(), limit, offset)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if list == nil {
		list = []session.Session{}
	}
	s.respondOK(w, http.StatusOK, list, "")
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body titleBody
	if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.store.CreateSession(r.Context(), body.Title)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondOK(w, http.StatusCreated, sess, "")
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondOK(w, http.StatusOK, sess, "")
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var body titleBody
	if err := decodeJSON(r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.store.RenameSession(r.Context(), id, body.Title); err != nil {
		s.respondStoreError(w, err)
		return
	}
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondOK(w, http.StatusOK, sess, "")
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondOK(w, http.StatusOK, nil, "Chat session deleted")
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		s.respondStoreError(w, err)
		return
	}
	msgs, err := s.store.ListMessages(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []session.Message{}
	}
	s.respondOK(w, http.StatusOK, msgs, "")
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var p session.CreateMessageParams
	if err := decodeJSON(r, &p); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	p.SessionID = chi.URLParam(r, "id")
	if p.Role == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("role is required"))
		return
	}
	id, err := s.store.CreateMessage(r.Context(), p)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondOK(w, http.StatusCreated, idResult{ID: id}, "")
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	var p session.UpdateMessageParams
	if err := decodeJSON(r, &p); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if p.Status != nil {
		switch *p.Status {
		case session.StatusSent, session.StatusPending, session.StatusError:
		default:
			s.respondError(w, http.StatusBadRequest, errors.New("status must be sent, pending or error"))
			return
		}
	}
	id := chi.URLParam(r, "id")
	if err := s.store.UpdateMessage(r.Context(), id, p); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondMessage(w, r, id)
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var body appendBody
	if err := decodeJSON(r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.store.AppendMessageContent(r.Context(), id, body.Content); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondMessage(w, r, id)
}

func (s *Server) respondMessage(w http.ResponseWriter, r *http.Request, id string) {
	m, err := s.store.GetMessage(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondOK(w, http.StatusOK, m, "")
}

// handleExport renders a session as Markdown (default) or HTML.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	msgs, err := s.store.ListMessages(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write(session.ExportMarkdown(sess, msgs))
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(session.ExportHTML(sess, msgs))
	default:
		s.respondError(w, http.StatusBadRequest, errors.New("format must be markdown or html"))
	}
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
