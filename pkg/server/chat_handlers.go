package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bitop-dev/chatstream/pkg/ai"
	"github.com/bitop-dev/chatstream/pkg/chat"
)

// RequestIDHeader carries the chat request id on stream responses, so a
// client that let the server pick one can still cancel.
const RequestIDHeader = "X-Chat-Request-ID"

type streamBody struct {
	RequestID string             `json:"request_id"`
	SessionID string             `json:"session_id,omitempty"`
	Messages  []ai.Turn          `json:"messages"`
	Config    *ai.ProviderConfig `json:"config,omitempty"`
	Tools     []ai.ToolType      `json:"tools,omitempty"`
}

type wireEvent struct {
	Type  ai.StreamEventType `json:"type"`
	Text  string             `json:"text,omitempty"`
	Tool  *ai.ToolCallRecord `json:"tool,omitempty"`
	Error string             `json:"error,omitempty"`
}

func toWire(ev ai.StreamEvent) wireEvent {
	we := wireEvent{Type: ev.Type, Text: ev.Text, Tool: ev.Tool}
	if ev.Type == ai.StreamEventError {
		we.Error = chat.ErrorMessage(ev.Err)
	}
	return we
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	body, err := decodeStreamBody(w, r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if len(body.Messages) == 0 {
		s.respondError(w, http.StatusBadRequest, errors.New("messages are required"))
		return
	}
	if body.SessionID != "" && s.store != nil {
		ok, err := s.store.SessionExists(r.Context(), body.SessionID)
		if err != nil {
			s.respondStoreError(w, err)
			return
		}
		if !ok {
			s.respondJSON(w, http.StatusNotFound, envelope{Code: codeFail, Msg: "Chat session not found"})
			return
		}
	}

	req := s.streamRequest(body)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(RequestIDHeader, req.RequestID)
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	writeFrame := func(data []byte) {
		fmt.Fprintf(w, "data: %s\n\n", data)
		_ = rc.Flush()
	}

	// The request context ends when the client disconnects, which cancels
	// the stream like CancelChat would.
	for ev := range s.chat.Stream(r.Context(), req) {
		data, err := json.Marshal(toWire(ev))
		if err != nil {
			s.logger.Error("server: encode event", "type", ev.Type, "error", err)
			continue
		}
		writeFrame(data)
	}
	writeFrame([]byte("[DONE]"))
}

// streamRequest applies the current defaults to body.
func (s *Server) streamRequest(body streamBody) chat.StreamRequest {
	d := s.defaults.Load()
	req := chat.StreamRequest{
		RequestID: body.RequestID,
		SessionID: body.SessionID,
		Messages:  body.Messages,
		Tools:     body.Tools,
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if body.Config != nil {
		req.Config = *body.Config
	} else {
		req.Config = d.Config
	}
	if req.Tools == nil {
		req.Tools = d.Tools
	}
	if d.SystemPrompt != "" && !hasSystemTurn(req.Messages) {
		req.Messages = append([]ai.Turn{{Role: ai.RoleSystem, Content: d.SystemPrompt}}, req.Messages...)
	}
	return req
}

func hasSystemTurn(turns []ai.Turn) bool {
	for _, t := range turns {
		if t.Role == ai.RoleSystem {
			return true
		}
	}
	return false
}

type cancelResult struct {
	Found bool `json:"found"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestID")
	if s.chat.CancelChat(id) {
		s.respondOK(w, http.StatusOK, cancelResult{Found: true}, "Request cancelled")
		return
	}
	s.respondJSON(w, http.StatusNotFound, envelope{Code: codeFail, Data: cancelResult{Found: false}, Msg: "Request not found"})
}
