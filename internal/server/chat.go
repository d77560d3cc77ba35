package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/kaiwa-ai/kaiwa/internal/dialogue"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req dialogue.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.RequestID() == "" {
		if req.Metadata == nil {
			req.Metadata = make(map[string]any)
		}
		req.Metadata["request_id"] = uuid.NewString()
	}

	if req.Stream {
		s.streamChat(w, r, &req)
		return
	}

	resp, err := s.orch.Process(r.Context(), &req)
	if err != nil {
		s.turnError(w, &req, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("write response failed", "error", err)
	}
}

// streamChat replays the turn as SSE data frames. Frames after the
// first write cannot change the status code, so a mid-stream failure
// surfaces as an error frame.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, req *dialogue.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	wroteFrame := false
	err := s.orch.Stream(r.Context(), req, func(frame dialogue.StreamFrame) error {
		data, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		wroteFrame = true
		return nil
	})
	if err != nil {
		if !wroteFrame {
			s.turnError(w, req, err)
			return
		}
		s.logger.Error("stream aborted", "session_id", req.SessionID, "error", err)
	}
}

// turnError maps orchestrator failures onto status codes: validation to
// 422, everything else (gateway exhaustion included) to 502.
func (s *Server) turnError(w http.ResponseWriter, req *dialogue.Request, err error) {
	if errors.Is(err, dialogue.ErrEmptyMessage) {
		s.writeError(w, http.StatusUnprocessableEntity, "message is required")
		return
	}
	s.logger.Error("turn failed", "session_id", req.SessionID, "error", err)
	s.writeError(w, http.StatusBadGateway, "turn failed: "+err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
