package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wiplab/wip-agent/internal/orchestrator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Same-host tooling and local widget hosts; auth sits in front.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsError is the terminal frame when a turn fails; the socket is
// closed after sending it.
type wsError struct {
	Error     string `json:"error"`
	SessionID string `json:"session_id,omitempty"`
}

// handleChatWS runs one turn per received message. The client sends
// {"session_id": "...", "message": "..."} and receives the turn's
// outward messages as individual frames: tool messages while the loop
// runs, then the assistant answer. A turn failure sends an error frame
// and closes the socket.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		if req.Message == "" {
			if err := conn.WriteJSON(wsError{Error: "message is required"}); err != nil {
				return
			}
			continue
		}
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}

		var writeErr error
		observe := func(msg orchestrator.TurnMessage) {
			if writeErr == nil {
				writeErr = conn.WriteJSON(msg)
			}
		}

		_, err := s.orch.RunTurnObserved(r.Context(), req.SessionID, req.Message, observe)
		if err != nil {
			msg := err.Error()
			if errors.Is(err, orchestrator.ErrTurnInFlight) {
				msg = "turn already in flight"
			}
			conn.WriteJSON(wsError{Error: msg, SessionID: req.SessionID})
			return
		}
		if writeErr != nil {
			s.logger.Debug("websocket write failed mid-turn", "error", writeErr)
			return
		}
	}
}
