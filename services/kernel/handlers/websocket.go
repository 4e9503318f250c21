package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/engine"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/middleware"
)

// WSTurnRequest is one inbound websocket frame. SessionID is optional;
// an empty value keeps the connection-scoped session.
type WSTurnRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Input     string `json:"input"`
}

// WSTurnResponse mirrors the REST turn response with an error slot so a
// failed turn does not tear down the socket.
type WSTurnResponse struct {
	TurnID           string                  `json:"turn_id,omitempty"`
	SessionID        string                  `json:"session_id"`
	Response         string                  `json:"response,omitempty"`
	InternalState    datatypes.InternalState `json:"internal_state"`
	Degraded         bool                    `json:"degraded"`
	ProcessingTimeMs int64                   `json:"processing_time_ms"`
	Error            string                  `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleTurnWebSocket serves GET /v1/turn/ws.
//
// Each inbound frame is one turn; frames on the same connection default
// to a connection-scoped session so a client gets continuity without
// managing IDs.
func HandleTurnWebSocket(eng *engine.Engine, limiter *middleware.SessionLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		connSessionID := uuid.NewString()
		slog.Info("Websocket client connected", "session_id", connSessionID)

		if err := sendJSON(ws, map[string]interface{}{
			"action":     "session_created",
			"session_id": connSessionID,
		}); err != nil {
			return
		}

		for {
			var req WSTurnRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("Websocket client disconnected", "error", err.Error())
				break
			}

			sessionID := req.SessionID
			if sessionID == "" {
				sessionID = connSessionID
			}

			if limiter != nil && !limiter.Allow(sessionID) {
				if sendJSON(ws, WSTurnResponse{
					SessionID: sessionID, Error: "session rate limit exceeded",
				}) != nil {
					return
				}
				continue
			}

			result, err := eng.ProcessTurn(c.Request.Context(), sessionID, req.Input)
			if err != nil {
				slog.Error("Websocket turn failed", "session_id", sessionID, "error", err)
				if sendJSON(ws, WSTurnResponse{
					SessionID: sessionID, Error: err.Error(),
				}) != nil {
					return
				}
				continue
			}

			if sendJSON(ws, WSTurnResponse{
				TurnID:           result.TurnID,
				SessionID:        sessionID,
				Response:         result.Response,
				InternalState:    result.State,
				Degraded:         result.Degraded,
				ProcessingTimeMs: result.Duration.Milliseconds(),
			}) != nil {
				return
			}
		}
	}
}
