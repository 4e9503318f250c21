// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/engine"
)

// ListSessions handles GET /v1/sessions.
func ListSessions(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions := eng.Sessions().List()
		summaries := make([]datatypes.SessionSummary, 0, len(sessions))
		for _, sess := range sessions {
			summaries = append(summaries, sess.Summary())
		}
		c.JSON(http.StatusOK, gin.H{"sessions": summaries})
	}
}

// GetSessionState handles GET /v1/sessions/:sessionId/state.
func GetSessionState(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		sess, err := eng.Sessions().Get(sessionID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "session_id": sessionID})
			return
		}
		c.JSON(http.StatusOK, datatypes.SessionStateResponse{
			SessionID:     sessionID,
			InternalState: sess.State(),
			TurnCount:     sess.TurnCount(),
		})
	}
}

// GetSessionHistory handles GET /v1/sessions/:sessionId/history.
func GetSessionHistory(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		sess, err := eng.Sessions().Get(sessionID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "session_id": sessionID})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id":   sessionID,
			"conversation": sess.Conversation(),
			"history":      sess.History(),
		})
	}
}

// GetSessionContributions handles GET /v1/sessions/:sessionId/contributions.
//
// Returns the full per-attempt audit trail plus an aggregate summary.
func GetSessionContributions(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		records, err := eng.Ledger().Contributions(c.Request.Context(), sessionID)
		if err != nil {
			slog.Error("Failed to read contributions", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read contribution ledger"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": sessionID,
			"records":    records,
			"summary":    datatypes.Summarize(records),
		})
	}
}

// DeleteSession handles DELETE /v1/sessions/:sessionId.
//
// Removes the live session and its persisted ledger data. Deleting an
// unknown session is a success; the end state is identical.
func DeleteSession(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		slog.Info("Received a request to delete a session", "session_id", sessionID)

		if err := eng.DeleteSession(c.Request.Context(), sessionID); err != nil &&
			!errors.Is(err, engine.ErrSessionNotFound) {
			slog.Error("Failed to delete session data", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fully delete session"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionID})
	}
}
