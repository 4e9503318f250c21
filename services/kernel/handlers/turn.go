// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the kernel's HTTP endpoints.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/engine"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/invoker"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/middleware"
)

// HandleTurn processes POST /v1/turn.
//
// # Description
//
// Binds and validates the turn request, applies the per-session rate
// limit, and runs the full coherence loop. Degraded turns still return
// 200; only malformed requests, throttling, and configuration or
// persistence failures surface as errors.
func HandleTurn(eng *engine.Engine, limiter *middleware.SessionLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.TurnRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid turn request: " + err.Error()})
			return
		}

		if limiter != nil && !limiter.Allow(req.SessionID) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "session rate limit exceeded",
				"session_id": req.SessionID,
			})
			return
		}

		result, err := eng.ProcessTurn(c.Request.Context(), req.SessionID, req.Input)
		if err != nil {
			status := http.StatusInternalServerError
			msg := "turn processing failed"
			switch {
			case errors.Is(err, engine.ErrEmptyInput):
				status = http.StatusBadRequest
				msg = err.Error()
			case invoker.IsConfigurationError(err):
				msg = err.Error()
			}
			slog.Error("Turn request failed", "session_id", req.SessionID, "error", err)
			c.JSON(status, gin.H{"error": msg})
			return
		}

		c.JSON(http.StatusOK, datatypes.TurnResponse{
			TurnID:           result.TurnID,
			SessionID:        req.SessionID,
			Response:         result.Response,
			InternalState:    result.State,
			Degraded:         result.Degraded,
			ProcessingTimeMs: result.Duration.Milliseconds(),
		})
	}
}
