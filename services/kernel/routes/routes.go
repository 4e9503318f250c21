// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/engine"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/handlers"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/middleware"
)

// SetupRoutes registers every kernel endpoint on the router.
func SetupRoutes(router *gin.Engine, eng *engine.Engine, sessionLimiter *middleware.SessionLimiter) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/turn", handlers.HandleTurn(eng, sessionLimiter))
		v1.GET("/turn/ws", handlers.HandleTurnWebSocket(eng, sessionLimiter))

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(eng))
			sessions.GET("/:sessionId/state", handlers.GetSessionState(eng))
			sessions.GET("/:sessionId/history", handlers.GetSessionHistory(eng))
			sessions.GET("/:sessionId/contributions", handlers.GetSessionContributions(eng))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(eng))
		}
	}
}
