// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the mentor service endpoints onto a gin engine.
package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/conversation"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/handlers"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/memory"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/observability"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/retrieval"
)

// Dependencies holds everything the route table needs.
type Dependencies struct {
	Orchestrator *conversation.Orchestrator
	Store        *memory.Store
	// Weaviate and Embed may be nil; the document ingestion endpoint is
	// then not registered.
	Weaviate *weaviate.Client
	Embed    *retrieval.EmbeddingClient
	// Metrics may be nil in tests; /metrics is then not registered.
	Metrics *observability.ChatMetrics
	// ChunkDelay paces SSE token events. Non-positive uses the default.
	ChunkDelay time.Duration
}

// SetupRoutes registers all endpoints on the router.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/chat", handlers.HandleChat(deps.Orchestrator, deps.Metrics))
		v1.GET("/chat/stream", handlers.HandleChatStream(deps.Orchestrator, deps.Metrics, deps.ChunkDelay))
		v1.POST("/chat/knowledge", handlers.HandleKnowledgeChat(deps.Orchestrator, deps.Metrics))
		v1.POST("/learning-report", handlers.HandleLearningReport(deps.Orchestrator, deps.Metrics))

		if deps.Weaviate != nil && deps.Embed != nil {
			v1.POST("/documents", handlers.HandleIngestDocument(deps.Weaviate, deps.Embed, deps.Metrics))
		}

		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.HandleListSessions(deps.Store))
			sessions.GET("/:sessionId/history", handlers.HandleSessionHistory(deps.Store))
			sessions.DELETE("/:sessionId", handlers.HandleDeleteSession(deps.Store))
		}
	}
}
