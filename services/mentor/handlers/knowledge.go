// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/conversation"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/observability"
)

// HandleKnowledgeChat returns the handler for POST /v1/chat/knowledge.
//
// Answers a single question against the knowledge base without session
// memory, returning the answer together with the source passages that
// grounded it.
func HandleKnowledgeChat(orch *conversation.Orchestrator, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleKnowledgeChat")
		defer span.End()
		start := time.Now()

		var req datatypes.KnowledgeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			recordError(metrics, observability.EndpointKnowledge, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			recordError(metrics, observability.EndpointKnowledge, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := orch.AnswerWithKnowledge(ctx, req.Message)
		if err != nil {
			span.RecordError(err)
			slog.Error("knowledge chat failed", "error", err)
			recordError(metrics, observability.EndpointKnowledge, observability.ErrorCodeLLMError)
			recordRequest(metrics, observability.EndpointKnowledge, false, start)
			c.JSON(http.StatusBadGateway, gin.H{"error": sanitizeErrorForClient(err)})
			return
		}
		if result.Blocked {
			recordBlocked(metrics)
		}

		sources := result.Sources
		if sources == nil {
			sources = []datatypes.SourceInfo{}
		}
		recordRequest(metrics, observability.EndpointKnowledge, true, start)
		c.JSON(http.StatusOK, datatypes.KnowledgeResponse{
			Answer:  result.Answer,
			Model:   orch.ModelLabel(),
			Sources: sources,
		})
	}
}
