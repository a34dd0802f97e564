// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin HTTP handlers for the mentor
// service.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/conversation"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/observability"
)

var handlerTracer = otel.Tracer("codementor.services.mentor.handlers")

// sanitizeErrorForClient maps internal errors to stable, safe client
// messages. Full details stay in logs and spans.
func sanitizeErrorForClient(err error) string {
	if conversation.IsModelError(err) {
		return "The model backend is temporarily unavailable. Please try again."
	}
	return "An internal error occurred. Please try again."
}

// HandleChat returns the handler for POST /v1/chat.
//
// # Description
//
// Runs one blocking conversational turn: validates the request, runs
// the orchestrator pipeline, and returns the complete answer. A safety
// refusal is a successful response with blocked=true; the model is
// never consulted for it.
//
// # Inputs
//
//   - orch: The turn orchestrator.
//   - metrics: May be nil in tests.
//
// # Outputs
//
//   - gin.HandlerFunc: 200 with ChatResponse, 400 on validation
//     failure, 502 when the model backend failed.
func HandleChat(orch *conversation.Orchestrator, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()
		start := time.Now()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			recordError(metrics, observability.EndpointChat, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			recordError(metrics, observability.EndpointChat, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(
			attribute.String("request.id", req.RequestID),
			attribute.String("session.id", req.SessionID),
		)

		result, err := orch.RunTurn(ctx, req.SessionID, req.Message)
		if err != nil {
			span.RecordError(err)
			slog.Error("chat turn failed",
				"request_id", req.RequestID,
				"session_id", req.SessionID,
				"error", err)
			recordError(metrics, observability.EndpointChat, observability.ErrorCodeLLMError)
			recordRequest(metrics, observability.EndpointChat, false, start)
			c.JSON(http.StatusBadGateway, gin.H{"error": sanitizeErrorForClient(err)})
			return
		}

		resp := datatypes.NewChatResponse(req.RequestID, req.SessionID, result.Answer, orch.ModelLabel())
		resp.Blocked = result.Blocked
		resp.Usage = result.Usage
		resp.ProcessingTimeMs = time.Since(start).Milliseconds()

		if result.Blocked {
			recordBlocked(metrics)
		}
		recordRequest(metrics, observability.EndpointChat, true, start)
		c.JSON(http.StatusOK, resp)
	}
}

// metrics helpers tolerate a nil metrics instance so handlers stay
// testable without Prometheus registration.

func recordRequest(m *observability.ChatMetrics, endpoint observability.Endpoint, success bool, start time.Time) {
	if m == nil {
		return
	}
	m.RecordRequest(endpoint, success)
	m.RecordTurnDuration(endpoint, time.Since(start).Seconds(), success)
}

func recordError(m *observability.ChatMetrics, endpoint observability.Endpoint, code observability.ErrorCode) {
	if m == nil {
		return
	}
	m.RecordError(endpoint, code)
}

func recordBlocked(m *observability.ChatMetrics) {
	if m == nil {
		return
	}
	m.RecordBlockedInput()
}
