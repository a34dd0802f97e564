// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/conversation"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/emitter"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/observability"
)

// heartbeatInterval spaces keepalive comments while the model call is
// in flight.
const heartbeatInterval = 15 * time.Second

// HandleChatStream returns the handler for GET /v1/chat/stream.
//
// # Description
//
// Runs one conversational turn and delivers the answer as paced SSE
// token events. The model is called in blocking mode; the complete
// answer is chunked word by word and streamed with a fixed inter-chunk
// delay. A safety refusal streams the refusal text the same way, so the
// client needs no special path for it.
//
// Event sequence: status ("Thinking...") → token* → done. On failure
// after headers are sent, an error event replaces the remaining tokens.
// Chunk content is newline-escaped ("\n" becomes "\\n") for the SSE
// data field; clients reverse the escaping.
//
// # Inputs
//
//   - orch: The turn orchestrator.
//   - metrics: May be nil in tests.
//   - chunkDelay: Pause between token events; non-positive uses the
//     default pacing.
//
// # Limitations
//
//   - Query parameters, not a JSON body: SSE via EventSource only
//     supports GET. memoryId defaults to "1"; message is required.
func HandleChatStream(orch *conversation.Orchestrator, metrics *observability.ChatMetrics,
	chunkDelay time.Duration) gin.HandlerFunc {

	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleChatStream")
		defer span.End()
		start := time.Now()

		sessionID := c.DefaultQuery("memoryId", datatypes.DefaultSessionKey)
		message := c.Query("message")
		if message == "" {
			recordError(metrics, observability.EndpointChatStream, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "message query parameter is required"})
			return
		}
		if len(message) > datatypes.MaxMessageContentBytes {
			recordError(metrics, observability.EndpointChatStream, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "message exceeds maximum size"})
			return
		}
		span.SetAttributes(attribute.String("session.id", sessionID))

		// Step 1: Switch the response into SSE mode.
		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
			return
		}

		if metrics != nil {
			metrics.StreamStarted()
			defer metrics.StreamEnded()
		}

		// Step 2: Tell the client work has started, then keep the
		// connection warm while the model runs.
		_ = writer.WriteStatus("Thinking...")
		stopHeartbeat := runHeartbeat(ctx, writer)

		// Step 3: Run the full turn. Memory is already finalized when
		// this returns, regardless of what delivery does next.
		result, err := orch.RunTurn(ctx, sessionID, message)
		stopHeartbeat()
		if err != nil {
			span.RecordError(err)
			slog.Error("streaming chat turn failed",
				"session_id", sessionID, "error", err)
			recordError(metrics, observability.EndpointChatStream, observability.ErrorCodeLLMError)
			recordRequest(metrics, observability.EndpointChatStream, false, start)
			_ = writer.WriteError(sanitizeErrorForClient(err))
			return
		}
		if result.Blocked {
			recordBlocked(metrics)
		}

		// Step 4: Chunk the complete answer and pace it out. The
		// producer stops promptly if the client goes away.
		stream := emitter.NewStream(emitter.Chunks(result.Answer), chunkDelay)
		delivered := true
		for chunk := range stream.Run(ctx) {
			if err := writer.WriteToken(emitter.Escape(chunk)); err != nil {
				slog.Debug("client disconnected mid-stream", "session_id", sessionID)
				if metrics != nil {
					metrics.RecordClientDisconnect()
				}
				delivered = false
				break
			}
		}
		if ctx.Err() != nil {
			delivered = false
		}

		if delivered {
			_ = writer.WriteDone(sessionID)
		}
		recordRequest(metrics, observability.EndpointChatStream, delivered, start)
	}
}

// runHeartbeat emits keepalive comments until the returned stop
// function is called or the context ends.
func runHeartbeat(ctx context.Context, writer SSEWriter) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = writer.WriteKeepAlive()
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	var once bool
	return func() {
		if !once {
			once = true
			close(stop)
		}
	}
}
