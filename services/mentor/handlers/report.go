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
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/safety"
)

// HandleLearningReport returns the handler for POST /v1/learning-report.
//
// Produces a structured study plan from a free-text student
// description. Output parsing is tolerant: when the model ignores the
// JSON instruction, its lines become recommendations under a generic
// student name.
func HandleLearningReport(orch *conversation.Orchestrator, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleLearningReport")
		defer span.End()
		start := time.Now()

		var req datatypes.ReportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			recordError(metrics, observability.EndpointReport, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			recordError(metrics, observability.EndpointReport, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		report, blocked, err := orch.GenerateReport(ctx, req.Message)
		if err != nil {
			span.RecordError(err)
			slog.Error("learning report failed", "error", err)
			recordError(metrics, observability.EndpointReport, observability.ErrorCodeLLMError)
			recordRequest(metrics, observability.EndpointReport, false, start)
			c.JSON(http.StatusBadGateway, gin.H{"error": sanitizeErrorForClient(err)})
			return
		}
		if blocked {
			recordBlocked(metrics)
			recordRequest(metrics, observability.EndpointReport, true, start)
			c.JSON(http.StatusOK, gin.H{
				"blocked": true,
				"message": safety.RefusalMessage,
			})
			return
		}

		recordRequest(metrics, observability.EndpointReport, true, start)
		c.JSON(http.StatusOK, report)
	}
}
