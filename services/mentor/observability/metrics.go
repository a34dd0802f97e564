// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and model-call observers for
// the mentor service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring chat
// operations. Metrics include:
//   - Request counters (by endpoint, status, error type)
//   - Token usage (input/output tokens by model)
//   - Turn duration histograms
//   - Active stream gauges
//   - Tool call and safety gate counters
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "codementor"

// Subsystem for chat metrics
const chatSubsystem = "chat"

// ChatMetrics holds all Prometheus metrics for chat operations.
// Initialize once at startup via InitMetrics().
type ChatMetrics struct {
	// RequestsTotal counts chat requests by endpoint and status.
	// Labels: endpoint (chat, chat_stream, knowledge, report), status
	// (success, error)
	RequestsTotal *prometheus.CounterVec

	// TokensTotal counts tokens processed by direction and model.
	// Labels: direction (input, output), model
	TokensTotal *prometheus.CounterVec

	// TurnDurationSeconds measures end-to-end turn duration.
	// Labels: endpoint, status
	TurnDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently active SSE connections.
	ActiveStreams prometheus.Gauge

	// ErrorsTotal counts errors by type and endpoint.
	// Labels: endpoint, error_code
	ErrorsTotal *prometheus.CounterVec

	// ToolCallsTotal counts tool invocations by tool and result status.
	// Labels: tool, status (ok, error, timeout, panic, unknown)
	ToolCallsTotal *prometheus.CounterVec

	// BlockedInputsTotal counts inputs refused by the safety gate.
	BlockedInputsTotal prometheus.Counter

	// ClientDisconnectsTotal counts client disconnections mid-stream.
	ClientDisconnectsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of ChatMetrics. Initialized
// by InitMetrics().
var DefaultMetrics *ChatMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup; calling twice panics on duplicate registration.
func InitMetrics() *ChatMetrics {
	DefaultMetrics = &ChatMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Total number of chat requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		TokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "tokens_total",
				Help:      "Total tokens processed by direction and model",
			},
			[]string{"direction", "model"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end turn duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint", "status"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently active SSE connections",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "errors_total",
				Help:      "Total errors by type and endpoint",
			},
			[]string{"endpoint", "error_code"},
		),

		ToolCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "tool_calls_total",
				Help:      "Total tool invocations by tool and result status",
			},
			[]string{"tool", "status"},
		),

		BlockedInputsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "blocked_inputs_total",
				Help:      "Total inputs refused by the safety gate",
			},
		),

		ClientDisconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeBlocked indicates input refused by the safety gate.
	ErrorCodeBlocked ErrorCode = "blocked"

	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeLLMError indicates a model backend failure.
	ErrorCodeLLMError ErrorCode = "llm_error"

	// ErrorCodeTimeout indicates operation timeout.
	ErrorCodeTimeout ErrorCode = "timeout"

	// ErrorCodeRetrieval indicates a knowledge-base failure.
	ErrorCodeRetrieval ErrorCode = "retrieval"

	// ErrorCodeInternal indicates internal server error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates the client went away.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents an API endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointChat is the blocking chat endpoint.
	EndpointChat Endpoint = "chat"

	// EndpointChatStream is the SSE streaming chat endpoint.
	EndpointChatStream Endpoint = "chat_stream"

	// EndpointKnowledge is the knowledge-base chat endpoint.
	EndpointKnowledge Endpoint = "knowledge"

	// EndpointReport is the learning report endpoint.
	EndpointReport Endpoint = "report"

	// EndpointDocuments is the document ingestion endpoint.
	EndpointDocuments Endpoint = "documents"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed request.
func (m *ChatMetrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordError records an error occurrence.
func (m *ChatMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordTokens records token usage for one model call.
func (m *ChatMetrics) RecordTokens(inputTokens, outputTokens int, model string) {
	m.TokensTotal.WithLabelValues("input", model).Add(float64(inputTokens))
	m.TokensTotal.WithLabelValues("output", model).Add(float64(outputTokens))
}

// RecordTurnDuration records end-to-end turn latency.
func (m *ChatMetrics) RecordTurnDuration(endpoint Endpoint, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.TurnDurationSeconds.WithLabelValues(string(endpoint), status).Observe(seconds)
}

// RecordToolCall records one tool invocation result.
func (m *ChatMetrics) RecordToolCall(tool, status string) {
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordBlockedInput increments the safety gate refusal counter.
func (m *ChatMetrics) RecordBlockedInput() {
	m.BlockedInputsTotal.Inc()
}

// StreamStarted increments the active streams gauge.
func (m *ChatMetrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *ChatMetrics) StreamEnded() {
	m.ActiveStreams.Dec()
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *ChatMetrics) RecordClientDisconnect() {
	m.ClientDisconnectsTotal.Inc()
}
