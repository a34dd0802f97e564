// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"log/slog"
	"time"
)

// =============================================================================
// Model Call Observers
// =============================================================================

// ModelCallInfo describes one model interaction for observers.
type ModelCallInfo struct {
	SessionID   string
	Model       string
	NumMessages int
	// Round is 0 for the initial call and increments per tool loop
	// iteration.
	Round int
}

// ModelCallResult describes the outcome of one model interaction.
type ModelCallResult struct {
	Outcome      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// ModelObserver receives notifications around model calls. Observers
// are telemetry only: they must not mutate anything and their failures
// never affect the turn.
type ModelObserver interface {
	OnRequest(info ModelCallInfo)
	OnResponse(info ModelCallInfo, result ModelCallResult)
	OnError(info ModelCallInfo, err error)
}

// MultiObserver fans out notifications to a list of observers. A
// panicking observer is recovered and logged so one broken sink cannot
// take down a turn or starve the others.
type MultiObserver struct {
	observers []ModelObserver
	logger    *slog.Logger
}

// NewMultiObserver creates a MultiObserver over the given observers.
func NewMultiObserver(logger *slog.Logger, observers ...ModelObserver) *MultiObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiObserver{observers: observers, logger: logger}
}

func (m *MultiObserver) each(fn func(o ModelObserver)) {
	for _, o := range m.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("model observer panicked", "panic", r)
				}
			}()
			fn(o)
		}()
	}
}

// OnRequest implements the ModelObserver interface.
func (m *MultiObserver) OnRequest(info ModelCallInfo) {
	m.each(func(o ModelObserver) { o.OnRequest(info) })
}

// OnResponse implements the ModelObserver interface.
func (m *MultiObserver) OnResponse(info ModelCallInfo, result ModelCallResult) {
	m.each(func(o ModelObserver) { o.OnResponse(info, result) })
}

// OnError implements the ModelObserver interface.
func (m *MultiObserver) OnError(info ModelCallInfo, err error) {
	m.each(func(o ModelObserver) { o.OnError(info, err) })
}

// =============================================================================
// Built-in Observers
// =============================================================================

// LoggingObserver writes structured log lines for each model call.
type LoggingObserver struct {
	Logger *slog.Logger
}

// OnRequest implements the ModelObserver interface.
func (l *LoggingObserver) OnRequest(info ModelCallInfo) {
	l.Logger.Debug("model request",
		"session_id", info.SessionID,
		"model", info.Model,
		"num_messages", info.NumMessages,
		"round", info.Round)
}

// OnResponse implements the ModelObserver interface.
func (l *LoggingObserver) OnResponse(info ModelCallInfo, result ModelCallResult) {
	l.Logger.Info("model response",
		"session_id", info.SessionID,
		"model", info.Model,
		"round", info.Round,
		"outcome", result.Outcome,
		"finish_reason", result.FinishReason,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"duration_ms", result.Duration.Milliseconds())
}

// OnError implements the ModelObserver interface.
func (l *LoggingObserver) OnError(info ModelCallInfo, err error) {
	l.Logger.Error("model call failed",
		"session_id", info.SessionID,
		"model", info.Model,
		"round", info.Round,
		"error", err)
}

// MetricsObserver feeds model call outcomes into Prometheus.
type MetricsObserver struct {
	Metrics *ChatMetrics
}

// OnRequest implements the ModelObserver interface.
func (m *MetricsObserver) OnRequest(info ModelCallInfo) {}

// OnResponse implements the ModelObserver interface.
func (m *MetricsObserver) OnResponse(info ModelCallInfo, result ModelCallResult) {
	m.Metrics.RecordTokens(result.InputTokens, result.OutputTokens, info.Model)
}

// OnError implements the ModelObserver interface.
func (m *MetricsObserver) OnError(info ModelCallInfo, err error) {
	m.Metrics.RecordError(EndpointChat, ErrorCodeLLMError)
}
