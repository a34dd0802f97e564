// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
)

var dispatchTracer = otel.Tracer("codementor.services.mentor.tools")

// DefaultCallTimeout bounds a single tool execution.
const DefaultCallTimeout = 10 * time.Second

// Dispatcher executes model-requested tool calls against a Registry.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger

	// onResult, when set, observes every produced tool result. Used for
	// metrics; never affects dispatch.
	onResult func(tool, status string)
}

// NewDispatcher creates a Dispatcher. A non-positive timeout falls back
// to DefaultCallTimeout.
func NewDispatcher(registry *Registry, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, timeout: timeout, logger: logger}
}

// SetResultObserver installs a callback invoked with the tool name and
// result status ("ok", "error", "timeout", "panic", "unknown") for each
// call.
func (d *Dispatcher) SetResultObserver(fn func(tool, status string)) {
	d.onResult = fn
}

// Dispatch executes the calls sequentially and returns one tool message
// per call, in the order the model requested them.
//
// # Description
//
// Every call produces a result. Unknown tool names, executor errors,
// per-call timeouts, and executor panics each become an explanatory
// result string instead of failing the turn; the model reads the text
// and decides how to proceed.
//
// # Inputs
//
//   - ctx: Turn context. Cancellation aborts calls not yet started and
//     cuts short the one in flight.
//   - calls: The tool calls in model order.
//
// # Outputs
//
//   - []datatypes.Message: One tool-role message per call, same order.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []datatypes.ToolCall) []datatypes.Message {
	ctx, span := dispatchTracer.Start(ctx, "Dispatcher.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.Int("tools.num_calls", len(calls)))

	results := make([]datatypes.Message, 0, len(calls))
	for _, call := range calls {
		content, status := d.execute(ctx, call)
		d.logger.Debug("tool call completed", "tool", call.Name, "status", status)
		if d.onResult != nil {
			d.onResult(call.Name, status)
		}
		results = append(results, datatypes.Message{
			Role:       datatypes.RoleTool,
			Content:    content,
			ToolCallID: call.ID,
			ToolName:   call.Name,
		})
	}
	return results
}

// execute runs one call and returns its textual result plus a status
// label for telemetry.
func (d *Dispatcher) execute(ctx context.Context, call datatypes.ToolCall) (result, status string) {
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		d.logger.Warn("model requested unknown tool", "tool", call.Name)
		return fmt.Sprintf("error: unknown tool %q", call.Name), "unknown"
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		text, err := tool.Execute(callCtx, call.Arguments)
		done <- outcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if isPanicError(out.err) {
				d.logger.Error("tool panicked", "tool", call.Name, "error", out.err)
				return fmt.Sprintf("error: tool %q failed unexpectedly", call.Name), "panic"
			}
			d.logger.Warn("tool returned an error", "tool", call.Name, "error", out.err)
			return fmt.Sprintf("error: tool %q failed: %v", call.Name, out.err), "error"
		}
		return out.text, "ok"
	case <-callCtx.Done():
		// The goroutine may still be running; its eventual send lands in
		// the buffered channel and is dropped.
		d.logger.Warn("tool call timed out", "tool", call.Name, "timeout", d.timeout)
		return fmt.Sprintf("error: tool %q timed out after %s", call.Name, d.timeout), "timeout"
	}
}

// isPanicError reports whether err came from the recover path above,
// which wraps panics with a fixed prefix.
func isPanicError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "tool panicked:")
}
