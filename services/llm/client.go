// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides clients for the supported model backends.
//
// All backends implement LLMClient. Chat is the primary entry point: it
// takes a full role-tagged context and returns a ChatOutcome, which is
// either a final answer or a batch of tool-call requests for the caller
// to execute and feed back.
package llm

import (
	"context"
	"encoding/json"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
)

// GenerationParams carries per-call sampling controls. Nil pointer
// fields mean "use the backend default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// Tools advertises callable functions to the model. An empty slice
	// disables tool use for the call.
	Tools []ToolDefinition `json:"tools,omitempty"`
}

// ToolDefinition describes one callable function in the form backends
// expect: a name, a short description, and a JSON Schema for the
// arguments object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// OutcomeKind discriminates the two shapes of a ChatOutcome.
type OutcomeKind string

const (
	// OutcomeFinal means Answer holds the complete response text.
	OutcomeFinal OutcomeKind = "final"
	// OutcomeToolCalls means the model wants tools executed before it
	// can answer; ToolCalls holds the requests in model order.
	OutcomeToolCalls OutcomeKind = "tool_calls"
)

// ChatOutcome is the result of one Chat call.
type ChatOutcome struct {
	Kind         OutcomeKind
	Answer       string
	ToolCalls    []datatypes.ToolCall
	FinishReason string
	Usage        *datatypes.TokenUsage
}

// LLMClient defines the standard interface for any model backend.
type LLMClient interface {
	// Generate produces text from a single prompt with no conversation
	// context and no tool access.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Chat sends a full conversation context and returns either a final
	// answer or tool-call requests.
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (*ChatOutcome, error)

	// ModelLabel returns a human-readable provider and model name for
	// response metadata, e.g. "Google AI Studio - gemini-1.5-flash".
	ModelLabel() string
}
