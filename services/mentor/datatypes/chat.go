// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the mentor service.
//
// This file contains request and response types for the chat endpoints.
// Knowledge-retrieval types live in rag.go; learning-report types in
// report.go.
package datatypes

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single user message.
	// Larger payloads are rejected at validation time rather than risking
	// memory exhaustion downstream.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// DefaultSessionKey is used when a caller does not name a session.
	DefaultSessionKey = "1"
)

// Message roles. The tool role carries results of tool invocations back
// into the model context.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes checks byte length (not rune count) against
// MaxMessageContentBytes.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Conversation Types
// =============================================================================

// ToolCall is a single tool invocation requested by the model.
//
// Arguments hold the raw JSON object the model produced for the tool's
// parameter schema; they are passed through to the dispatcher unparsed.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one role-tagged message in a conversation context.
//
// For assistant messages that requested tools, ToolCalls records the
// requests so backends that require call/result pairing (Gemini, OpenAI)
// can reconstruct the exchange. For tool messages, ToolCallID and ToolName
// identify which invocation produced the content.
type Message struct {
	Role       string     `json:"role" validate:"required,oneof=system user assistant tool"`
	Content    string     `json:"content" validate:"maxbytes"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// TokenUsage contains token consumption statistics for one model call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates usage from another call. Nil-safe on the argument side.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// =============================================================================
// Chat Request / Response
// =============================================================================

// ChatRequest is the body of POST /v1/chat.
//
// # Fields
//
//   - RequestID: Optional. Unique identifier (UUID v4) for tracing and
//     audit correlation. Generated server-side when absent.
//   - Timestamp: Optional. Unix milliseconds (UTC). Generated when absent.
//   - SessionID: Optional. Conversation session key; defaults to "1".
//     Sessions are created lazily on first use.
//   - Message: Required. The user's input, at most 32KB.
type ChatRequest struct {
	RequestID string `json:"request_id" validate:"omitempty,uuid4"`
	Timestamp int64  `json:"timestamp" validate:"gte=0"`
	SessionID string `json:"session_id"`
	Message   string `json:"message" validate:"required,maxbytes"`
}

// Validate validates the ChatRequest fields using the shared validator.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults populates RequestID, Timestamp, and SessionID when the
// client omitted them.
func (r *ChatRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
	if r.SessionID == "" {
		r.SessionID = DefaultSessionKey
	}
}

// ChatResponse is the body returned by POST /v1/chat.
//
// Blocked is true when the safety gate refused the input; Answer then
// carries the fixed refusal text and no model call occurred.
type ChatResponse struct {
	ResponseID       string      `json:"response_id"`
	RequestID        string      `json:"request_id"`
	Timestamp        int64       `json:"timestamp"`
	SessionID        string      `json:"session_id"`
	Answer           string      `json:"answer"`
	Model            string      `json:"model"`
	Blocked          bool        `json:"blocked,omitempty"`
	Usage            *TokenUsage `json:"usage,omitempty"`
	ProcessingTimeMs int64       `json:"processing_time_ms,omitempty"`
}

// NewChatResponse creates a ChatResponse with generated ResponseID and
// Timestamp, echoing the request ID for correlation.
func NewChatResponse(requestID, sessionID, answer, model string) *ChatResponse {
	return &ChatResponse{
		ResponseID: uuid.New().String(),
		RequestID:  requestID,
		Timestamp:  time.Now().UnixMilli(),
		SessionID:  sessionID,
		Answer:     answer,
		Model:      model,
	}
}

// =============================================================================
// Stream Events
// =============================================================================

// StreamEvent is one Server-Sent Event emitted by the streaming chat
// endpoint. Exactly one of Content, Message, or Error is populated
// depending on Type ("token", "status", "error", "done").
type StreamEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"created_at"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}
