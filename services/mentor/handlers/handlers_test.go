// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/llm"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/conversation"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/memory"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/safety"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Reduce noise in test output.
	gin.SetMode(gin.TestMode)
}

// mockLLM implements llm.LLMClient for handler testing. Chat replays
// the scripted outcomes in order, repeating the last one.
type mockLLM struct {
	outcomes []*llm.ChatOutcome
	chatErr  error
	genText  string
	genErr   error
	calls    int
}

func (m *mockLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	if m.genErr != nil {
		return "", m.genErr
	}
	return m.genText, nil
}

func (m *mockLLM) Chat(ctx context.Context, messages []datatypes.Message, params llm.GenerationParams) (*llm.ChatOutcome, error) {
	if m.chatErr != nil {
		return nil, m.chatErr
	}
	idx := m.calls
	if idx >= len(m.outcomes) {
		idx = len(m.outcomes) - 1
	}
	m.calls++
	return m.outcomes[idx], nil
}

func (m *mockLLM) ModelLabel() string {
	return "Mock - test-model"
}

// answerOutcome builds a final-answer outcome.
func answerOutcome(answer string) *llm.ChatOutcome {
	return &llm.ChatOutcome{
		Kind:   llm.OutcomeFinal,
		Answer: answer,
		Usage:  &datatypes.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}
}

// newHandlerOrchestrator builds an orchestrator with real gate, memory,
// and the given mock model. No retriever and no tools.
func newHandlerOrchestrator(client llm.LLMClient, store *memory.Store) *conversation.Orchestrator {
	return conversation.NewOrchestrator(conversation.Config{
		LLMClient: client,
		Gate:      safety.NewGate(nil),
		Store:     store,
	})
}

// createTestRouter creates a Gin router with the specified handler for testing.
func createTestRouter(method, path string, handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	switch method {
	case "POST":
		router.POST(path, handler)
	case "GET":
		router.GET(path, handler)
	case "DELETE":
		router.DELETE(path, handler)
	}
	return router
}

// performRequest executes an HTTP request against the test router.
func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// sseEvent is one decoded SSE frame from a recorded response body.
type sseEvent struct {
	Name string
	Data datatypes.StreamEvent
}

// parseSSEEvents decodes the SSE frames in a response body, skipping
// comment (keepalive) lines.
func parseSSEEvents(body string) []sseEvent {
	var events []sseEvent
	for _, frame := range strings.Split(body, "\n\n") {
		var ev sseEvent
		var hasData bool
		for _, line := range strings.Split(frame, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				_ = json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.Data)
				hasData = true
			}
		}
		if ev.Name != "" && hasData {
			events = append(events, ev)
		}
	}
	return events
}
