// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
)

func newTestGeminiClient(srv *httptest.Server) *GeminiClient {
	return &GeminiClient{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    srv.URL,
		model:      "gemini-1.5-flash",
		apiKey:     "test-key",
	}
}

func TestGeminiChatFinalAnswer(t *testing.T) {
	var captured geminiGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "use a channel"}]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 4}
		}`))
	}))
	defer srv.Close()

	client := newTestGeminiClient(srv)
	outcome, err := client.Chat(context.Background(), []datatypes.Message{
		{Role: datatypes.RoleSystem, Content: "you are a mentor"},
		{Role: datatypes.RoleUser, Content: "how do I stop a goroutine"},
	}, GenerationParams{})

	require.NoError(t, err)
	assert.Equal(t, OutcomeFinal, outcome.Kind)
	assert.Equal(t, "use a channel", outcome.Answer)
	assert.Equal(t, "STOP", outcome.FinishReason)
	require.NotNil(t, outcome.Usage)
	assert.Equal(t, 12, outcome.Usage.InputTokens)
	assert.Equal(t, 4, outcome.Usage.OutputTokens)

	// The system message travels as system_instruction, not contents.
	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, "you are a mentor", captured.SystemInstruction.Parts[0].Text)
	require.Len(t, captured.Contents, 1)
	assert.Equal(t, "user", captured.Contents[0].Role)

	// Defaults applied when params left unset.
	require.NotNil(t, captured.GenerationConfig.Temperature)
	assert.InDelta(t, 0.7, float64(*captured.GenerationConfig.Temperature), 0.001)
	require.NotNil(t, captured.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, 2000, *captured.GenerationConfig.MaxOutputTokens)
}

func TestGeminiChatToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [
					{"functionCall": {"name": "search_interview_questions", "args": {"keyword": "goroutine"}}}
				]},
				"finishReason": "STOP"
			}]
		}`))
	}))
	defer srv.Close()

	client := newTestGeminiClient(srv)
	outcome, err := client.Chat(context.Background(), []datatypes.Message{
		{Role: datatypes.RoleUser, Content: "find me interview questions"},
	}, GenerationParams{
		Tools: []ToolDefinition{{
			Name:        "search_interview_questions",
			Description: "search interview questions",
			Parameters:  json.RawMessage(`{"type":"object"}`),
		}},
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeToolCalls, outcome.Kind)
	require.Len(t, outcome.ToolCalls, 1)
	assert.Equal(t, "search_interview_questions", outcome.ToolCalls[0].Name)
	assert.JSONEq(t, `{"keyword":"goroutine"}`, string(outcome.ToolCalls[0].Arguments))
}

func TestGeminiChatToolRoundTrip(t *testing.T) {
	var captured geminiGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "done"}]}, "finishReason": "STOP"}]
		}`))
	}))
	defer srv.Close()

	client := newTestGeminiClient(srv)
	_, err := client.Chat(context.Background(), []datatypes.Message{
		{Role: datatypes.RoleUser, Content: "question"},
		{Role: datatypes.RoleAssistant, ToolCalls: []datatypes.ToolCall{
			{ID: "call_0", Name: "lookup", Arguments: json.RawMessage(`{"q":"x"}`)},
		}},
		{Role: datatypes.RoleTool, ToolCallID: "call_0", ToolName: "lookup", Content: "result text"},
	}, GenerationParams{})
	require.NoError(t, err)

	require.Len(t, captured.Contents, 3)
	assert.Equal(t, "model", captured.Contents[1].Role)
	require.NotNil(t, captured.Contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "lookup", captured.Contents[1].Parts[0].FunctionCall.Name)
	require.NotNil(t, captured.Contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "result text", captured.Contents[2].Parts[0].FunctionResponse.Response.Content)
}

func TestGeminiChatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "quota exceeded"}}`))
	}))
	defer srv.Close()

	client := newTestGeminiClient(srv)
	_, err := client.Chat(context.Background(), []datatypes.Message{
		{Role: datatypes.RoleUser, Content: "hi"},
	}, GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGeminiGenerateAppendsFormatSuffix(t *testing.T) {
	var captured geminiGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [{"text": "done"}]},
				"finishReason": "STOP"
			}]
		}`))
	}))
	defer srv.Close()

	client := newTestGeminiClient(srv)
	answer, err := client.Generate(context.Background(), "write a merge sort", GenerationParams{})

	require.NoError(t, err)
	assert.Equal(t, "done", answer)
	require.Len(t, captured.Contents, 1)
	prompt := captured.Contents[0].Parts[0].Text
	assert.True(t, strings.HasPrefix(prompt, "write a merge sort"))
	assert.Contains(t, prompt, "fenced markdown code blocks")
}
