// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/llm"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/memory"
)

// =============================================================================
// HandleKnowledgeChat Tests
// =============================================================================

func TestHandleKnowledgeChat_Success(t *testing.T) {
	mock := &mockLLM{outcomes: []*llm.ChatOutcome{answerOutcome("A slice is a view over an array.")}}
	store := memory.NewStore(0)
	orch := newHandlerOrchestrator(mock, store)
	router := createTestRouter("POST", "/v1/chat/knowledge", HandleKnowledgeChat(orch, nil))

	w := performRequest(router, "POST", "/v1/chat/knowledge", datatypes.KnowledgeRequest{
		Message: "What is a slice?",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.KnowledgeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "A slice is a view over an array.", resp.Answer)
	assert.Equal(t, "Mock - test-model", resp.Model)
	assert.NotNil(t, resp.Sources, "sources serializes as [] rather than null")

	// Knowledge chat is stateless.
	assert.Empty(t, store.Sessions())
}

func TestHandleKnowledgeChat_EmptyMessage(t *testing.T) {
	mock := &mockLLM{outcomes: []*llm.ChatOutcome{answerOutcome("unused")}}
	orch := newHandlerOrchestrator(mock, memory.NewStore(0))
	router := createTestRouter("POST", "/v1/chat/knowledge", HandleKnowledgeChat(orch, nil))

	w := performRequest(router, "POST", "/v1/chat/knowledge", datatypes.KnowledgeRequest{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, mock.calls)
}
