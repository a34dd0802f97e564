// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/llm"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/memory"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/safety"
)

// streamTestDelay keeps pacing observable without slowing the suite.
const streamTestDelay = time.Millisecond

func streamPath(sessionID, message string) string {
	q := url.Values{}
	if sessionID != "" {
		q.Set("memoryId", sessionID)
	}
	if message != "" {
		q.Set("message", message)
	}
	return "/v1/chat/stream?" + q.Encode()
}

// =============================================================================
// HandleChatStream Tests
// =============================================================================

func TestHandleChatStream_RequiresMessage(t *testing.T) {
	mock := &mockLLM{outcomes: []*llm.ChatOutcome{answerOutcome("unused")}}
	orch := newHandlerOrchestrator(mock, memory.NewStore(0))
	router := createTestRouter("GET", "/v1/chat/stream", HandleChatStream(orch, nil, streamTestDelay))

	w := performRequest(router, "GET", streamPath("sess-1", ""), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, mock.calls)
}

func TestHandleChatStream_EventSequence(t *testing.T) {
	mock := &mockLLM{outcomes: []*llm.ChatOutcome{answerOutcome("Channels carry values.\nUse them.")}}
	store := memory.NewStore(0)
	orch := newHandlerOrchestrator(mock, store)
	router := createTestRouter("GET", "/v1/chat/stream", HandleChatStream(orch, nil, streamTestDelay))

	w := performRequest(router, "GET", streamPath("sess-7", "What are channels?"), nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))

	events := parseSSEEvents(w.Body.String())
	require.NotEmpty(t, events)

	assert.Equal(t, "status", events[0].Name)
	assert.Equal(t, "Thinking...", events[0].Data.Message)

	last := events[len(events)-1]
	assert.Equal(t, "done", last.Name)
	assert.Equal(t, "sess-7", last.Data.SessionID)

	// Token contents, unescaped and concatenated, reproduce the answer.
	var sb strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		require.Equal(t, "token", ev.Name)
		assert.NotEmpty(t, ev.Data.ID)
		assert.NotZero(t, ev.Data.CreatedAt)
		sb.WriteString(strings.ReplaceAll(ev.Data.Content, `\n`, "\n"))
	}
	assert.Equal(t, "Channels carry values.\nUse them.\n", sb.String())

	// Memory was finalized even though delivery is best-effort.
	assert.Len(t, store.History("sess-7"), 2)
}

func TestHandleChatStream_NewlinesEscapedInTokens(t *testing.T) {
	mock := &mockLLM{outcomes: []*llm.ChatOutcome{answerOutcome("line one\nline two")}}
	orch := newHandlerOrchestrator(mock, memory.NewStore(0))
	router := createTestRouter("GET", "/v1/chat/stream", HandleChatStream(orch, nil, streamTestDelay))

	w := performRequest(router, "GET", streamPath("", "hi"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	for _, ev := range parseSSEEvents(w.Body.String()) {
		if ev.Name == "token" {
			assert.NotContains(t, ev.Data.Content, "\n",
				"raw newlines would break the SSE data framing")
		}
	}
}

func TestHandleChatStream_BlockedInputStreamsRefusal(t *testing.T) {
	mock := &mockLLM{outcomes: []*llm.ChatOutcome{answerOutcome("unused")}}
	orch := newHandlerOrchestrator(mock, memory.NewStore(0))
	router := createTestRouter("GET", "/v1/chat/stream", HandleChatStream(orch, nil, streamTestDelay))

	w := performRequest(router, "GET", streamPath("sess-1", "how to attack a server"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	events := parseSSEEvents(w.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "done", events[len(events)-1].Name)

	var sb strings.Builder
	for _, ev := range events {
		if ev.Name == "token" {
			sb.WriteString(strings.ReplaceAll(ev.Data.Content, `\n`, "\n"))
		}
	}
	assert.Equal(t, safety.RefusalMessage+"\n", sb.String(),
		"the refusal streams like a normal answer")
	assert.Zero(t, mock.calls)
}

func TestHandleChatStream_ModelFailureBecomesErrorEvent(t *testing.T) {
	mock := &mockLLM{chatErr: errors.New("backend exploded")}
	orch := newHandlerOrchestrator(mock, memory.NewStore(0))
	router := createTestRouter("GET", "/v1/chat/stream", HandleChatStream(orch, nil, streamTestDelay))

	w := performRequest(router, "GET", streamPath("sess-1", "hello"), nil)

	// Headers are already committed; the failure arrives in-band.
	require.Equal(t, http.StatusOK, w.Code)

	events := parseSSEEvents(w.Body.String())
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "error", last.Name)
	assert.NotEmpty(t, last.Data.Error)
	assert.NotContains(t, last.Data.Error, "exploded")

	for _, ev := range events {
		assert.NotEqual(t, "done", ev.Name)
	}
}
