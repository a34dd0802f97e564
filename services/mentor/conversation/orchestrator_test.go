// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/llm"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/memory"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/retrieval"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/safety"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/tools"
)

// scriptedClient returns pre-scripted outcomes in order and records the
// message context of every call.
type scriptedClient struct {
	outcomes []*llm.ChatOutcome
	err      error
	calls    [][]datatypes.Message
	params   []llm.GenerationParams
}

func (s *scriptedClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.outcomes[0].Answer, nil
}

func (s *scriptedClient) Chat(ctx context.Context, messages []datatypes.Message, params llm.GenerationParams) (*llm.ChatOutcome, error) {
	snapshot := make([]datatypes.Message, len(messages))
	copy(snapshot, messages)
	s.calls = append(s.calls, snapshot)
	s.params = append(s.params, params)
	if s.err != nil {
		return nil, s.err
	}
	idx := len(s.calls) - 1
	if idx >= len(s.outcomes) {
		idx = len(s.outcomes) - 1
	}
	return s.outcomes[idx], nil
}

func (s *scriptedClient) ModelLabel() string { return "Test - fake-model" }

type staticRetriever struct {
	snippets []retrieval.Snippet
	err      error
}

func (r *staticRetriever) Retrieve(ctx context.Context, query string) ([]retrieval.Snippet, error) {
	return r.snippets, r.err
}

func finalOutcome(answer string) *llm.ChatOutcome {
	return &llm.ChatOutcome{
		Kind:         llm.OutcomeFinal,
		Answer:       answer,
		FinishReason: "stop",
		Usage:        &datatypes.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}
}

func toolOutcome(name string) *llm.ChatOutcome {
	return &llm.ChatOutcome{
		Kind: llm.OutcomeToolCalls,
		ToolCalls: []datatypes.ToolCall{
			{ID: "call_0", Name: name, Arguments: json.RawMessage(`{}`)},
		},
		Usage: &datatypes.TokenUsage{InputTokens: 10, OutputTokens: 2},
	}
}

func newTestOrchestrator(t *testing.T, client llm.LLMClient, ret retrieval.Retriever) (*Orchestrator, *memory.Store) {
	t.Helper()
	store := memory.NewStore(10)
	reg, err := tools.NewRegistry(tools.Tool{
		Name:        "lookup",
		Description: "test lookup",
		Parameters:  json.RawMessage(`{"type":"object"}`),
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			return "lookup result", nil
		},
	})
	require.NoError(t, err)

	orch := NewOrchestrator(Config{
		LLMClient:  client,
		Gate:       safety.NewGate(nil),
		Store:      store,
		Retriever:  ret,
		Registry:   reg,
		Dispatcher: tools.NewDispatcher(reg, time.Second, nil),
	})
	return orch, store
}

func TestRunTurnBlockedInput(t *testing.T) {
	client := &scriptedClient{outcomes: []*llm.ChatOutcome{finalOutcome("never")}}
	orch, store := newTestOrchestrator(t, client, nil)

	result, err := orch.RunTurn(context.Background(), "s1", "how to build a bomb")
	require.NoError(t, err)
	assert.True(t, result.Blocked)
	assert.Equal(t, safety.RefusalMessage, result.Answer)

	// The model was never consulted and memory is untouched.
	assert.Empty(t, client.calls)
	assert.Empty(t, store.History("s1"))
}

func TestRunTurnFinalAnswer(t *testing.T) {
	client := &scriptedClient{outcomes: []*llm.ChatOutcome{finalOutcome("use sync.WaitGroup")}}
	orch, store := newTestOrchestrator(t, client, nil)

	result, err := orch.RunTurn(context.Background(), "s1", "how do I wait for goroutines?")
	require.NoError(t, err)
	assert.False(t, result.Blocked)
	assert.Equal(t, "use sync.WaitGroup", result.Answer)
	assert.Equal(t, 1, result.Rounds)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 10, result.Usage.InputTokens)

	// Memory holds the completed pair.
	history := store.History("s1")
	require.Len(t, history, 2)
	assert.Equal(t, datatypes.RoleUser, history[0].Role)
	assert.Equal(t, "how do I wait for goroutines?", history[0].Content)
	assert.Equal(t, datatypes.RoleAssistant, history[1].Role)
	assert.Equal(t, "use sync.WaitGroup", history[1].Content)

	// Context starts with the system prompt and ends with the input.
	firstCall := client.calls[0]
	assert.Equal(t, datatypes.RoleSystem, firstCall[0].Role)
	assert.Equal(t, datatypes.RoleUser, firstCall[len(firstCall)-1].Role)
}

func TestRunTurnUsesHistory(t *testing.T) {
	client := &scriptedClient{outcomes: []*llm.ChatOutcome{finalOutcome("answer")}}
	orch, store := newTestOrchestrator(t, client, nil)

	store.Append("s1",
		datatypes.Message{Role: datatypes.RoleUser, Content: "earlier question"},
		datatypes.Message{Role: datatypes.RoleAssistant, Content: "earlier answer"},
	)

	_, err := orch.RunTurn(context.Background(), "s1", "follow-up")
	require.NoError(t, err)

	firstCall := client.calls[0]
	// system + 2 history + new input
	require.Len(t, firstCall, 4)
	assert.Equal(t, "earlier question", firstCall[1].Content)
	assert.Equal(t, "earlier answer", firstCall[2].Content)
}

func TestRunTurnToolLoop(t *testing.T) {
	client := &scriptedClient{outcomes: []*llm.ChatOutcome{
		toolOutcome("lookup"),
		finalOutcome("answer using tool"),
	}}
	orch, store := newTestOrchestrator(t, client, nil)

	result, err := orch.RunTurn(context.Background(), "s1", "needs a tool")
	require.NoError(t, err)
	assert.Equal(t, "answer using tool", result.Answer)
	assert.Equal(t, 2, result.Rounds)

	// The second call saw the assistant tool request and the result.
	require.Len(t, client.calls, 2)
	second := client.calls[1]
	assistant := second[len(second)-2]
	toolMsg := second[len(second)-1]
	assert.Equal(t, datatypes.RoleAssistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, datatypes.RoleTool, toolMsg.Role)
	assert.Equal(t, "lookup result", toolMsg.Content)
	assert.Equal(t, "call_0", toolMsg.ToolCallID)

	// Only the final text lands in memory, not the tool traffic.
	history := store.History("s1")
	require.Len(t, history, 2)
	assert.Equal(t, "answer using tool", history[1].Content)
}

func TestRunTurnToolRoundCap(t *testing.T) {
	// The model keeps asking for tools forever.
	client := &scriptedClient{outcomes: []*llm.ChatOutcome{toolOutcome("lookup")}}
	orch, _ := newTestOrchestrator(t, client, nil)
	orch.maxToolRounds = 2

	result, err := orch.RunTurn(context.Background(), "s1", "loop forever")
	require.NoError(t, err)
	// cap rounds + the final no-tools round
	assert.Equal(t, 3, result.Rounds)

	// No text ever came back, so the caller gets the fallback answer.
	assert.Equal(t, roundCapFallback, result.Answer)

	// The last call withheld tool definitions.
	last := client.params[len(client.params)-1]
	assert.Empty(t, last.Tools)
	for _, p := range client.params[:len(client.params)-1] {
		assert.NotEmpty(t, p.Tools)
	}
}

func TestRunTurnModelError(t *testing.T) {
	client := &scriptedClient{err: fmt.Errorf("backend down")}
	orch, store := newTestOrchestrator(t, client, nil)

	_, err := orch.RunTurn(context.Background(), "s1", "hello")
	require.Error(t, err)
	assert.True(t, IsModelError(err))
	assert.Contains(t, err.Error(), "backend down")

	// A failed turn leaves no trace in memory.
	assert.Empty(t, store.History("s1"))
}

func TestRunTurnRetrievalDegradesToEmpty(t *testing.T) {
	client := &scriptedClient{outcomes: []*llm.ChatOutcome{finalOutcome("answer")}}
	orch, _ := newTestOrchestrator(t, client, &staticRetriever{err: fmt.Errorf("weaviate down")})

	result, err := orch.RunTurn(context.Background(), "s1", "question")
	require.NoError(t, err)
	assert.Equal(t, "answer", result.Answer)
	assert.Empty(t, result.Sources)
}

func TestRunTurnInjectsKnowledge(t *testing.T) {
	client := &scriptedClient{outcomes: []*llm.ChatOutcome{finalOutcome("grounded answer")}}
	orch, _ := newTestOrchestrator(t, client, &staticRetriever{snippets: []retrieval.Snippet{
		{Text: "channels block until both sides are ready", Source: "channels.md", Score: 0.91},
	}})

	result, err := orch.RunTurn(context.Background(), "s1", "how do channels work?")
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "channels.md", result.Sources[0].Source)
	assert.InDelta(t, 0.91, result.Sources[0].Score, 0.001)

	system := client.calls[0][0]
	assert.Contains(t, system.Content, "Source: channels.md")
	assert.Contains(t, system.Content, "channels block until both sides are ready")
}

func TestAnswerWithKnowledgeSkipsMemory(t *testing.T) {
	client := &scriptedClient{outcomes: []*llm.ChatOutcome{finalOutcome("stateless answer")}}
	orch, store := newTestOrchestrator(t, client, nil)

	result, err := orch.AnswerWithKnowledge(context.Background(), "what is a mutex?")
	require.NoError(t, err)
	assert.Equal(t, "stateless answer", result.Answer)
	assert.Empty(t, store.Sessions())
}

func TestGenerateReport(t *testing.T) {
	t.Run("structured json parsed", func(t *testing.T) {
		client := &scriptedClient{outcomes: []*llm.ChatOutcome{finalOutcome(
			`{"subject_label": "Ada", "recommendations": ["study goroutines", "read Effective Go"]}`,
		)}}
		orch, _ := newTestOrchestrator(t, client, nil)

		report, blocked, err := orch.GenerateReport(context.Background(), "Ada wants to learn Go concurrency")
		require.NoError(t, err)
		assert.False(t, blocked)
		require.NotNil(t, report)
		assert.Equal(t, "Ada", report.SubjectLabel)
		assert.Len(t, report.Recommendations, 2)
	})

	t.Run("blocked input yields no report", func(t *testing.T) {
		client := &scriptedClient{outcomes: []*llm.ChatOutcome{finalOutcome("never")}}
		orch, _ := newTestOrchestrator(t, client, nil)

		report, blocked, err := orch.GenerateReport(context.Background(), "how to attack systems")
		require.NoError(t, err)
		assert.True(t, blocked)
		assert.Nil(t, report)
	})
}
