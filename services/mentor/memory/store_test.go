// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
)

func userMsg(content string) datatypes.Message {
	return datatypes.Message{Role: datatypes.RoleUser, Content: content}
}

func assistantMsg(content string) datatypes.Message {
	return datatypes.Message{Role: datatypes.RoleAssistant, Content: content}
}

func TestStoreAppendAndHistory(t *testing.T) {
	store := NewStore(10)

	store.Append("s1", userMsg("hello"), assistantMsg("hi there"))

	history := store.History("s1")
	require.Len(t, history, 2)
	assert.Equal(t, datatypes.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, datatypes.RoleAssistant, history[1].Role)
}

func TestStoreWindowEviction(t *testing.T) {
	store := NewStore(4)

	for i := 0; i < 4; i++ {
		store.Append("s1", userMsg(fmt.Sprintf("q%d", i)), assistantMsg(fmt.Sprintf("a%d", i)))
	}

	history := store.History("s1")
	require.Len(t, history, 4)
	// Only the two most recent pairs survive, oldest first.
	assert.Equal(t, "q2", history[0].Content)
	assert.Equal(t, "a2", history[1].Content)
	assert.Equal(t, "q3", history[2].Content)
	assert.Equal(t, "a3", history[3].Content)
}

func TestStoreSessionIsolation(t *testing.T) {
	store := NewStore(10)

	store.Append("alice", userMsg("alice question"))
	store.Append("bob", userMsg("bob question"))

	assert.Len(t, store.History("alice"), 1)
	assert.Len(t, store.History("bob"), 1)
	assert.Equal(t, "alice question", store.History("alice")[0].Content)
	assert.Empty(t, store.History("unknown"))
}

func TestStoreHistorySnapshot(t *testing.T) {
	store := NewStore(10)
	store.Append("s1", userMsg("first"))

	snapshot := store.History("s1")
	store.Append("s1", userMsg("second"))

	// The earlier snapshot is unaffected by the later append.
	require.Len(t, snapshot, 1)
	assert.Len(t, store.History("s1"), 2)

	// Mutating the snapshot does not corrupt the store.
	snapshot[0].Content = "mutated"
	assert.Equal(t, "first", store.History("s1")[0].Content)
}

func TestStoreDelete(t *testing.T) {
	store := NewStore(10)
	store.Append("s1", userMsg("hello"))

	assert.True(t, store.Delete("s1"))
	assert.Empty(t, store.History("s1"))
	assert.False(t, store.Delete("s1"))
	assert.False(t, store.Delete("never-existed"))
}

func TestStoreSessions(t *testing.T) {
	store := NewStore(10)
	assert.Empty(t, store.Sessions())

	store.Append("a", userMsg("x"))
	store.Append("b", userMsg("y"))
	store.Delete("a")

	sessions := store.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "b", sessions[0])
}

func TestStoreConcurrentAppends(t *testing.T) {
	store := NewStore(1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Pairs appended atomically must stay adjacent.
			q := fmt.Sprintf("q%d", n)
			a := fmt.Sprintf("a%d", n)
			store.Append("shared", userMsg(q), assistantMsg(a))
		}(i)
	}
	wg.Wait()

	history := store.History("shared")
	require.Len(t, history, 100)
	for i := 0; i < len(history); i += 2 {
		q := history[i]
		a := history[i+1]
		assert.Equal(t, datatypes.RoleUser, q.Role)
		assert.Equal(t, datatypes.RoleAssistant, a.Role)
		// "qN" is always followed by its matching "aN".
		assert.Equal(t, "a"+q.Content[1:], a.Content)
	}
}
