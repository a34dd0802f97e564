// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory implements the process-local conversation store.
//
// Each session holds a bounded FIFO window of messages. When the window
// is full the oldest messages are evicted, so long-running sessions see
// the model "forget" early turns. State lives in process memory only and
// is lost on restart.
package memory

import (
	"sync"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
)

// DefaultWindowSize is the per-session message cap used when the
// configured value is zero or negative.
const DefaultWindowSize = 10

// Store keeps per-session conversation windows.
//
// Locking is per session, not global: a mutex arena maps each session key
// to its own lock, so concurrent turns on different sessions never
// contend. Turns on the same session serialize, which is what keeps a
// user/assistant pair adjacent in the window.
type Store struct {
	windowSize int

	mu       sync.Mutex // guards sessions and locks maps
	sessions map[string][]datatypes.Message
	locks    map[string]*sync.Mutex
}

// NewStore creates a Store with the given window size per session.
func NewStore(windowSize int) *Store {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Store{
		windowSize: windowSize,
		sessions:   make(map[string][]datatypes.Message),
		locks:      make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the mutex for a session key, creating it on first
// use. Session locks are never removed; the arena grows with the number
// of distinct keys seen, which is bounded in practice by the client
// population.
func (s *Store) sessionLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// Append atomically adds messages to the session window, evicting the
// oldest entries if the result would exceed the window size. Passing a
// user/assistant pair in one call guarantees no interleaving from
// concurrent turns on the same session.
func (s *Store) Append(key string, msgs ...datatypes.Message) {
	if len(msgs) == 0 {
		return
	}
	lock := s.sessionLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	window := s.sessions[key]
	s.mu.Unlock()

	window = append(window, msgs...)
	if over := len(window) - s.windowSize; over > 0 {
		window = window[over:]
	}

	s.mu.Lock()
	s.sessions[key] = window
	s.mu.Unlock()
}

// History returns a snapshot copy of the session window, oldest first.
// The caller may retain and mutate the slice freely; later appends do
// not affect it. Unknown sessions return an empty slice.
func (s *Store) History(key string) []datatypes.Message {
	lock := s.sessionLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	window := s.sessions[key]
	s.mu.Unlock()

	snapshot := make([]datatypes.Message, len(window))
	copy(snapshot, window)
	return snapshot
}

// Sessions returns the keys of all sessions that currently hold at least
// one message.
func (s *Store) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.sessions))
	for k, window := range s.sessions {
		if len(window) > 0 {
			keys = append(keys, k)
		}
	}
	return keys
}

// Delete removes a session's window. Deleting an unknown session is a
// no-op. Returns true when a session was actually removed.
func (s *Store) Delete(key string) bool {
	lock := s.sessionLock(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[key]
	delete(s.sessions, key)
	return ok
}
