// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/memory"
)

// HandleListSessions returns the handler for GET /v1/sessions. Lists
// the keys of sessions currently holding messages, sorted for stable
// output.
func HandleListSessions(store *memory.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions := store.Sessions()
		sort.Strings(sessions)
		c.JSON(http.StatusOK, gin.H{
			"sessions": sessions,
			"count":    len(sessions),
		})
	}
}

// HandleSessionHistory returns the handler for GET /v1/sessions/:id.
// Returns the session's current memory window, oldest message first.
// An unknown session returns an empty history rather than 404, matching
// the lazy-creation semantics of the store.
func HandleSessionHistory(store *memory.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		history := store.History(sessionID)
		c.JSON(http.StatusOK, gin.H{
			"session_id": sessionID,
			"messages":   history,
			"count":      len(history),
		})
	}
}

// HandleDeleteSession returns the handler for DELETE /v1/sessions/:id.
func HandleDeleteSession(store *memory.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		deleted := store.Delete(sessionID)
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "deleted": true})
	}
}
