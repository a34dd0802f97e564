// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools implements the capability table and the dispatcher that
// executes model-requested tool calls.
//
// Tools are plain descriptor structs with an Execute function; adding a
// capability means registering a new descriptor, never subclassing
// anything. The dispatcher is never fatal to a turn: unknown tools,
// execution errors, timeouts, and panics all surface as textual results
// the model can read and recover from.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/llm"
)

// ExecuteFunc runs one tool invocation. The raw JSON arguments come
// straight from the model; implementations validate them and return a
// human-readable result string. A returned error is converted to a
// textual result by the dispatcher, so implementations may also choose
// to encode failures directly into the result string.
type ExecuteFunc func(ctx context.Context, args json.RawMessage) (string, error)

// Tool describes one callable capability.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON Schema of the arguments object.
	Parameters json.RawMessage
	Execute    ExecuteFunc
}

// Registry is the capability table. Build it once at startup; it is
// read-only afterwards and safe for concurrent use.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a Registry over the given tools. A duplicate name
// returns an error rather than silently shadowing an earlier tool.
func NewRegistry(tools ...Tool) (*Registry, error) {
	table := make(map[string]Tool, len(tools))
	for _, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if t.Execute == nil {
			return nil, fmt.Errorf("tool %q has no execute function", t.Name)
		}
		if _, exists := table[t.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name)
		}
		table[t.Name] = t
	}
	return &Registry{tools: table}, nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Definitions returns the registered tools in the form backends
// advertise to the model, sorted by name for stable request bodies.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
