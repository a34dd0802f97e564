// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResultsPage = `
<html><body>
<table>
<tr>
  <td class="ant-table-cell"><a href="/q/1">What is a goroutine?</a></td>
  <td class="ant-table-cell other">  <a href="/q/2">Explain channel deadlocks</a></td>
</tr>
<tr>
  <td class="ant-table-cell"><span><a href="/q/3">nested anchor not direct child</a></span></td>
  <td class="ant-table-cell"><a href="/q/4">  How does GOMAXPROCS work?  </a></td>
</tr>
</table>
<div class="ant-table-cell"><a href="/q/5">Select statement semantics</a></div>
<a href="/elsewhere">unrelated link</a>
</body></html>`

func TestExtractQuestionTitles(t *testing.T) {
	titles := ExtractQuestionTitles(sampleResultsPage, 20)

	// Only anchors that are direct children of a result cell count.
	require.Len(t, titles, 4)
	assert.Equal(t, "What is a goroutine?", titles[0])
	assert.Equal(t, "Explain channel deadlocks", titles[1])
	assert.Equal(t, "How does GOMAXPROCS work?", titles[2])
	assert.Equal(t, "Select statement semantics", titles[3])
}

func TestExtractQuestionTitlesCap(t *testing.T) {
	titles := ExtractQuestionTitles(sampleResultsPage, 2)
	assert.Len(t, titles, 2)
}

func TestFormatQuestionList(t *testing.T) {
	out := FormatQuestionList("goroutine", []string{"first", "second"})
	assert.Contains(t, out, `Interview questions for "goroutine":`)
	assert.Contains(t, out, "1. first\n")
	assert.Contains(t, out, "2. second\n")
}

func TestInterviewToolNetworkFailureIsTextual(t *testing.T) {
	// Point at a server that immediately closes connections.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tool := NewInterviewQuestionTool(&http.Client{Timeout: time.Second}, srv.URL)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"keyword":"redis"}`))

	// Failures come back as text for the model, never as errors.
	require.NoError(t, err)
	assert.Contains(t, result, "502")
}

func TestInterviewToolParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "goroutine", r.URL.Query().Get("searchText"))
		_, _ = w.Write([]byte(sampleResultsPage))
	}))
	defer srv.Close()

	tool := NewInterviewQuestionTool(srv.Client(), srv.URL)
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"keyword":"goroutine"}`))

	require.NoError(t, err)
	assert.Contains(t, result, "1. What is a goroutine?")
	assert.Contains(t, result, "2. Explain channel deadlocks")
}

func TestInterviewToolRejectsEmptyKeyword(t *testing.T) {
	tool := NewInterviewQuestionTool(nil, "")

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"keyword":"  "}`))
	require.NoError(t, err)
	assert.Contains(t, result, "non-empty keyword")

	result, err = tool.Execute(context.Background(), json.RawMessage(`not json`))
	require.NoError(t, err)
	assert.Contains(t, result, "invalid arguments")
}
