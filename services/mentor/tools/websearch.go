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
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// webSearchDefaultURL is the Brave-compatible search endpoint used
	// when no override is configured.
	webSearchDefaultURL = "https://api.search.brave.com/res/v1/web/search"

	// webSearchDefaultCount is how many results one call returns when
	// the model does not ask for a specific count.
	webSearchDefaultCount = 5

	// webSearchMaxCount caps the per-call result count.
	webSearchMaxCount = 10
)

// webSearchArgs is the argument shape advertised to the model.
type webSearchArgs struct {
	Query string `json:"query"`
	Count int    `json:"count,omitempty"`
}

// webSearchResponse mirrors the subset of the Brave search response the
// tool reads.
type webSearchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// NewWebSearchTool returns the tool that runs keyword searches against
// a Brave-compatible JSON search API. An empty baseURL uses the public
// Brave endpoint.
//
// The tool is registered even without an API key; calls then return an
// explanation instead of results, so the model can tell the user the
// capability is unavailable rather than hallucinating a search.
func NewWebSearchTool(client *http.Client, baseURL, apiKey string) Tool {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if baseURL == "" {
		baseURL = webSearchDefaultURL
	}
	return Tool{
		Name: "web_search",
		Description: "Searches the web for current information. " +
			"Use this when the user asks about recent events, library versions, or anything outside the knowledge base.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "The search query"
				},
				"count": {
					"type": "integer",
					"description": "Number of results to return, between 1 and 10 (default 5)"
				}
			},
			"required": ["query"]
		}`),
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			var parsed webSearchArgs
			if err := json.Unmarshal(args, &parsed); err != nil {
				return fmt.Sprintf("error: invalid arguments for web search: %v", err), nil
			}
			query := strings.TrimSpace(parsed.Query)
			if query == "" {
				return "error: a non-empty query is required to search the web", nil
			}
			if apiKey == "" {
				return "Web search is not available: no search API key is configured. " +
					"Answer from what you already know and say the information may be out of date.", nil
			}
			count := parsed.Count
			if count <= 0 {
				count = webSearchDefaultCount
			}
			if count > webSearchMaxCount {
				count = webSearchMaxCount
			}
			return fetchWebResults(ctx, client, baseURL, apiKey, query, count), nil
		},
	}
}

// fetchWebResults calls the search API and formats the hits as a
// numbered title/url/snippet list.
func fetchWebResults(ctx context.Context, client *http.Client, baseURL, apiKey, query string, count int) string {
	fullURL := fmt.Sprintf("%s?q=%s&count=%d", baseURL, url.QueryEscape(query), count)
	req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
	if err != nil {
		return fmt.Sprintf("Could not build the web search request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Sprintf("The search API could not be reached: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("The search API returned status %d for query %q.", resp.StatusCode, query)
	}

	var decoded webSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Sprintf("Could not decode the search API response: %v", err)
	}
	if len(decoded.Web.Results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n", query)
	for i, r := range decoded.Web.Results {
		if i >= count {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n\n", i+1, r.Title, r.URL, r.Description)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
