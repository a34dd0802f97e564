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
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	// interviewSearchURL is the question-bank search page the tool
	// scrapes. The keyword goes into the searchText query parameter.
	interviewSearchURL = "https://www.mianshiya.com/search/all"

	// maxInterviewQuestions caps how many titles one call returns.
	maxInterviewQuestions = 20
)

// interviewArgs is the argument shape advertised to the model.
type interviewArgs struct {
	Keyword string `json:"keyword"`
}

// NewInterviewQuestionTool returns the tool that searches a public
// question bank for interview questions matching a keyword. An empty
// searchURL uses the default question bank.
//
// Failures never propagate as errors: network problems and empty result
// sets come back as explanation strings, so the model can tell the user
// what happened instead of the turn dying.
func NewInterviewQuestionTool(client *http.Client, searchURL string) Tool {
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}
	if searchURL == "" {
		searchURL = interviewSearchURL
	}
	return Tool{
		Name: "search_interview_questions",
		Description: "Searches an interview question bank for questions matching a keyword. " +
			"Use this when the user asks about interview preparation for a specific topic.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"keyword": {
					"type": "string",
					"description": "The topic to search interview questions for, e.g. 'goroutine' or 'Redis'"
				}
			},
			"required": ["keyword"]
		}`),
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			var parsed interviewArgs
			if err := json.Unmarshal(args, &parsed); err != nil {
				return fmt.Sprintf("error: invalid arguments for interview question search: %v", err), nil
			}
			keyword := strings.TrimSpace(parsed.Keyword)
			if keyword == "" {
				return "error: a non-empty keyword is required to search interview questions", nil
			}
			return fetchInterviewQuestions(ctx, client, searchURL, keyword), nil
		},
	}
}

// fetchInterviewQuestions fetches the search page and formats the
// question titles as a numbered list.
func fetchInterviewQuestions(ctx context.Context, client *http.Client, searchURL, keyword string) string {
	fullURL := searchURL + "?searchText=" + url.QueryEscape(keyword)
	req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
	if err != nil {
		return fmt.Sprintf("Could not build the interview question search request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Sprintf("The interview question site could not be reached: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("The interview question site returned status %d for keyword %q.", resp.StatusCode, keyword)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Sprintf("Could not read the interview question search results: %v", err)
	}

	titles := ExtractQuestionTitles(string(body), maxInterviewQuestions)
	if len(titles) == 0 {
		return fmt.Sprintf("No interview questions found for keyword %q.", keyword)
	}
	return FormatQuestionList(keyword, titles)
}

// ExtractQuestionTitles parses the search result page and returns the
// text of anchors that sit directly inside a result table cell
// (class "ant-table-cell"), up to max entries.
func ExtractQuestionTitles(page string, max int) []string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var titles []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(titles) >= max {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "ant-table-cell") {
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				if child.Type == html.ElementNode && child.Data == "a" {
					title := strings.TrimSpace(nodeText(child))
					if title != "" {
						titles = append(titles, title)
						if len(titles) >= max {
							return
						}
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return titles
}

// FormatQuestionList renders titles as the numbered list handed back to
// the model.
func FormatQuestionList(keyword string, titles []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Interview questions for %q:\n", keyword)
	for i, title := range titles {
		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
	}
	return b.String()
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}
