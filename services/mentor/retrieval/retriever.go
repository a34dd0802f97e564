// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var retrievalTracer = otel.Tracer("codementor.services.mentor.retrieval")

const (
	// DefaultMinScore filters out weakly related passages.
	DefaultMinScore = 0.75
	// DefaultMaxResults caps how many passages augment one question.
	DefaultMaxResults = 5
	// KnowledgeClass is the Weaviate class holding document chunks.
	KnowledgeClass = "KnowledgeChunk"
)

// Snippet is one retrieved passage with its provenance.
type Snippet struct {
	Text   string
	Source string
	Score  float64
}

// Retriever finds knowledge-base passages relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Snippet, error)
}

// FormatContext renders snippets into the context block injected into
// the model prompt. Each passage is prefixed with its source name so the
// model can cite it.
func FormatContext(snippets []Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		parts = append(parts, fmt.Sprintf("Source: %s\n\n%s", s.Source, s.Text))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// WeaviateRetriever retrieves passages via nearVector search over the
// knowledge class.
type WeaviateRetriever struct {
	client     *weaviate.Client
	embed      *EmbeddingClient
	logger     *slog.Logger
	maxResults int
	minScore   float64
}

// NewWeaviateRetriever creates a retriever. Non-positive maxResults and
// minScore fall back to the defaults.
func NewWeaviateRetriever(client *weaviate.Client, embed *EmbeddingClient,
	maxResults int, minScore float64, logger *slog.Logger) *WeaviateRetriever {

	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WeaviateRetriever{
		client:     client,
		embed:      embed,
		logger:     logger,
		maxResults: maxResults,
		minScore:   minScore,
	}
}

// knowledgeQueryResult mirrors the GraphQL response shape for the
// knowledge class.
type knowledgeQueryResult struct {
	Get struct {
		KnowledgeChunk []struct {
			Content    string `json:"content"`
			Source     string `json:"source"`
			Additional struct {
				Certainty float64 `json:"certainty"`
			} `json:"_additional"`
		} `json:"KnowledgeChunk"`
	} `json:"Get"`
}

// Retrieve implements the Retriever interface.
//
// # Description
//
// Embeds the query, runs a nearVector search over the knowledge class,
// drops passages scoring below the minimum, and returns at most
// maxResults snippets ordered by descending score.
//
// # Inputs
//
//   - ctx: Request context.
//   - query: The user question to find supporting passages for.
//
// # Outputs
//
//   - []Snippet: Relevant passages, best first. May be empty.
//   - error: Embedding or search failure. Callers treat errors as
//     "no context" rather than failing the turn.
func (r *WeaviateRetriever) Retrieve(ctx context.Context, query string) ([]Snippet, error) {
	ctx, span := retrievalTracer.Start(ctx, "WeaviateRetriever.Retrieve")
	defer span.End()

	vector, err := r.embed.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embed query: %w", err)
	}

	nearVector := r.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector).
		WithCertainty(float32(r.minScore))

	result, err := r.client.GraphQL().Get().
		WithClassName(KnowledgeClass).
		WithNearVector(nearVector).
		WithLimit(r.maxResults).
		WithFields(
			graphql.Field{Name: "content"},
			graphql.Field{Name: "source"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
		).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query knowledge base: %w", err)
	}
	if len(result.Errors) > 0 {
		err := fmt.Errorf("knowledge base query error: %s", result.Errors[0].Message)
		span.RecordError(err)
		return nil, err
	}

	// Round-trip through JSON for a typed view of the response.
	jsonBytes, err := json.Marshal(result.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal knowledge response: %w", err)
	}
	var typed knowledgeQueryResult
	if err := json.Unmarshal(jsonBytes, &typed); err != nil {
		return nil, fmt.Errorf("unmarshal knowledge response: %w", err)
	}

	snippets := make([]Snippet, 0, len(typed.Get.KnowledgeChunk))
	for _, chunk := range typed.Get.KnowledgeChunk {
		if chunk.Additional.Certainty < r.minScore {
			continue
		}
		snippets = append(snippets, Snippet{
			Text:   chunk.Content,
			Source: chunk.Source,
			Score:  chunk.Additional.Certainty,
		})
	}
	sort.SliceStable(snippets, func(i, j int) bool {
		return snippets[i].Score > snippets[j].Score
	})
	if len(snippets) > r.maxResults {
		snippets = snippets[:r.maxResults]
	}

	span.SetAttributes(attribute.Int("retrieval.num_snippets", len(snippets)))
	r.logger.Debug("knowledge retrieval completed",
		"snippets", len(snippets), "min_score", r.minScore)
	return snippets, nil
}
