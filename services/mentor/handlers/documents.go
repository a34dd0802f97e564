// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
	"golang.org/x/sync/errgroup"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/observability"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/retrieval"
)

var (
	chunkSize    = 1000
	chunkOverlap = 200
	// embedWorkers bounds concurrent calls into the embedding sidecar.
	embedWorkers = 4
)

// embeddedChunk pairs a chunk of text with its vector, keeping the
// original chunk index for deterministic batch order.
type embeddedChunk struct {
	index  int
	text   string
	vector []float32
}

// HandleIngestDocument returns the handler for POST /v1/documents.
//
// # Description
//
// Splits the document into overlapping chunks, embeds the chunks in
// parallel, and batch-inserts them into the knowledge class with their
// vectors. The source label travels with every chunk so retrieval can
// attribute passages.
//
// # Inputs
//
//   - client: Weaviate client.
//   - embed: Embedding sidecar client.
//   - metrics: May be nil in tests.
//
// # Outputs
//
//   - gin.HandlerFunc: 201 with ingestion counts, 400 on validation
//     failure, 502 when embedding or storage failed.
func HandleIngestDocument(client *weaviate.Client, embed *retrieval.EmbeddingClient,
	metrics *observability.ChatMetrics) gin.HandlerFunc {

	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleIngestDocument")
		defer span.End()
		start := time.Now()

		var req datatypes.IngestDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			recordError(metrics, observability.EndpointDocuments, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			recordError(metrics, observability.EndpointDocuments, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		chunks, err := splitDocument(req.Content)
		if err != nil {
			span.RecordError(err)
			recordError(metrics, observability.EndpointDocuments, observability.ErrorCodeInternal)
			c.JSON(http.StatusBadRequest, gin.H{"error": "document could not be split"})
			return
		}
		if len(chunks) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "document produced no chunks"})
			return
		}

		embedded, err := embedChunks(ctx, embed, chunks)
		if err != nil {
			span.RecordError(err)
			slog.Error("chunk embedding failed", "source", req.Source, "error", err)
			recordError(metrics, observability.EndpointDocuments, observability.ErrorCodeRetrieval)
			recordRequest(metrics, observability.EndpointDocuments, false, start)
			c.JSON(http.StatusBadGateway, gin.H{"error": "embedding service unavailable"})
			return
		}

		stored, err := storeChunks(ctx, client, req.Source, embedded)
		if err != nil {
			span.RecordError(err)
			slog.Error("chunk storage failed", "source", req.Source, "error", err)
			recordError(metrics, observability.EndpointDocuments, observability.ErrorCodeRetrieval)
			recordRequest(metrics, observability.EndpointDocuments, false, start)
			c.JSON(http.StatusBadGateway, gin.H{"error": "knowledge base unavailable"})
			return
		}

		slog.Info("document ingested",
			"source", req.Source,
			"chunks", len(chunks),
			"stored", stored)
		recordRequest(metrics, observability.EndpointDocuments, true, start)
		c.JSON(http.StatusCreated, datatypes.IngestDocumentResponse{
			Source:      req.Source,
			ChunksTotal: len(chunks),
			Stored:      stored,
		})
	}
}

// splitDocument breaks content into overlapping chunks suited to
// embedding.
func splitDocument(content string) ([]string, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
	return splitter.SplitText(content)
}

// embedChunks embeds chunks with a bounded worker pool, preserving
// chunk order in the result.
func embedChunks(ctx context.Context, embed *retrieval.EmbeddingClient,
	chunks []string) ([]embeddedChunk, error) {

	results := make([]embeddedChunk, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)
	for i, chunk := range chunks {
		g.Go(func() error {
			vector, err := embed.Embed(gctx, chunk)
			if err != nil {
				return err
			}
			results[i] = embeddedChunk{index: i, text: chunk, vector: vector}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// storeChunks batch-inserts embedded chunks into the knowledge class.
func storeChunks(ctx context.Context, client *weaviate.Client, source string,
	chunks []embeddedChunk) (int, error) {

	objects := make([]*models.Object, 0, len(chunks))
	ingestedAt := time.Now().UTC().Format(time.RFC3339)
	for _, chunk := range chunks {
		objects = append(objects, &models.Object{
			ID:    strfmt.UUID(uuid.New().String()),
			Class: retrieval.KnowledgeClass,
			Properties: map[string]interface{}{
				"content":     chunk.text,
				"source":      source,
				"chunk_index": chunk.index,
				"ingested_at": ingestedAt,
			},
			Vector: chunk.vector,
		})
	}

	resp, err := client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, err
	}
	stored := 0
	for _, obj := range resp {
		if obj.Result == nil || obj.Result.Errors == nil {
			stored++
		}
	}
	return stored, nil
}
