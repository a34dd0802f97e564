// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// EnsureSchema creates the knowledge class if it does not exist yet.
// Vectors are supplied at ingestion time, so the class carries no
// vectorizer module.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	exists, err := client.Schema().ClassExistenceChecker().
		WithClassName(KnowledgeClass).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("check knowledge class: %w", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:       KnowledgeClass,
		Description: "Chunked knowledge-base documents for retrieval augmentation",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}, Description: "Chunk text"},
			{Name: "source", DataType: []string{"text"}, Description: "Document source label"},
			{Name: "chunk_index", DataType: []string{"int"}, Description: "Position within the source document"},
			{Name: "ingested_at", DataType: []string{"text"}, Description: "Ingestion timestamp (RFC3339)"},
		},
	}
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create knowledge class: %w", err)
	}
	slog.Info("created knowledge class", "class", KnowledgeClass)
	return nil
}
