// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "github.com/go-playground/validator/v10"

// =============================================================================
// Knowledge Retrieval Types
// =============================================================================

// SourceInfo identifies one knowledge-base passage that grounded an
// answer. Score is the similarity in [0,1], higher is more relevant.
type SourceInfo struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// KnowledgeRequest is the body of POST /v1/chat/knowledge. The query is
// answered against the knowledge base without session memory.
type KnowledgeRequest struct {
	Message string `json:"message" validate:"required,maxbytes"`
}

// Validate validates the KnowledgeRequest fields.
func (r *KnowledgeRequest) Validate() error {
	return chatValidate.Struct(r)
}

// KnowledgeResponse is the body returned by POST /v1/chat/knowledge.
type KnowledgeResponse struct {
	Answer  string       `json:"answer"`
	Model   string       `json:"model"`
	Sources []SourceInfo `json:"sources"`
}

// =============================================================================
// Document Ingestion Types
// =============================================================================

// ragValidate is separate from chatValidate so document payloads can use
// their own size rules without touching the chat limits.
var ragValidate = validator.New()

// IngestDocumentRequest is the body of POST /v1/documents. Content is
// split into overlapping chunks, embedded, and stored in the vector
// database under the given source label.
type IngestDocumentRequest struct {
	Source  string `json:"source" validate:"required,max=512"`
	Content string `json:"content" validate:"required"`
}

// Validate validates the IngestDocumentRequest fields.
func (r *IngestDocumentRequest) Validate() error {
	return ragValidate.Struct(r)
}

// IngestDocumentResponse reports the outcome of document ingestion.
type IngestDocumentResponse struct {
	Source      string `json:"source"`
	ChunksTotal int    `json:"chunks_total"`
	Stored      int    `json:"stored"`
}
