// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command mentor starts the CodeMentor conversational mentor HTTP server.
//
// This is the main entry point for the containerized mentor service. It
// reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - MENTOR_PORT: HTTP server port (default: 12310)
//   - LLM_BACKEND_TYPE: LLM provider - gemini, openai, ollama (default: gemini)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - EMBEDDING_SERVICE_URL: embedding sidecar URL (required for RAG)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: codementor-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o mentor ./cmd/mentor
//
//	# Run
//	./mentor serve
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/observability"
)

var rootCmd = &cobra.Command{
	Use:   "mentor",
	Short: "CodeMentor conversational programming mentor",
	Long: `Mentor serves a safety-gated, knowledge-augmented chat API for
programming students, backed by a pluggable LLM provider.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mentor HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := observability.InitTracer("mentor-service")
	if err != nil {
		return err
	}
	defer cleanup(context.Background())

	cfg := mentor.ConfigFromEnv()
	slog.Info("Starting mentor service",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"weaviate_url", cfg.WeaviateURL)

	svc, err := mentor.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return svc.Run(ctx)
}
