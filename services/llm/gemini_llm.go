// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
)

var geminiTracer = otel.Tracer("codementor.llm.gemini")

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultGeminiModel   = "gemini-1.5-flash"

	// generateFormatSuffix is appended to one-shot prompts so code in
	// the reply arrives in fenced blocks the clients can render.
	generateFormatSuffix = "\n\nFormat any code in your reply as fenced markdown code blocks with a language tag."
)

// GeminiClient talks to the Google AI Studio generateContent REST API in
// blocking mode. Streaming to clients is handled upstream by chunking
// the complete answer, so the streaming API variants are not used.
type GeminiClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
}

// Gemini API request structures.
type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string `json:"name"`
	Response struct {
		Content string `json:"content"`
	} `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"function_declarations"`
}

type geminiGenerationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiGenerateRequest struct {
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	Tools             []geminiTool           `json:"tools,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiClient builds a client from GEMINI_API_KEY, GEMINI_MODEL, and
// GEMINI_BASE_URL. The key falls back to the container secret at
// /run/secrets/gemini_api_key before failing.
func NewGeminiClient() (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/gemini_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the Gemini API key from container secrets")
		} else {
			slog.Error("GEMINI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	}
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = defaultGeminiModel
		slog.Warn("GEMINI_MODEL not set, defaulting", "model", model)
	}
	baseURL := os.Getenv("GEMINI_BASE_URL")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Gemini client", "base_url", baseURL, "model", model)
	return &GeminiClient{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    baseURL,
		model:      model,
		apiKey:     apiKey,
	}, nil
}

// ModelLabel implements the LLMClient interface.
func (g *GeminiClient) ModelLabel() string {
	return "Google AI Studio - " + g.model
}

// Generate implements the LLMClient interface.
func (g *GeminiClient) Generate(ctx context.Context, prompt string,
	params GenerationParams) (string, error) {

	ctx, span := geminiTracer.Start(ctx, "GeminiClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", g.model))

	messages := []datatypes.Message{
		{Role: datatypes.RoleUser, Content: prompt + generateFormatSuffix},
	}
	outcome, err := g.chat(ctx, messages, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return outcome.Answer, nil
}

// Chat implements the LLMClient interface.
//
// # Description
//
// Maps the role-tagged context onto the generateContent wire format:
// the leading system message becomes system_instruction, assistant
// turns become "model" contents (with functionCall parts when the turn
// requested tools), and tool results become functionResponse parts.
// Text parts and functionCall parts of the reply are folded into one
// ChatOutcome.
//
// # Limitations
//
//   - Only candidate zero is read; candidateCount is never requested.
func (g *GeminiClient) Chat(ctx context.Context, messages []datatypes.Message,
	params GenerationParams) (*ChatOutcome, error) {

	ctx, span := geminiTracer.Start(ctx, "GeminiClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", g.model),
		attribute.Int("llm.num_messages", len(messages)),
	)
	outcome, err := g.chat(ctx, messages, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("llm.outcome", string(outcome.Kind)))
	return outcome, nil
}

func (g *GeminiClient) chat(ctx context.Context, messages []datatypes.Message,
	params GenerationParams) (*ChatOutcome, error) {

	payload := geminiGenerateRequest{
		GenerationConfig: buildGeminiConfig(params),
	}
	for _, msg := range messages {
		switch msg.Role {
		case datatypes.RoleSystem:
			payload.SystemInstruction = &geminiContent{
				Parts: []geminiPart{{Text: msg.Content}},
			}
		case datatypes.RoleAssistant:
			content := geminiContent{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, geminiPart{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				content.Parts = append(content.Parts, geminiPart{
					FunctionCall: &geminiFunctionCall{Name: call.Name, Args: call.Arguments},
				})
			}
			payload.Contents = append(payload.Contents, content)
		case datatypes.RoleTool:
			fr := &geminiFunctionResponse{Name: msg.ToolName}
			fr.Response.Content = msg.Content
			payload.Contents = append(payload.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{FunctionResponse: fr}},
			})
		default:
			payload.Contents = append(payload.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		}
	}
	if len(params.Tools) > 0 {
		tool := geminiTool{}
		for _, def := range params.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, geminiFunctionDeclaration{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			})
		}
		payload.Tools = []geminiTool{tool}
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request to Gemini: %w", err)
	}

	generateURL := fmt.Sprintf("%s/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, "POST", generateURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request to Gemini: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The key travels in a header so it never appears in URLs, logs, or
	// trace attributes.
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		slog.Error("Gemini API call failed", "error", err)
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from Gemini: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("Gemini returned an error", "status_code", resp.StatusCode, "response", string(respBody))
		return nil, fmt.Errorf("Gemini failed with status %d", resp.StatusCode)
	}

	var geminiResp geminiGenerateResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		slog.Error("Failed to parse JSON response from Gemini", "error", err)
		return nil, fmt.Errorf("failed to parse Gemini response: %w", err)
	}
	if len(geminiResp.Candidates) == 0 {
		slog.Warn("Gemini returned no candidates")
		return nil, fmt.Errorf("Gemini returned no candidates")
	}

	candidate := geminiResp.Candidates[0]
	outcome := &ChatOutcome{
		Kind:         OutcomeFinal,
		FinishReason: candidate.FinishReason,
		Usage: &datatypes.TokenUsage{
			InputTokens:  geminiResp.UsageMetadata.PromptTokenCount,
			OutputTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
		},
	}
	var text strings.Builder
	for i, part := range candidate.Content.Parts {
		if part.FunctionCall != nil {
			outcome.ToolCalls = append(outcome.ToolCalls, datatypes.ToolCall{
				ID:        fmt.Sprintf("call_%d", i),
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
			continue
		}
		text.WriteString(part.Text)
	}
	outcome.Answer = text.String()
	if len(outcome.ToolCalls) > 0 {
		outcome.Kind = OutcomeToolCalls
	}
	return outcome, nil
}

func buildGeminiConfig(params GenerationParams) geminiGenerationConfig {
	cfg := geminiGenerationConfig{
		Temperature:     params.Temperature,
		TopK:            params.TopK,
		TopP:            params.TopP,
		MaxOutputTokens: params.MaxTokens,
		StopSequences:   params.Stop,
	}
	if cfg.Temperature == nil {
		defaultTemp := float32(0.7)
		cfg.Temperature = &defaultTemp
	}
	if cfg.MaxOutputTokens == nil {
		defaultMaxTokens := 2000
		cfg.MaxOutputTokens = &defaultMaxTokens
	}
	return cfg
}
