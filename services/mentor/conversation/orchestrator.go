// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conversation implements the turn orchestrator: the pipeline
// that takes one user input through gating, retrieval, context
// composition, the model/tool loop, and memory finalization.
package conversation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/llm"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/memory"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/observability"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/retrieval"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/safety"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/tools"
)

var turnTracer = otel.Tracer("codementor.services.mentor.conversation")

// DefaultMaxToolRounds caps the model/tool loop per turn. When the
// model keeps requesting tools past the cap, one last call is made with
// tools disabled so the turn still ends with text.
const DefaultMaxToolRounds = 5

// roundCapFallback is returned when the final tools-disabled call still
// yields no text at all.
const roundCapFallback = "I could not finish gathering information for that question. " +
	"Please try asking again, perhaps with a narrower scope."

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	Answer  string
	Blocked bool
	Sources []datatypes.SourceInfo
	Usage   *datatypes.TokenUsage
	// Rounds counts model calls made for the turn.
	Rounds int
}

// Orchestrator drives the turn pipeline. Construct once at startup; it
// is safe for concurrent use.
type Orchestrator struct {
	llmClient  llm.LLMClient
	gate       *safety.Gate
	store      *memory.Store
	retriever  retrieval.Retriever
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	observer   observability.ModelObserver
	logger     *slog.Logger

	systemPrompt  string
	maxToolRounds int
}

// Config carries the orchestrator dependencies and tuning knobs.
type Config struct {
	LLMClient llm.LLMClient
	Gate      *safety.Gate
	Store     *memory.Store
	// Retriever may be nil to run without knowledge augmentation.
	Retriever  retrieval.Retriever
	Registry   *tools.Registry
	Dispatcher *tools.Dispatcher
	// Observer may be nil; a no-op MultiObserver is used then.
	Observer observability.ModelObserver
	Logger   *slog.Logger

	SystemPrompt  string
	MaxToolRounds int
}

// NewOrchestrator validates the config and builds an Orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = observability.NewMultiObserver(cfg.Logger)
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	return &Orchestrator{
		llmClient:     cfg.LLMClient,
		gate:          cfg.Gate,
		store:         cfg.Store,
		retriever:     cfg.Retriever,
		registry:      cfg.Registry,
		dispatcher:    cfg.Dispatcher,
		observer:      cfg.Observer,
		logger:        cfg.Logger,
		systemPrompt:  cfg.SystemPrompt,
		maxToolRounds: cfg.MaxToolRounds,
	}
}

// ModelLabel returns the backend's display label for response metadata.
func (o *Orchestrator) ModelLabel() string {
	return o.llmClient.ModelLabel()
}

// RunTurn executes one full conversational turn for a session.
//
// # Description
//
// The pipeline runs in fixed order: gate the input, retrieve knowledge,
// compose the context from system prompt + session history + input, run
// the model/tool loop, then append the user/assistant pair to session
// memory. The append happens before the result is returned, so delivery
// (including streaming delivery that the client may abandon) can never
// leave the session without the completed turn.
//
// # Inputs
//
//   - ctx: Request context; cancellation aborts the model loop.
//   - sessionID: Session key. Created lazily on first use.
//   - input: The user's message, already size-validated by the handler.
//
// # Outputs
//
//   - *TurnResult: Blocked refusal or the final answer with sources.
//   - error: *ModelError when the backend failed. Gate refusals are not
//     errors; they come back as Blocked results.
//
// # Limitations
//
//   - Retrieval failures are demoted to warnings; the turn proceeds
//     without knowledge context.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID, input string) (*TurnResult, error) {
	ctx, span := turnTracer.Start(ctx, "Orchestrator.RunTurn")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	// Step 1: Gate the input before anything else touches it.
	if verdict := o.gate.Check(input); verdict.Blocked {
		safety.LogBlocked(ctx, o.logger, sessionID, verdict)
		span.SetAttributes(attribute.Bool("turn.blocked", true))
		return &TurnResult{Answer: safety.RefusalMessage, Blocked: true}, nil
	}

	// Step 2: Retrieve knowledge. Failure means no context, not a dead
	// turn.
	snippets := o.retrieve(ctx, input)

	// Step 3: Compose the model context from the memory snapshot.
	history := o.store.History(sessionID)
	messages := composeContext(o.systemPrompt, snippets, history, input)

	// Step 4: Run the model/tool loop.
	answer, usage, rounds, err := o.runModelLoop(ctx, sessionID, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Step 5: Finalize memory before anyone sees the answer.
	o.store.Append(sessionID,
		datatypes.Message{Role: datatypes.RoleUser, Content: input},
		datatypes.Message{Role: datatypes.RoleAssistant, Content: answer},
	)

	span.SetAttributes(attribute.Int("turn.rounds", rounds))
	return &TurnResult{
		Answer:  answer,
		Sources: toSourceInfo(snippets),
		Usage:   usage,
		Rounds:  rounds,
	}, nil
}

// AnswerWithKnowledge answers one question against the knowledge base
// without session memory. Used by the knowledge endpoint; gating and
// the tool loop still apply, but nothing is persisted.
func (o *Orchestrator) AnswerWithKnowledge(ctx context.Context, input string) (*TurnResult, error) {
	ctx, span := turnTracer.Start(ctx, "Orchestrator.AnswerWithKnowledge")
	defer span.End()

	if verdict := o.gate.Check(input); verdict.Blocked {
		safety.LogBlocked(ctx, o.logger, "", verdict)
		return &TurnResult{Answer: safety.RefusalMessage, Blocked: true}, nil
	}

	snippets := o.retrieve(ctx, input)
	messages := composeContext(o.systemPrompt, snippets, nil, input)

	answer, usage, rounds, err := o.runModelLoop(ctx, "", messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &TurnResult{
		Answer:  answer,
		Sources: toSourceInfo(snippets),
		Usage:   usage,
		Rounds:  rounds,
	}, nil
}

// GenerateReport produces a structured learning report from a student
// description. The blocked flag is true when the gate refused the
// input; the report is nil then.
func (o *Orchestrator) GenerateReport(ctx context.Context, input string) (*datatypes.LearningReport, bool, error) {
	ctx, span := turnTracer.Start(ctx, "Orchestrator.GenerateReport")
	defer span.End()

	if verdict := o.gate.Check(input); verdict.Blocked {
		safety.LogBlocked(ctx, o.logger, "", verdict)
		return nil, true, nil
	}

	raw, err := o.llmClient.Generate(ctx, reportPrompt+input, llm.GenerationParams{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, &ModelError{Model: o.llmClient.ModelLabel(), Err: err}
	}
	return datatypes.ParseLearningReport(raw), false, nil
}

// retrieve wraps the retriever with the degrade-to-empty policy.
func (o *Orchestrator) retrieve(ctx context.Context, input string) []retrieval.Snippet {
	if o.retriever == nil {
		return nil
	}
	snippets, err := o.retriever.Retrieve(ctx, input)
	if err != nil {
		o.logger.Warn("knowledge retrieval failed, continuing without context", "error", err)
		return nil
	}
	return snippets
}

// runModelLoop drives the model until it produces text, executing tool
// calls between rounds. After maxToolRounds tool rounds, one last call
// is made with tools withheld so the model has to answer with what it
// has.
func (o *Orchestrator) runModelLoop(ctx context.Context, sessionID string,
	messages []datatypes.Message) (string, *datatypes.TokenUsage, int, error) {

	ctx, span := turnTracer.Start(ctx, "Orchestrator.runModelLoop")
	defer span.End()

	var toolDefs []llm.ToolDefinition
	if o.registry != nil && o.registry.Len() > 0 {
		toolDefs = o.registry.Definitions()
	}

	usage := &datatypes.TokenUsage{}
	rounds := 0
	for {
		finalRound := rounds >= o.maxToolRounds
		params := llm.GenerationParams{}
		if !finalRound {
			params.Tools = toolDefs
		}

		info := observability.ModelCallInfo{
			SessionID:   sessionID,
			Model:       o.llmClient.ModelLabel(),
			NumMessages: len(messages),
			Round:       rounds,
		}
		o.observer.OnRequest(info)

		start := time.Now()
		outcome, err := o.llmClient.Chat(ctx, messages, params)
		rounds++
		if err != nil {
			o.observer.OnError(info, err)
			return "", nil, rounds, &ModelError{Model: o.llmClient.ModelLabel(), Err: err}
		}
		o.observer.OnResponse(info, observability.ModelCallResult{
			Outcome:      string(outcome.Kind),
			FinishReason: outcome.FinishReason,
			InputTokens:  tokenCount(outcome.Usage, true),
			OutputTokens: tokenCount(outcome.Usage, false),
			Duration:     time.Since(start),
		})
		usage.Add(outcome.Usage)

		if outcome.Kind == llm.OutcomeFinal {
			span.SetAttributes(attribute.Int("loop.rounds", rounds))
			return outcome.Answer, usage, rounds, nil
		}
		if finalRound {
			// Tools were withheld and the backend still reported tool
			// calls. Treat whatever text came along as the answer.
			o.logger.Warn("model requested tools on the final round",
				"session_id", sessionID, "rounds", rounds)
			answer := outcome.Answer
			if answer == "" {
				answer = roundCapFallback
			}
			return answer, usage, rounds, nil
		}

		o.logger.Debug("model requested tools",
			"session_id", sessionID,
			"round", rounds,
			"num_calls", len(outcome.ToolCalls))

		messages = append(messages, datatypes.Message{
			Role:      datatypes.RoleAssistant,
			Content:   outcome.Answer,
			ToolCalls: outcome.ToolCalls,
		})
		messages = append(messages, o.dispatcher.Dispatch(ctx, outcome.ToolCalls)...)
	}
}

func toSourceInfo(snippets []retrieval.Snippet) []datatypes.SourceInfo {
	if len(snippets) == 0 {
		return nil
	}
	sources := make([]datatypes.SourceInfo, 0, len(snippets))
	for _, s := range snippets {
		sources = append(sources, datatypes.SourceInfo{Source: s.Source, Score: s.Score})
	}
	return sources
}

func tokenCount(u *datatypes.TokenUsage, input bool) int {
	if u == nil {
		return 0
	}
	if input {
		return u.InputTokens
	}
	return u.OutputTokens
}
