// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package safety implements the input gate that screens user text before
// any model call.
//
// The gate is a whole-token denylist: input is lowercased, split on
// non-word boundaries, and each token is compared against the denylist
// exactly. Substring containment does not match, so "killer" passes even
// though "kill" is denied. This is deliberately coarse and cannot read
// intent; "how do I kill a Java thread" is blocked like any other use of
// the token.
package safety

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var gateTracer = otel.Tracer("codementor.services.mentor.safety")

// RefusalMessage is the fixed user-safe text returned for blocked input.
// It never varies with the input so the gate cannot be probed for which
// token triggered it.
const RefusalMessage = "Sorry, I can't help with that request. Let's keep the conversation focused on learning and programming."

// builtinDenylist is always active regardless of configuration.
var builtinDenylist = []string{
	"kill", "murder", "violence", "harm", "attack", "destroy",
	"hate", "abuse", "threat", "weapon", "bomb", "suicide",
}

// tokenSplit separates input into word tokens. Anything that is not a
// letter, digit, or underscore is a boundary, matching \W+ semantics.
var tokenSplit = regexp.MustCompile(`\W+`)

// Verdict is the result of screening one input.
type Verdict struct {
	Blocked bool
	// Reason names the matched token for logs and telemetry. It is never
	// surfaced to the end user.
	Reason string
}

// Gate screens user input against a denylist of sensitive tokens.
// A Gate is immutable after construction and safe for concurrent use.
type Gate struct {
	denied map[string]struct{}
}

// NewGate creates a Gate from the built-in denylist plus any extra
// tokens. Extra tokens are lowercased; empty entries are ignored.
func NewGate(extra []string) *Gate {
	denied := make(map[string]struct{}, len(builtinDenylist)+len(extra))
	for _, w := range builtinDenylist {
		denied[w] = struct{}{}
	}
	for _, w := range extra {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			denied[w] = struct{}{}
		}
	}
	return &Gate{denied: denied}
}

// Check screens the input and returns a Verdict. Empty input passes.
//
// # Description
//
// Lowercases the input, splits it on non-word characters, and looks each
// token up in the denylist. The first match blocks; scanning stops there
// since the refusal text does not depend on which or how many tokens
// matched.
//
// # Inputs
//
//   - input: The raw user text to screen.
//
// # Outputs
//
//   - Verdict: Blocked with the matched token as Reason, or a pass.
//
// # Limitations
//
//   - Token matching only; no semantic understanding. Legitimate
//     technical phrasing that happens to use a denied token is blocked.
func (g *Gate) Check(input string) Verdict {
	tokens := tokenSplit.Split(strings.ToLower(input), -1)
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if _, ok := g.denied[tok]; ok {
			return Verdict{Blocked: true, Reason: tok}
		}
	}
	return Verdict{Blocked: false}
}

// LogBlocked records a blocked verdict on the current span and logger.
// The matched token stays in telemetry; only RefusalMessage reaches the
// client.
func LogBlocked(ctx context.Context, logger *slog.Logger, sessionID string, v Verdict) {
	_, span := gateTracer.Start(ctx, "safety.blocked")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("gate.matched_token", v.Reason),
	)
	logger.Warn("input blocked by safety gate",
		"session_id", sessionID,
		"matched_token", v.Reason)
}
