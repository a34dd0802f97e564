// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package emitter turns a complete answer into a paced sequence of
// word-level chunks for streaming delivery.
//
// The model is called in blocking mode, so the full answer exists before
// the first byte reaches the client. Chunking plus a fixed inter-chunk
// delay recreates the feel of incremental generation while keeping the
// model integration simple.
package emitter

import (
	"context"
	"strings"
	"time"
)

// DefaultDelay is the pause between consecutive chunks.
const DefaultDelay = 50 * time.Millisecond

// Chunks splits an answer into word-level chunks for paced delivery.
//
// Splitting is per line. Every word in a line except the last carries a
// trailing space; the last word of a line carries a newline terminator,
// including on the final line. A blank interior line becomes a single
// "\n" chunk. Concatenating the chunks reproduces the input with a
// normalized trailing newline.
func Chunks(answer string) []string {
	if answer == "" {
		return nil
	}

	var chunks []string
	lines := strings.Split(answer, "\n")
	for i, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			// The final element of Split is empty when the input already
			// ends in a newline; the terminator was emitted with the
			// previous line.
			if i < len(lines)-1 {
				chunks = append(chunks, "\n")
			}
			continue
		}
		for j, word := range words {
			if j < len(words)-1 {
				chunks = append(chunks, word+" ")
			} else {
				chunks = append(chunks, word+"\n")
			}
		}
	}
	return chunks
}

// Escape encodes a chunk for the data field of a Server-Sent Event.
// Newlines would otherwise terminate the event frame early, so they are
// replaced with the literal two-character sequence "\n" for the client
// to decode.
func Escape(chunk string) string {
	return strings.ReplaceAll(chunk, "\n", "\\n")
}

// Stream delivers chunks on a channel with a fixed delay between
// consecutive sends. Production is lazy: nothing is buffered ahead, and
// cancelling the context stops the producer promptly.
type Stream struct {
	chunks []string
	delay  time.Duration
}

// NewStream creates a Stream over the given chunks. A non-positive delay
// falls back to DefaultDelay.
func NewStream(chunks []string, delay time.Duration) *Stream {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Stream{chunks: chunks, delay: delay}
}

// Run starts the producer goroutine and returns its output channel. The
// first chunk is sent without delay; each subsequent chunk waits the
// configured interval first. The channel closes after the last chunk or
// as soon as ctx is cancelled.
func (s *Stream) Run(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.delay)
		defer ticker.Stop()

		for i, chunk := range s.chunks {
			if i > 0 {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
