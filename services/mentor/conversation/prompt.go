// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/datatypes"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/retrieval"
)

// DefaultSystemPrompt sets the mentor persona. Overridable per
// deployment through configuration.
const DefaultSystemPrompt = `You are an experienced programming mentor. You help students learn
software development: answering technical questions, reviewing code,
explaining concepts, and preparing for interviews.

Guidelines:
- Explain reasoning, not just answers. Prefer small runnable examples.
- When the student shares code, point out concrete improvements.
- Always format code blocks with markdown fences and a language tag.
- When background knowledge passages are provided, ground your answer
  in them and mention the source names you relied on.
- Stay on the topics of programming, computer science, and careers in
  software. Politely decline anything else.`

// knowledgePreamble introduces retrieved passages inside the prompt.
const knowledgePreamble = "Background knowledge retrieved for this question:"

// reportPrompt instructs the model to produce a structured learning
// report. The JSON shape matches datatypes.LearningReport.
const reportPrompt = `Based on the following description of a student, produce a learning
report as a JSON object with exactly these fields:
  "subject_label": the student's name, or "Programming Student" if not given
  "recommendations": an array of concrete study recommendations, most
  important first

Reply with the JSON object only, no surrounding prose.

Student description:
`

// composeContext assembles the model context for one turn: the system
// prompt (with retrieved knowledge appended when present), the session
// history, and the new user input.
func composeContext(systemPrompt string, snippets []retrieval.Snippet,
	history []datatypes.Message, input string) []datatypes.Message {

	system := systemPrompt
	if block := retrieval.FormatContext(snippets); block != "" {
		system += "\n\n" + knowledgePreamble + "\n\n" + block
	}

	messages := make([]datatypes.Message, 0, len(history)+2)
	messages = append(messages, datatypes.Message{
		Role:    datatypes.RoleSystem,
		Content: system,
	})
	messages = append(messages, history...)
	messages = append(messages, datatypes.Message{
		Role:    datatypes.RoleUser,
		Content: input,
	})
	return messages
}
