// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// Learning Report Types
// =============================================================================

// fallbackSubjectLabel labels a report when the model output could not be
// parsed into the structured form.
const fallbackSubjectLabel = "Programming Student"

// ReportRequest is the body of POST /v1/learning-report. Message
// describes the student's situation and goals in free text.
type ReportRequest struct {
	Message string `json:"message" validate:"required,maxbytes"`
}

// Validate validates the ReportRequest fields.
func (r *ReportRequest) Validate() error {
	return chatValidate.Struct(r)
}

// LearningReport is a structured study plan extracted from a model
// response.
type LearningReport struct {
	SubjectLabel    string   `json:"subject_label"`
	Recommendations []string `json:"recommendations"`
}

// ParseLearningReport extracts a LearningReport from raw model output.
//
// The model is instructed to reply with a JSON object, but smaller models
// wrap it in markdown fences or ignore the instruction entirely. The
// parser strips fences and attempts JSON decoding; when that fails, each
// non-empty line of the output becomes a recommendation under a generic
// student name so the caller always gets a usable report.
func ParseLearningReport(raw string) *LearningReport {
	cleaned := stripCodeFence(raw)

	var report LearningReport
	if err := json.Unmarshal([]byte(cleaned), &report); err == nil && len(report.Recommendations) > 0 {
		if report.SubjectLabel == "" {
			report.SubjectLabel = fallbackSubjectLabel
		}
		return &report
	}

	report = LearningReport{SubjectLabel: fallbackSubjectLabel}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		report.Recommendations = append(report.Recommendations, line)
	}
	return &report
}

// stripCodeFence removes a surrounding markdown code fence, with or
// without a language tag, returning the inner text.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
