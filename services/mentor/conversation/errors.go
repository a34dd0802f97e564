// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import "fmt"

// ModelError is returned when the model backend fails after the safety
// gate passed. Handlers map it to HTTP 502 with a sanitized message;
// the wrapped error stays in logs only.
type ModelError struct {
	Model string
	Err   error
}

// Error implements the error interface for ModelError.
func (e *ModelError) Error() string {
	return fmt.Sprintf("model call failed (%s): %v", e.Model, e.Err)
}

// Unwrap exposes the underlying backend error.
func (e *ModelError) Unwrap() error {
	return e.Err
}

// IsModelError checks if an error is a *ModelError. Useful for handlers
// choosing an HTTP status code.
func IsModelError(err error) bool {
	_, ok := err.(*ModelError)
	return ok
}
