// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse is the envelope every --json command writes.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data interface{} `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the RFC3339 time the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response to w with indentation.
func (r *JSONResponse) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// PAYLOADS
// =============================================================================

// PasscodeStatus is the data for "passcode status".
type PasscodeStatus struct {
	Enabled  bool   `json:"enabled"`
	Length   int    `json:"length"`
	Disguise string `json:"disguise"`
	Locked   bool   `json:"locked"`
}

// PresetInfo is one entry of "preset list".
type PresetInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// DisguiseInfo is one entry of "disguise list".
type DisguiseInfo struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	RequiresPasscode bool   `json:"requires_passcode"`
	Active           bool   `json:"active"`
}

// PanicStatus is the data for "panic status".
type PanicStatus struct {
	Armed   bool   `json:"armed"`
	Key     string `json:"key"`
	Presses int    `json:"presses"`
}

// WeakCheck is the data for "check-weak".
type WeakCheck struct {
	Weak bool `json:"weak"`
}
