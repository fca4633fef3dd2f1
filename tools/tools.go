// Package tools defines the production tool surface: the executor contract,
// the closed registry of tools in their six groups, and the JSON payload
// conventions every tool follows.
//
// Payload convention: every tool returns a JSON object with a boolean
// "success". In-band failures (bad arguments, missing prerequisites) are
// returned as {"success":false,"error":...,"suggestion":...} payloads with a
// nil Go error so the model sees the diagnostic and can correct itself.
// A non-nil Go error is reserved for infrastructure failures the recovery
// harness should classify and retry.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/session"
)

// Executor serves one or more production tools.
type Executor interface {
	// Execute runs the named tool and returns its JSON payload.
	Execute(ctx context.Context, call llm.ToolCall) (string, error)
	// ListTools returns the definitions of every tool this executor serves.
	ListTools() []llm.ToolDefinition
}

// Success renders a success payload with the given fields merged in.
func Success(fields map[string]any) string {
	payload := map[string]any{"success": true}
	for k, v := range fields {
		payload[k] = v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return `{"success":true}`
	}
	return string(b)
}

// Failure renders an in-band failure payload. The suggestion is optional.
func Failure(message, suggestion string) string {
	payload := map[string]any{
		"success": false,
		"error":   message,
	}
	if suggestion != "" {
		payload["suggestion"] = suggestion
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return `{"success":false}`
	}
	return string(b)
}

// Failuref renders an in-band failure payload with a formatted message.
func Failuref(suggestion, format string, args ...any) string {
	return Failure(fmt.Sprintf(format, args...), suggestion)
}

// FailureWithCategory renders an in-band failure payload that also names the
// error category the orchestrator should record. Failures without a category
// field are recorded as validation errors.
func FailureWithCategory(message, suggestion string, category production.ErrorCategory) string {
	payload := map[string]any{
		"success":  false,
		"error":    message,
		"category": string(category),
	}
	if suggestion != "" {
		payload["suggestion"] = suggestion
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return `{"success":false}`
	}
	return string(b)
}

// PayloadCategory extracts the error category from a failure payload,
// falling back to validation when none is present.
func PayloadCategory(payload string) production.ErrorCategory {
	var probe struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil || probe.Category == "" {
		return production.CategoryValidation
	}
	return production.ErrorCategory(probe.Category)
}

// PayloadSuccessful reports whether a tool payload is logically successful.
// Only an explicit "success": false counts as failure; payloads that do not
// parse or carry no success field pass.
func PayloadSuccessful(payload string) bool {
	var probe struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		return true
	}
	return probe.Success == nil || *probe.Success
}

// UnknownTool renders the payload for a tool name the executor does not
// serve, alongside the matching Go error.
func UnknownTool(name string) (string, error) {
	err := fmt.Errorf("unknown tool: %s", name)
	return Failure(err.Error(), ""), err
}

// ResolveSession validates the session id held in the named argument and
// loads its state from the store. The returned error message is written for
// the model: callers pass it to Failure verbatim.
func ResolveSession(store *session.Store, call llm.ToolCall, arg string) (*production.State, error) {
	id, ok := call.StringArg(arg)
	if !ok || id == "" {
		return nil, fmt.Errorf("%s is required", arg)
	}
	if err := production.ValidateSessionID(id); err != nil {
		return nil, err
	}
	state, err := store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("no production session %q exists; it may have been cleared", id)
	}
	return state, nil
}

// SessionSuggestion is the standard suggestion attached to session-id
// failures.
const SessionSuggestion = "pass the exact sessionId returned by plan_video or an import tool"
