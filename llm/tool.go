package llm

import "encoding/json"

// ToolDefinition describes one tool offered to the model. Parameters is a
// JSON Schema object in the shape OpenAI-style APIs expect.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	// ID correlates the call with its tool result message. Providers that
	// do not assign ids get a synthetic one.
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ArgumentsJSON renders the call arguments as a JSON string, as wire
// formats that transmit arguments as an encoded string require.
func (tc ToolCall) ArgumentsJSON() string {
	if tc.Arguments == nil {
		return "{}"
	}
	b, err := json.Marshal(tc.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// StringArg returns the named argument as a string, with ok=false when the
// argument is absent or not a string.
func (tc ToolCall) StringArg(name string) (string, bool) {
	v, ok := tc.Arguments[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntArg returns the named argument as an int. JSON numbers decode as
// float64, so both representations are accepted.
func (tc ToolCall) IntArg(name string) (int, bool) {
	v, ok := tc.Arguments[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// BoolArg returns the named argument as a bool.
func (tc ToolCall) BoolArg(name string) (bool, bool) {
	v, ok := tc.Arguments[name]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// ParseToolCallArguments decodes a raw JSON arguments string, tolerating
// the empty string. Providers deliver arguments as encoded JSON text.
func ParseToolCallArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
