package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordpython/aisoulstudio/llm"
)

func TestOllamaProvider_BuildURL(t *testing.T) {
	p := &OllamaProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{
			name:    "empty uses default",
			baseURL: "",
			want:    "http://localhost:11434/v1/chat/completions",
		},
		{
			name:    "custom base URL",
			baseURL: "http://myserver:8080/v1",
			want:    "http://myserver:8080/v1/chat/completions",
		},
		{
			name:    "trailing slash handled",
			baseURL: "http://localhost:11434/v1/",
			want:    "http://localhost:11434/v1/chat/completions",
		},
		{
			name:    "already has endpoint",
			baseURL: "http://localhost:11434/v1/chat/completions",
			want:    "http://localhost:11434/v1/chat/completions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.BuildURL(tt.baseURL)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOllamaProvider_BuildRequestBody(t *testing.T) {
	p := &OllamaProvider{}

	messages := []llm.Message{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "Hello"},
	}

	temp := 0.7
	body, err := p.BuildRequestBody("qwen2.5-coder:14b", messages, &temp, 2048, nil, "")
	require.NoError(t, err)

	// Verify model is set
	assert.Contains(t, string(body), `"model":"qwen2.5-coder:14b"`)

	// Verify messages include system (OpenAI format keeps system as message)
	assert.Contains(t, string(body), `"role":"system"`)
	assert.Contains(t, string(body), `"role":"user"`)

	// Verify optional parameters
	assert.Contains(t, string(body), `"temperature":0.7`)
	assert.Contains(t, string(body), `"max_tokens":2048`)

	// No tools requested, none serialized
	assert.NotContains(t, string(body), `"tools"`)
}

func TestOllamaProvider_BuildRequestBody_NoOptionalParams(t *testing.T) {
	p := &OllamaProvider{}

	messages := []llm.Message{
		{Role: "user", Content: "Hello"},
	}

	body, err := p.BuildRequestBody("test-model", messages, nil, 0, nil, "")
	require.NoError(t, err)

	// Should not contain temperature or max_tokens when nil/zero
	assert.NotContains(t, string(body), `"temperature"`)
	assert.NotContains(t, string(body), `"max_tokens"`)
}

func TestOllamaProvider_BuildRequestBody_ZeroTemperature(t *testing.T) {
	p := &OllamaProvider{}

	messages := []llm.Message{
		{Role: "user", Content: "Hello"},
	}

	temp := 0.0
	body, err := p.BuildRequestBody("test-model", messages, &temp, 0, nil, "")
	require.NoError(t, err)

	// Temperature should be present even when 0 (deterministic)
	assert.Contains(t, string(body), `"temperature":0`)
}

func TestOllamaProvider_BuildRequestBody_Tools(t *testing.T) {
	p := &OllamaProvider{}

	messages := []llm.Message{
		{Role: "user", Content: "Make a video about bees"},
	}
	tools := []llm.ToolDefinition{
		{
			Name:        "generate_content_plan",
			Description: "Plan scenes for the video",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"topic": map[string]any{"type": "string"},
				},
			},
		},
	}

	body, err := p.BuildRequestBody("test-model", messages, nil, 0, tools, "auto")
	require.NoError(t, err)

	assert.Contains(t, string(body), `"type":"function"`)
	assert.Contains(t, string(body), `"name":"generate_content_plan"`)
	assert.Contains(t, string(body), `"tool_choice":"auto"`)
}

func TestOllamaProvider_BuildRequestBody_ForcedTool(t *testing.T) {
	p := &OllamaProvider{}

	messages := []llm.Message{{Role: "user", Content: "Plan it"}}
	tools := []llm.ToolDefinition{{Name: "generate_content_plan", Parameters: map[string]any{"type": "object"}}}

	body, err := p.BuildRequestBody("test-model", messages, nil, 0, tools, "generate_content_plan")
	require.NoError(t, err)

	// Forcing a specific tool uses the object form of tool_choice.
	assert.Contains(t, string(body), `"tool_choice":{"function":{"name":"generate_content_plan"},"type":"function"}`)
}

func TestOllamaProvider_BuildRequestBody_ToolResultMessage(t *testing.T) {
	p := &OllamaProvider{}

	messages := []llm.Message{
		{Role: "user", Content: "Make a video"},
		{Role: "assistant", ToolCalls: []llm.ToolCall{
			{ID: "call_0", Name: "generate_content_plan", Arguments: map[string]any{"topic": "bees"}},
		}},
		{Role: "tool", ToolCallID: "call_0", Content: `{"sceneCount":5}`},
	}

	body, err := p.BuildRequestBody("test-model", messages, nil, 0, nil, "")
	require.NoError(t, err)

	assert.Contains(t, string(body), `"tool_call_id":"call_0"`)
	assert.Contains(t, string(body), `"arguments":"{\"topic\":\"bees\"}"`)
}

func TestOllamaProvider_ParseResponse(t *testing.T) {
	p := &OllamaProvider{}

	responseBody := []byte(`{
		"id": "chatcmpl-123",
		"object": "chat.completion",
		"created": 1677652288,
		"model": "qwen2.5-coder:14b",
		"choices": [{
			"index": 0,
			"message": {
				"role": "assistant",
				"content": "Hello! How can I help?"
			},
			"finish_reason": "stop"
		}],
		"usage": {
			"prompt_tokens": 10,
			"completion_tokens": 6,
			"total_tokens": 16
		}
	}`)

	resp, err := p.ParseResponse(responseBody, "test-model")
	require.NoError(t, err)

	assert.Equal(t, "Hello! How can I help?", resp.Content)
	assert.Equal(t, "qwen2.5-coder:14b", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Empty(t, resp.ToolCalls)

	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 6, resp.Usage.CompletionTokens)
	assert.Equal(t, 16, resp.Usage.TotalTokens)
}

func TestOllamaProvider_ParseResponse_ToolCalls(t *testing.T) {
	p := &OllamaProvider{}

	responseBody := []byte(`{
		"model": "test-model",
		"choices": [{
			"index": 0,
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{
					"id": "call_abc",
					"type": "function",
					"function": {
						"name": "generate_narration",
						"arguments": "{\"sceneIndex\": 2, \"voice\": \"alloy\"}"
					}
				}]
			},
			"finish_reason": "tool_calls"
		}]
	}`)

	resp, err := p.ParseResponse(responseBody, "test-model")
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	call := resp.ToolCalls[0]
	assert.Equal(t, "call_abc", call.ID)
	assert.Equal(t, "generate_narration", call.Name)

	idx, ok := call.IntArg("sceneIndex")
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	voice, ok := call.StringArg("voice")
	assert.True(t, ok)
	assert.Equal(t, "alloy", voice)
}

func TestOllamaProvider_ParseResponse_SynthesizesMissingCallIDs(t *testing.T) {
	p := &OllamaProvider{}

	responseBody := []byte(`{
		"model": "test-model",
		"choices": [{
			"message": {
				"role": "assistant",
				"tool_calls": [
					{"type": "function", "function": {"name": "get_production_status", "arguments": "{}"}},
					{"type": "function", "function": {"name": "mark_complete", "arguments": ""}}
				]
			},
			"finish_reason": "tool_calls"
		}]
	}`)

	resp, err := p.ParseResponse(responseBody, "test-model")
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "call_0", resp.ToolCalls[0].ID)
	assert.Equal(t, "call_1", resp.ToolCalls[1].ID)
	assert.NotNil(t, resp.ToolCalls[1].Arguments)
}

func TestOllamaProvider_ParseResponse_BadToolArguments(t *testing.T) {
	p := &OllamaProvider{}

	responseBody := []byte(`{
		"model": "test-model",
		"choices": [{
			"message": {
				"role": "assistant",
				"tool_calls": [{
					"id": "call_0",
					"type": "function",
					"function": {"name": "generate_visuals", "arguments": "{not json"}
				}]
			},
			"finish_reason": "tool_calls"
		}]
	}`)

	_, err := p.ParseResponse(responseBody, "test-model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate_visuals")
}

func TestOllamaProvider_ParseResponse_NoChoices(t *testing.T) {
	p := &OllamaProvider{}

	responseBody := []byte(`{
		"id": "chatcmpl-123",
		"choices": []
	}`)

	_, err := p.ParseResponse(responseBody, "test-model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
