package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/session"
)

func TestSuccessPayload(t *testing.T) {
	payload := Success(map[string]any{"sessionId": "prod_1_abcde", "sceneCount": 3})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))

	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, "prod_1_abcde", decoded["sessionId"])
	assert.Equal(t, float64(3), decoded["sceneCount"])
}

func TestFailurePayload(t *testing.T) {
	payload := Failure("no plan exists", "call plan_video first")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))

	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "no plan exists", decoded["error"])
	assert.Equal(t, "call plan_video first", decoded["suggestion"])
}

func TestFailureOmitsEmptySuggestion(t *testing.T) {
	payload := Failure("boom", "")
	assert.NotContains(t, payload, "suggestion")
}

func TestPayloadSuccessful(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{"explicit true", `{"success":true,"n":1}`, true},
		{"explicit false", `{"success":false,"error":"x"}`, false},
		{"no success field", `{"result":"ok"}`, true},
		{"not json", "plain text result", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PayloadSuccessful(tt.payload))
		})
	}
}

func TestResolveSession(t *testing.T) {
	store := session.NewStore()
	id := production.NewProductionID()
	require.NoError(t, store.Create(id, nil))

	call := llm.ToolCall{Name: "narrate_scenes", Arguments: map[string]any{"contentPlanId": id}}
	state, err := ResolveSession(store, call, "contentPlanId")
	require.NoError(t, err)
	assert.Equal(t, id, state.SessionID)
}

func TestResolveSession_MissingArg(t *testing.T) {
	store := session.NewStore()

	call := llm.ToolCall{Name: "narrate_scenes", Arguments: map[string]any{}}
	_, err := ResolveSession(store, call, "contentPlanId")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contentPlanId is required")
}

func TestResolveSession_PlaceholderID(t *testing.T) {
	store := session.NewStore()

	call := llm.ToolCall{Name: "narrate_scenes", Arguments: map[string]any{"contentPlanId": "plan_123"}}
	_, err := ResolveSession(store, call, "contentPlanId")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "looks invented")
}

func TestResolveSession_UnknownSession(t *testing.T) {
	store := session.NewStore()

	call := llm.ToolCall{Name: "narrate_scenes", Arguments: map[string]any{"contentPlanId": "prod_1700000000000_abc123"}}
	_, err := ResolveSession(store, call, "contentPlanId")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "may have been cleared")
}
