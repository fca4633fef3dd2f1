package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordpython/aisoulstudio/production"
)

func TestSessionStatus(t *testing.T) {
	fresh := production.NewState("prod_1_abcde")
	assert.Equal(t, StatusInProgress, sessionStatus(fresh))

	failed := production.NewState("prod_2_abcde")
	failed.AppendError(production.ToolError{
		Tool:      "narrate_scenes",
		Message:   "voice service unavailable",
		Category:  production.CategoryTransient,
		Timestamp: time.Now(),
	})
	assert.Equal(t, StatusError, sessionStatus(failed))

	// Errors recovered by fallback do not mask a delivered export.
	recovered := production.NewState("prod_3_abcde")
	recovered.AppendError(production.ToolError{Tool: "generate_visuals", Message: "image provider down"})
	recovered.ExportResult = &production.ExportResult{Format: "mp4"}
	assert.Equal(t, StatusInProgress, sessionStatus(recovered))

	done := production.NewState("prod_4_abcde")
	done.IsComplete = true
	assert.Equal(t, StatusComplete, sessionStatus(done))
}

func TestRowForDerivesColumns(t *testing.T) {
	state := production.NewState("prod_42_abcde")
	state.ContentPlan = &production.ContentPlan{
		Topic:    "the silk road",
		Language: "en",
		Scenes:   []production.Scene{{ID: "scene-1"}, {ID: "scene-2"}},
	}
	state.IsComplete = true
	state.PartialSuccessReport = &production.Report{
		SuccessCount: 9,
		Summary:      "All 9 tool calls succeeded.",
	}

	row, err := rowFor(state)
	require.NoError(t, err)
	assert.Equal(t, "prod_42_abcde", row.sessionID)
	assert.Equal(t, StatusComplete, row.status)
	assert.Equal(t, "the silk road", row.topic)
	assert.Equal(t, 2, row.sceneCount)
	assert.True(t, row.isComplete)

	var decoded production.State
	require.NoError(t, json.Unmarshal(row.stateJSON, &decoded))
	assert.Equal(t, state.SessionID, decoded.SessionID)
	assert.Equal(t, "the silk road", decoded.ContentPlan.Topic)

	var report production.Report
	require.NoError(t, json.Unmarshal(row.reportJSON, &report))
	assert.Equal(t, 9, report.SuccessCount)
}

func TestRowForWithoutPlanOrReport(t *testing.T) {
	row, err := rowFor(production.NewState("import_1_abcde"))
	require.NoError(t, err)
	assert.Empty(t, row.topic)
	assert.Zero(t, row.sceneCount)
	assert.Nil(t, row.reportJSON)
	assert.Nil(t, nullableJSON(row.reportJSON))
	assert.NotNil(t, nullableJSON([]byte(`{}`)))
}
