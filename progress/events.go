// Package progress defines the structured progress contract between the
// production orchestrator and its host: typed events delivered through an
// injectable emitter, with optional bridges that fan events out to Redis
// pub/sub or NATS subjects for browser delivery.
package progress

import (
	"time"
)

// EventType names one kind of progress event.
type EventType string

// Progress event types, in rough emission order over a run.
const (
	EventStarting       EventType = "starting"
	EventIntentDetected EventType = "intent_detected"
	EventStage          EventType = "stage"
	EventToolCall       EventType = "tool_call"
	EventToolResult     EventType = "tool_result"
	EventRetry          EventType = "retry"
	EventFallback       EventType = "fallback"
	EventSceneProgress  EventType = "scene_progress"
	EventWarning        EventType = "warning"
	EventLimitReached   EventType = "limit_reached"
	EventSummary        EventType = "summary"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"
)

// AssetSummary is attached to the complete event so the host can render what
// a finished run produced without refetching session state.
type AssetSummary struct {
	SceneCount     int  `json:"sceneCount"`
	NarrationCount int  `json:"narrationCount"`
	VisualCount    int  `json:"visualCount"`
	HasMusic       bool `json:"hasMusic"`
	HasMixedAudio  bool `json:"hasMixedAudio"`
	HasSubtitles   bool `json:"hasSubtitles"`
	HasExport      bool `json:"hasExport"`
	IsComplete     bool `json:"isComplete"`
}

// Event is one immutable progress record. Only the fields relevant to the
// event type are populated.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Message   string    `json:"message,omitempty"`
	Success   bool      `json:"success,omitempty"`

	Attempt int   `json:"attempt,omitempty"`
	DelayMs int64 `json:"delayMs,omitempty"`

	FallbackAction string `json:"fallbackAction,omitempty"`

	CurrentScene int `json:"currentScene,omitempty"`
	TotalScenes  int `json:"totalScenes,omitempty"`
	Percentage   int `json:"percentage,omitempty"`

	AssetSummary *AssetSummary `json:"assetSummary,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Callback receives progress events. Implementations must be fast and must
// not call back into the orchestrator.
type Callback func(Event)
