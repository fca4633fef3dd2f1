package progress

import (
	"context"
	"sync"
	"time"
)

// Emitter delivers progress events for one run. The orchestrator installs
// it into the tool-invocation context at the start of a run and closes it in
// the run epilogue, whatever the exit path; tools never retain it across
// runs. A nil *Emitter is valid and drops every event.
type Emitter struct {
	mu        sync.Mutex
	sessionID string
	cb        Callback
	closed    bool
}

// NewEmitter returns an emitter stamping events with the given session id.
// A nil callback yields an emitter that drops events.
func NewEmitter(sessionID string, cb Callback) *Emitter {
	return &Emitter{sessionID: sessionID, cb: cb}
}

// Emit delivers one event, stamping the session id and timestamp. Events
// emitted after Close are dropped.
func (e *Emitter) Emit(evt Event) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed || e.cb == nil {
		e.mu.Unlock()
		return
	}
	cb := e.cb
	sessionID := e.sessionID
	e.mu.Unlock()

	if evt.SessionID == "" {
		evt.SessionID = sessionID
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	cb(evt)
}

// SceneProgress emits a scene_progress event for multi-scene tools.
func (e *Emitter) SceneProgress(tool string, current, total int, message string) {
	if total <= 0 {
		return
	}
	e.Emit(Event{
		Type:         EventSceneProgress,
		Tool:         tool,
		CurrentScene: current,
		TotalScenes:  total,
		Percentage:   current * 100 / total,
		Message:      message,
	})
}

// SetSessionID retargets the emitter once the session id is known. Runs
// that start from a bare topic learn their id from the first planning
// tool's payload; events emitted before that carry no session id.
func (e *Emitter) SetSessionID(id string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.sessionID = id
	e.mu.Unlock()
}

// SessionID returns the session id events are stamped with.
func (e *Emitter) SessionID() string {
	if e == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// Close releases the emitter. Further events are dropped.
func (e *Emitter) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// Closed reports whether the emitter has been released.
func (e *Emitter) Closed() bool {
	if e == nil {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type contextKey struct{}

// NewContext returns a context carrying the emitter for the duration of a
// run.
func NewContext(ctx context.Context, e *Emitter) context.Context {
	return context.WithValue(ctx, contextKey{}, e)
}

// FromContext returns the emitter installed in ctx, or nil when none is
// present. The nil emitter is safe to use.
func FromContext(ctx context.Context) *Emitter {
	e, _ := ctx.Value(contextKey{}).(*Emitter)
	return e
}
