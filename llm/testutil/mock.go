// Package testutil provides test utilities for the llm package.
// It includes mock implementations for testing LLM client interactions.
package testutil

import (
	"context"
	"sync"

	"github.com/lordpython/aisoulstudio/llm"
)

// MockClient is a thread-safe scripted chat client for testing.
// It captures each request passed to Chat() and returns configured
// responses in sequence.
//
// Usage:
//
//	// Tool call then text wrap-up
//	mock := &testutil.MockClient{
//	    Responses: []*llm.Response{
//	        {ToolCalls: []llm.ToolCall{{ID: "call_0", Name: "generate_content_plan",
//	            Arguments: map[string]any{"topic": "bees"}}}},
//	        {Content: "All done.", FinishReason: "stop"},
//	    },
//	}
//
//	// Error response
//	mock := &testutil.MockClient{
//	    Err: errors.New("connection failed"),
//	}
type MockClient struct {
	mu               sync.Mutex
	capturedContext  context.Context
	capturedRequests []llm.Request
	Responses        []*llm.Response // Responses to return in sequence
	Err              error           // Error to return (takes precedence over Responses)

	// ChatFunc, when set, overrides the scripted behavior entirely.
	ChatFunc func(ctx context.Context, req llm.Request) (*llm.Response, error)

	callCount     int
	responseIndex int
}

var _ llm.ChatClient = (*MockClient)(nil)

// Chat implements llm.ChatClient.
// Returns the next response from Responses, or Err if set. When the script
// runs out, the last response repeats so iteration-limit tests can loop.
func (m *MockClient) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.capturedContext = ctx
	m.capturedRequests = append(m.capturedRequests, req)
	m.callCount++

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}

	if m.Err != nil {
		return nil, m.Err
	}

	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}

	if n := len(m.Responses); n > 0 {
		return m.Responses[n-1], nil
	}

	// Default response if no responses configured
	return &llm.Response{Content: "", Model: "test-model", FinishReason: "stop"}, nil
}

// CapturedContext returns the last context passed to Chat().
func (m *MockClient) CapturedContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capturedContext
}

// CapturedRequests returns a copy of every request passed to Chat(), in
// call order. Tests assert on bound tool surfaces and message history here.
func (m *MockClient) CapturedRequests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.capturedRequests))
	copy(out, m.capturedRequests)
	return out
}

// LastRequest returns the most recent request, or a zero Request when Chat
// was never called.
func (m *MockClient) LastRequest() llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.capturedRequests) == 0 {
		return llm.Request{}
	}
	return m.capturedRequests[len(m.capturedRequests)-1]
}

// CallCount returns the number of times Chat() was called.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset resets the mock's state (call count, captures, and response index).
// Useful for reusing the same mock instance across multiple test cases.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.responseIndex = 0
	m.capturedContext = nil
	m.capturedRequests = nil
}
