// Package main implements a scripted LLM server for studio development
// and wiring tests. It serves OpenAI-compatible /v1/chat/completions
// responses from JSON script files, routing by the "model" field of the
// request, so the full production pipeline can run offline with
// deterministic tool calls.
//
// Usage:
//
//	mock-llm -scripts ./scripts -port 11434
//
// A script file is named after the model it answers for ("qwen.json").
// Its content is one assistant turn:
//
//	{"tool_calls": [{"name": "plan_video", "arguments": {"topic": "bees"}}]}
//	{"content": "The production is finished."}
//
// Numbered files ("qwen.1.json", "qwen.2.json", ...) are served in call
// order, one turn per call, so a whole production can be scripted as one
// tool call per file. Once the numbered turns are exhausted the
// unnumbered file repeats, which is where the closing message goes.
//
// A model name ending in ".<digits>" (like "llama3.2") collides with the
// numbered pattern; script such models with numbered files only
// ("llama3.2.1.json").
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// --- OpenAI-compatible wire types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// wireToolCall carries arguments as an encoded JSON string, per the wire
// format.
type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Script files ---

// scriptTurn is one assistant turn as authored in a script file.
type scriptTurn struct {
	Content   string           `json:"content,omitempty"`
	ToolCalls []scriptToolCall `json:"tool_calls,omitempty"`
}

// scriptToolCall names a production tool and its arguments. Arguments are
// authored as a plain JSON object; the server string-encodes them for the
// wire.
type scriptToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// --- Server ---

// capturedRequest stores the key fields of an incoming chat request for
// test verification via the /requests endpoint.
type capturedRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	CallIndex int           `json:"call_index"` // 1-indexed per-model call number
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	scripts map[string][]scriptTurn // model name → ordered turns
	calls   atomic.Int64            // total calls served

	// Per-model call counters for sequential turn selection.
	modelCalls   map[string]*atomic.Int64
	modelCallsMu sync.Mutex // protects lazy init of modelCalls entries

	// Per-model request capture for prompt verification.
	modelRequests   map[string][]capturedRequest
	modelRequestsMu sync.Mutex
}

func newServer(scripts map[string][]scriptTurn) *server {
	return &server{
		scripts:       scripts,
		modelCalls:    make(map[string]*atomic.Int64),
		modelRequests: make(map[string][]capturedRequest),
	}
}

func (s *server) captureRequest(model string, req chatRequest, callIndex int) {
	s.modelRequestsMu.Lock()
	defer s.modelRequestsMu.Unlock()
	s.modelRequests[model] = append(s.modelRequests[model], capturedRequest{
		Model:     model,
		Messages:  req.Messages,
		CallIndex: callIndex,
		Timestamp: time.Now().UnixMilli(),
	})
}

// getModelCounter returns the call counter for a model, creating it lazily.
func (s *server) getModelCounter(model string) *atomic.Int64 {
	s.modelCallsMu.Lock()
	defer s.modelCallsMu.Unlock()
	if c, ok := s.modelCalls[model]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.modelCalls[model] = c
	return c
}

func main() {
	scriptDir := flag.String("scripts", "", "directory containing script turn files")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	// Allow env var override
	if envDir := os.Getenv("STUDIO_MOCK_SCRIPTS"); envDir != "" && *scriptDir == "" {
		*scriptDir = envDir
	}
	if *scriptDir == "" {
		*scriptDir = "scripts"
	}

	scripts, err := loadScripts(*scriptDir)
	if err != nil {
		log.Fatalf("Failed to load scripts from %s: %v", *scriptDir, err)
	}
	log.Printf("Loaded %d model(s) from %s", len(scripts), *scriptDir)
	for model, seq := range scripts {
		log.Printf("  model: %s (%d turn(s))", model, len(seq))
	}

	s := newServer(scripts)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock LLM server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	log.Printf("[call %d] model=%s messages=%d", callNum, req.Model, len(req.Messages))

	seq, ok := s.scripts[req.Model]
	if !ok {
		log.Printf("[call %d] WARNING: no script for model=%q, returning error", callNum, req.Model)
		http.Error(w, fmt.Sprintf("no script for model %q", req.Model), http.StatusNotFound)
		return
	}

	// Select the turn from the sequence based on per-model call count.
	counter := s.getModelCounter(req.Model)
	callIndex := int(counter.Add(1) - 1) // 0-indexed

	s.captureRequest(req.Model, req, callIndex+1)

	turn := seq[len(seq)-1] // repeat last turn once exhausted
	if callIndex < len(seq) {
		turn = seq[callIndex]
	}

	log.Printf("[call %d] model=%s turn=%d/%d tool_calls=%d",
		callNum, req.Model, callIndex+1, len(seq), len(turn.ToolCalls))

	msg := chatMessage{Role: "assistant", Content: turn.Content}
	for i, call := range turn.ToolCalls {
		wire := wireToolCall{
			ID:   fmt.Sprintf("call_%d_%d", callNum, i),
			Type: "function",
		}
		wire.Function.Name = call.Name
		wire.Function.Arguments = encodeArguments(call.Arguments)
		msg.ToolCalls = append(msg.ToolCalls, wire)
	}

	finishReason := "stop"
	if len(msg.ToolCalls) > 0 {
		finishReason = "tool_calls"
	}

	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index:        0,
				Message:      msg,
				FinishReason: finishReason,
			},
		},
		Usage: chatUsage{
			PromptTokens:     len(turn.Content) / 4, // rough estimate
			CompletionTokens: len(turn.Content) / 4,
			TotalTokens:      len(turn.Content) / 2,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// encodeArguments string-encodes a tool call's arguments object.
func encodeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// handleModels returns the list of scripted models (OpenAI-compatible).
func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	var models []modelEntry
	for name := range s.scripts {
		models = append(models, modelEntry{
			ID:      name,
			Object:  "model",
			OwnedBy: "mock-llm",
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   models,
	})
}

// handleStats returns call counts for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.modelCallsMu.Lock()
	callsByModel := make(map[string]int64, len(s.modelCalls))
	for model, counter := range s.modelCalls {
		callsByModel[model] = counter.Load()
	}
	s.modelCallsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_model": callsByModel,
	})
}

// handleRequests returns captured request bodies for test assertions.
// Query params:
//   - model: filter by model name (optional, returns all models if omitted)
//   - call: filter by call index, 1-indexed (optional)
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")
	callFilter := r.URL.Query().Get("call")

	s.modelRequestsMu.Lock()
	result := make(map[string][]capturedRequest)
	for model, reqs := range s.modelRequests {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		if callFilter != "" {
			callIdx, err := strconv.Atoi(callFilter)
			if err == nil {
				for _, req := range reqs {
					if req.CallIndex == callIdx {
						result[model] = append(result[model], req)
					}
				}
				continue
			}
		}
		result[model] = reqs
	}
	s.modelRequestsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"requests_by_model": result,
	})
}

// numberedFileRe matches files like "qwen.1.json", "qwen.2.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadScripts reads JSON files from dir and returns a map of model→turn
// sequence.
//
// For each model, turns are ordered:
//  1. Numbered files (model.1.json, model.2.json, ...) in numeric order
//  2. Base file (model.json) appended as the repeating final turn
func loadScripts(dir string) (map[string][]scriptTurn, error) {
	baseFiles := make(map[string]scriptTurn)
	numberedFiles := make(map[string]map[int]scriptTurn)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		var turn scriptTurn
		if err := json.Unmarshal(data, &turn); err != nil {
			return fmt.Errorf("invalid script in %s: %w", path, err)
		}
		if turn.Content == "" && len(turn.ToolCalls) == 0 {
			return fmt.Errorf("script %s has neither content nor tool_calls", path)
		}
		for _, call := range turn.ToolCalls {
			if call.Name == "" {
				return fmt.Errorf("script %s has a tool call without a name", path)
			}
		}

		// Numbered pattern: model.N.json
		if matches := numberedFileRe.FindStringSubmatch(info.Name()); matches != nil {
			model := matches[1]
			index, _ := strconv.Atoi(matches[2])
			if numberedFiles[model] == nil {
				numberedFiles[model] = make(map[int]scriptTurn)
			}
			numberedFiles[model][index] = turn
			return nil
		}

		// Base file: model.json
		model := strings.TrimSuffix(info.Name(), ".json")
		baseFiles[model] = turn
		return nil
	})

	if err != nil {
		return nil, err
	}

	scripts := make(map[string][]scriptTurn)

	allModels := make(map[string]bool)
	for m := range baseFiles {
		allModels[m] = true
	}
	for m := range numberedFiles {
		allModels[m] = true
	}

	for model := range allModels {
		var seq []scriptTurn

		if numbered, ok := numberedFiles[model]; ok {
			indices := make([]int, 0, len(numbered))
			for idx := range numbered {
				indices = append(indices, idx)
			}
			sort.Ints(indices)

			for _, idx := range indices {
				seq = append(seq, numbered[idx])
			}
		}

		if base, ok := baseFiles[model]; ok {
			seq = append(seq, base)
		}

		if len(seq) > 0 {
			scripts[model] = seq
		}
	}

	if len(scripts) == 0 {
		return nil, fmt.Errorf("no script files found in %s", dir)
	}

	return scripts, nil
}
