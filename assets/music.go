package assets

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MusicRequest asks for a background-music track.
type MusicRequest struct {
	Style        string
	Mood         string
	Duration     float64
	Instrumental bool
}

// MusicResult is a finished music-generation task.
type MusicResult struct {
	TaskID   string
	URL      string
	Duration float64
}

// MusicGenerator produces background music.
type MusicGenerator interface {
	GenerateMusic(ctx context.Context, req MusicRequest) (*MusicResult, error)
}

// HTTPMusicGenerator drives a task-based music API: one POST starts a
// generation task, then the task is polled until it completes or the
// context expires.
type HTTPMusicGenerator struct {
	baseURL      string
	apiKey       string
	client       *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// HTTPMusicGeneratorOption configures an HTTPMusicGenerator.
type HTTPMusicGeneratorOption func(*HTTPMusicGenerator)

// WithMusicPolling overrides the poll interval and overall poll timeout.
func WithMusicPolling(interval, timeout time.Duration) HTTPMusicGeneratorOption {
	return func(g *HTTPMusicGenerator) {
		g.pollInterval = interval
		g.pollTimeout = timeout
	}
}

// NewHTTPMusicGenerator creates a music generator rooted at baseURL.
func NewHTTPMusicGenerator(baseURL, apiKey string, client *http.Client, opts ...HTTPMusicGeneratorOption) *HTTPMusicGenerator {
	g := &HTTPMusicGenerator{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		client:       client,
		pollInterval: 3 * time.Second,
		pollTimeout:  3 * time.Minute,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *HTTPMusicGenerator) headers() map[string]string {
	if g.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + g.apiKey}
}

type musicTaskResponse struct {
	TaskID   string  `json:"taskId"`
	Status   string  `json:"status"`
	URL      string  `json:"url,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// GenerateMusic starts a generation task and polls until it completes.
func (g *HTTPMusicGenerator) GenerateMusic(ctx context.Context, req MusicRequest) (*MusicResult, error) {
	if req.Style == "" && req.Mood == "" {
		return nil, fmt.Errorf("music request needs a style or a mood")
	}
	if req.Duration <= 0 {
		req.Duration = 30
	}

	var started musicTaskResponse
	err := postJSON(ctx, g.client, g.baseURL+"/v1/music/tasks", g.headers(), map[string]any{
		"style":        req.Style,
		"mood":         req.Mood,
		"duration":     req.Duration,
		"instrumental": req.Instrumental,
	}, &started)
	if err != nil {
		return nil, fmt.Errorf("starting music task: %w", err)
	}
	if started.TaskID == "" {
		return nil, fmt.Errorf("music endpoint returned no task id")
	}

	// Some providers complete synchronously.
	if started.Status == "completed" && started.URL != "" {
		return &MusicResult{TaskID: started.TaskID, URL: started.URL, Duration: started.Duration}, nil
	}

	return g.pollTask(ctx, started.TaskID)
}

func (g *HTTPMusicGenerator) pollTask(ctx context.Context, taskID string) (*MusicResult, error) {
	deadline := time.Now().Add(g.pollTimeout)
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("music task %s timed out after %s", taskID, g.pollTimeout)
		}

		var task musicTaskResponse
		err := getJSON(ctx, g.client, g.baseURL+"/v1/music/tasks/"+taskID, g.headers(), &task)
		if err != nil {
			return nil, fmt.Errorf("polling music task %s: %w", taskID, err)
		}

		switch task.Status {
		case "completed":
			if task.URL == "" {
				return nil, fmt.Errorf("music task %s completed without a URL", taskID)
			}
			return &MusicResult{TaskID: taskID, URL: task.URL, Duration: task.Duration}, nil
		case "failed":
			return nil, fmt.Errorf("music task %s failed: %s", taskID, task.Error)
		}
	}
}
