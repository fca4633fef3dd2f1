package assets

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Accepted clip lengths for text-to-video generation, in seconds.
var videoClipDurations = map[int]bool{4: true, 6: true, 8: true}

// ValidVideoClipDuration reports whether seconds is an accepted clip length.
func ValidVideoClipDuration(seconds int) bool {
	return videoClipDurations[seconds]
}

// VideoRequest asks for one scene's video clip from a text prompt.
type VideoRequest struct {
	Prompt       string
	Style        string
	AspectRatio  string
	Duration     int
	UseFastModel bool
}

// AnimateRequest asks for an image-to-video animation of an existing still.
type AnimateRequest struct {
	ImageURL    string
	Prompt      string
	AspectRatio string
}

// VideoResult is one generated clip.
type VideoResult struct {
	URL      string
	Model    string
	Duration int
}

// VideoGenerator produces short video clips, either from a text prompt or
// by animating an existing image.
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, req VideoRequest) (*VideoResult, error)
	AnimateImage(ctx context.Context, req AnimateRequest) (*VideoResult, error)
}

// HTTPVideoGenerator calls a JSON video-generation service.
type HTTPVideoGenerator struct {
	baseURL   string
	apiKey    string
	model     string
	fastModel string
	client    *http.Client
}

// HTTPVideoGeneratorOption configures an HTTPVideoGenerator.
type HTTPVideoGeneratorOption func(*HTTPVideoGenerator)

// WithVideoModels overrides the default and fast model names.
func WithVideoModels(standard, fast string) HTTPVideoGeneratorOption {
	return func(g *HTTPVideoGenerator) {
		g.model = standard
		g.fastModel = fast
	}
}

// NewHTTPVideoGenerator creates a video generator rooted at baseURL.
func NewHTTPVideoGenerator(baseURL, apiKey string, client *http.Client, opts ...HTTPVideoGeneratorOption) *HTTPVideoGenerator {
	g := &HTTPVideoGenerator{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiKey:    apiKey,
		model:     "veo-3.0-generate",
		fastModel: "veo-3.0-fast-generate",
		client:    client,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *HTTPVideoGenerator) headers() map[string]string {
	if g.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + g.apiKey}
}

type videoWireResponse struct {
	URL      string `json:"url"`
	Model    string `json:"model,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// GenerateVideo produces a clip from a text prompt. Duration must be one
// of the accepted clip lengths; zero defaults to 8 seconds.
func (g *HTTPVideoGenerator) GenerateVideo(ctx context.Context, req VideoRequest) (*VideoResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("video prompt is empty")
	}
	if req.Duration == 0 {
		req.Duration = 8
	}
	if !ValidVideoClipDuration(req.Duration) {
		return nil, fmt.Errorf("video duration must be 4, 6, or 8 seconds, got %d", req.Duration)
	}

	model := g.model
	if req.UseFastModel {
		model = g.fastModel
	}

	prompt := req.Prompt
	if req.Style != "" {
		prompt = fmt.Sprintf("%s, %s style", prompt, req.Style)
	}

	var resp videoWireResponse
	err := postJSON(ctx, g.client, g.baseURL+"/v1/videos", g.headers(), map[string]any{
		"prompt":      prompt,
		"model":       model,
		"duration":    req.Duration,
		"aspectRatio": req.AspectRatio,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("generating video: %w", err)
	}
	if resp.URL == "" {
		return nil, fmt.Errorf("video endpoint returned no URL")
	}

	result := &VideoResult{URL: resp.URL, Model: resp.Model, Duration: resp.Duration}
	if result.Model == "" {
		result.Model = model
	}
	if result.Duration == 0 {
		result.Duration = req.Duration
	}
	return result, nil
}

// AnimateImage produces a clip by animating the image at req.ImageURL.
func (g *HTTPVideoGenerator) AnimateImage(ctx context.Context, req AnimateRequest) (*VideoResult, error) {
	if req.ImageURL == "" {
		return nil, fmt.Errorf("image URL is empty")
	}

	var resp videoWireResponse
	err := postJSON(ctx, g.client, g.baseURL+"/v1/videos/animate", g.headers(), map[string]any{
		"imageUrl":    req.ImageURL,
		"prompt":      req.Prompt,
		"aspectRatio": req.AspectRatio,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("animating image: %w", err)
	}
	if resp.URL == "" {
		return nil, fmt.Errorf("animation endpoint returned no URL")
	}

	result := &VideoResult{URL: resp.URL, Model: resp.Model, Duration: resp.Duration}
	if result.Model == "" {
		result.Model = "image-to-video"
	}
	return result, nil
}
