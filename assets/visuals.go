package assets

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// ImageRequest asks for one scene's still image.
type ImageRequest struct {
	Prompt      string
	Style       string
	AspectRatio string
}

// ImageResult is one generated or edited image.
type ImageResult struct {
	URL   string
	Model string
}

// ImageGenerator turns a visual description into a still image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

// ImageEditor performs post-generation edits on an existing image.
type ImageEditor interface {
	RemoveBackground(ctx context.Context, imageURL string) (*ImageResult, error)
	Restyle(ctx context.Context, imageURL, style string) (*ImageResult, error)
}

// ConsistencyReport scores how consistently a character renders across the
// production's visuals.
type ConsistencyReport struct {
	Score         int
	ScenesChecked int
	Issues        []string
}

// ConsistencyChecker inspects generated visuals for character drift.
type ConsistencyChecker interface {
	VerifyConsistency(ctx context.Context, imageURLs []string, characterName string) (*ConsistencyReport, error)
}

// HTTPImageProvider implements ImageGenerator, ImageEditor, and
// ConsistencyChecker against a JSON image service.
type HTTPImageProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPImageProvider creates an image provider rooted at baseURL.
func NewHTTPImageProvider(baseURL, apiKey string, client *http.Client) *HTTPImageProvider {
	return &HTTPImageProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (p *HTTPImageProvider) headers() map[string]string {
	if p.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

type imageWireResponse struct {
	URL   string `json:"url"`
	Model string `json:"model,omitempty"`
}

// GenerateImage posts the prompt to the image endpoint.
func (p *HTTPImageProvider) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("image prompt is empty")
	}

	prompt := req.Prompt
	if req.Style != "" {
		prompt = fmt.Sprintf("%s, %s style", prompt, req.Style)
	}

	var resp imageWireResponse
	err := postJSON(ctx, p.client, p.baseURL+"/v1/images", p.headers(), map[string]any{
		"prompt":      prompt,
		"aspectRatio": req.AspectRatio,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("generating image: %w", err)
	}
	if resp.URL == "" {
		return nil, fmt.Errorf("image endpoint returned no URL")
	}
	return &ImageResult{URL: resp.URL, Model: resp.Model}, nil
}

// RemoveBackground strips the background from the image at imageURL.
func (p *HTTPImageProvider) RemoveBackground(ctx context.Context, imageURL string) (*ImageResult, error) {
	if imageURL == "" {
		return nil, fmt.Errorf("image URL is empty")
	}

	var resp imageWireResponse
	err := postJSON(ctx, p.client, p.baseURL+"/v1/images/remove-background", p.headers(), map[string]any{
		"imageUrl": imageURL,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("removing background: %w", err)
	}
	if resp.URL == "" {
		return nil, fmt.Errorf("background removal returned no URL")
	}
	return &ImageResult{URL: resp.URL, Model: resp.Model}, nil
}

// Restyle re-renders the image at imageURL in a different visual style.
func (p *HTTPImageProvider) Restyle(ctx context.Context, imageURL, style string) (*ImageResult, error) {
	if imageURL == "" {
		return nil, fmt.Errorf("image URL is empty")
	}
	if style == "" {
		return nil, fmt.Errorf("style is empty")
	}

	var resp imageWireResponse
	err := postJSON(ctx, p.client, p.baseURL+"/v1/images/restyle", p.headers(), map[string]any{
		"imageUrl": imageURL,
		"style":    style,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("restyling image: %w", err)
	}
	if resp.URL == "" {
		return nil, fmt.Errorf("restyle returned no URL")
	}
	return &ImageResult{URL: resp.URL, Model: resp.Model}, nil
}

// VerifyConsistency asks the service to score character consistency across
// the given images.
func (p *HTTPImageProvider) VerifyConsistency(ctx context.Context, imageURLs []string, characterName string) (*ConsistencyReport, error) {
	if len(imageURLs) == 0 {
		return nil, fmt.Errorf("no images to check")
	}

	var resp struct {
		Score  int      `json:"score"`
		Issues []string `json:"issues"`
	}
	err := postJSON(ctx, p.client, p.baseURL+"/v1/images/consistency", p.headers(), map[string]any{
		"imageUrls": imageURLs,
		"character": characterName,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("verifying consistency: %w", err)
	}
	return &ConsistencyReport{
		Score:         resp.Score,
		ScenesChecked: len(imageURLs),
		Issues:        resp.Issues,
	}, nil
}

// PlaceholderVisualURL returns the placeholder image used when visual
// generation fails and the fallback fills the scene slot.
func PlaceholderVisualURL(sceneIndex int) string {
	return fmt.Sprintf("https://placehold.co/1920x1080?text=Scene+%d", sceneIndex+1)
}
