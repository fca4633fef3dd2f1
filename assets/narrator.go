package assets

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// SpeechRequest asks for one scene's narration audio.
type SpeechRequest struct {
	Text     string
	Language string
	Voice    string
}

// SpeechResult is the synthesized narration for one scene. Duration is the
// measured audio length in seconds.
type SpeechResult struct {
	Audio    []byte
	URL      string
	Duration float64
}

// SpeechSynthesizer turns narration text into audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error)
}

// HTTPSpeechSynthesizer calls a JSON text-to-speech endpoint. The endpoint
// accepts {text, language, voice} and returns either an audio URL or
// base64-encoded audio bytes plus the measured duration.
type HTTPSpeechSynthesizer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPSpeechSynthesizer creates a synthesizer for the given endpoint.
func NewHTTPSpeechSynthesizer(endpoint, apiKey string, client *http.Client) *HTTPSpeechSynthesizer {
	return &HTTPSpeechSynthesizer{endpoint: endpoint, apiKey: apiKey, client: client}
}

type speechWireRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Voice    string `json:"voice,omitempty"`
}

type speechWireResponse struct {
	AudioURL    string  `json:"audioUrl,omitempty"`
	AudioBase64 string  `json:"audioBase64,omitempty"`
	Duration    float64 `json:"duration"`
}

// Synthesize posts the narration text and returns the audio. A missing
// measured duration falls back to a speaking-rate estimate so downstream
// timing reconciliation always has a value to work with.
func (s *HTTPSpeechSynthesizer) Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("narration text is empty")
	}

	var resp speechWireResponse
	err := postJSON(ctx, s.client, s.endpoint, s.headers(), speechWireRequest{
		Text:     req.Text,
		Language: req.Language,
		Voice:    req.Voice,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}

	result := &SpeechResult{URL: resp.AudioURL, Duration: resp.Duration}
	if resp.AudioBase64 != "" {
		audio, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
		if err != nil {
			return nil, fmt.Errorf("decoding audio: %w", err)
		}
		result.Audio = audio
	}
	if result.URL == "" && len(result.Audio) == 0 {
		return nil, fmt.Errorf("speech endpoint returned no audio")
	}
	if result.Duration <= 0 {
		result.Duration = EstimateSpeechDuration(req.Text)
	}
	return result, nil
}

func (s *HTTPSpeechSynthesizer) headers() map[string]string {
	if s.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + s.apiKey}
}

// EstimateSpeechDuration estimates how long text takes to narrate at a
// natural pace of 2.5 words per second.
func EstimateSpeechDuration(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return float64(words) / 2.5
}
