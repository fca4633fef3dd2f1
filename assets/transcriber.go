package assets

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/lordpython/aisoulstudio/production"
)

// TranscribeRequest carries the audio to transcribe.
type TranscribeRequest struct {
	Audio        []byte
	AudioURL     string
	MimeType     string
	LanguageHint string
}

// Transcription is a timed transcript.
type Transcription struct {
	Language string
	Duration float64
	Text     string
	Segments []production.TranscriptSegment
}

// Transcriber turns audio into a timed transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (*Transcription, error)
}

// HTTPTranscriber calls a JSON speech-to-text endpoint. Audio travels as
// base64 when provided inline, or as a URL the service fetches itself.
type HTTPTranscriber struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPTranscriber creates a transcriber for the given endpoint.
func NewHTTPTranscriber(endpoint, apiKey string, client *http.Client) *HTTPTranscriber {
	return &HTTPTranscriber{endpoint: endpoint, apiKey: apiKey, client: client}
}

func (t *HTTPTranscriber) headers() map[string]string {
	if t.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + t.apiKey}
}

type transcribeWireResponse struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe posts the audio and returns the timed transcript. A response
// with no segments still succeeds when it carries text; the whole text
// becomes a single segment spanning the full duration.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, req TranscribeRequest) (*Transcription, error) {
	if len(req.Audio) == 0 && req.AudioURL == "" {
		return nil, fmt.Errorf("no audio to transcribe")
	}

	body := map[string]any{
		"mimeType": req.MimeType,
		"language": req.LanguageHint,
	}
	if len(req.Audio) > 0 {
		body["audioBase64"] = base64.StdEncoding.EncodeToString(req.Audio)
	} else {
		body["audioUrl"] = req.AudioURL
	}

	var resp transcribeWireResponse
	if err := postJSON(ctx, t.client, t.endpoint, t.headers(), body, &resp); err != nil {
		return nil, fmt.Errorf("transcribing audio: %w", err)
	}

	result := &Transcription{
		Language: resp.Language,
		Duration: resp.Duration,
		Text:     resp.Text,
	}
	for _, seg := range resp.Segments {
		result.Segments = append(result.Segments, production.TranscriptSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}

	if len(result.Segments) == 0 {
		if result.Text == "" {
			return nil, fmt.Errorf("transcription returned no text")
		}
		result.Segments = []production.TranscriptSegment{{Start: 0, End: result.Duration, Text: result.Text}}
	}
	return result, nil
}
