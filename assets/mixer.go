package assets

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/lordpython/aisoulstudio/production"
)

// MixRequest assembles the audio sources for a final mix. Volumes are
// linear gains in [0,1]; zero means use the mixer's default for that track.
type MixRequest struct {
	Narration         []production.NarrationSegment
	NarrationURL      string
	Music             *production.MusicTrack
	Sfx               *production.SfxPlan
	VideoAudioURLs    []string
	NarrationVolume   float64
	MusicVolume       float64
	SfxVolume         float64
	VideoAudioVolume  float64
	IncludeVideoAudio bool
	Ducking           bool
}

// AudioMixer combines narration, music, ambient tracks, and video audio
// into a single output track.
type AudioMixer interface {
	Mix(ctx context.Context, req MixRequest) (*production.MixedAudio, error)
}

// HTTPAudioMixer posts the mix recipe to a JSON mixing service.
type HTTPAudioMixer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPAudioMixer creates a mixer for the given endpoint.
func NewHTTPAudioMixer(endpoint, apiKey string, client *http.Client) *HTTPAudioMixer {
	return &HTTPAudioMixer{endpoint: endpoint, apiKey: apiKey, client: client}
}

func (m *HTTPAudioMixer) headers() map[string]string {
	if m.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + m.apiKey}
}

type mixTrackInput struct {
	Kind   string  `json:"kind"`
	URL    string  `json:"url"`
	Volume float64 `json:"volume,omitempty"`
	Offset float64 `json:"offset,omitempty"`
}

type mixWireResponse struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
}

// Mix assembles the track list from the request and posts it. The response
// records which source kinds contributed and whether ducking was applied.
func (m *HTTPAudioMixer) Mix(ctx context.Context, req MixRequest) (*production.MixedAudio, error) {
	tracks, flags := buildMixTracks(req)
	if len(tracks) == 0 {
		return nil, fmt.Errorf("nothing to mix: no narration, music, sfx, or video audio")
	}

	ducking := req.Ducking && flags.Narration && flags.Music

	var resp mixWireResponse
	err := postJSON(ctx, m.client, m.endpoint, m.headers(), map[string]any{
		"tracks":  tracks,
		"ducking": ducking,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("mixing audio: %w", err)
	}
	if resp.URL == "" {
		return nil, fmt.Errorf("mix endpoint returned no URL")
	}

	return &production.MixedAudio{
		URL:            resp.URL,
		Duration:       resp.Duration,
		Tracks:         flags,
		DuckingApplied: ducking,
	}, nil
}

// buildMixTracks flattens the request into the mixer's track list and
// records which source kinds are present.
func buildMixTracks(req MixRequest) ([]mixTrackInput, production.TrackFlags) {
	var tracks []mixTrackInput
	var flags production.TrackFlags

	if req.NarrationURL != "" {
		tracks = append(tracks, mixTrackInput{Kind: "narration", URL: req.NarrationURL, Volume: req.NarrationVolume})
		flags.Narration = true
	} else {
		offset := 0.0
		for _, seg := range req.Narration {
			if seg.AudioURL != "" {
				tracks = append(tracks, mixTrackInput{
					Kind:   "narration",
					URL:    seg.AudioURL,
					Volume: req.NarrationVolume,
					Offset: offset,
				})
				flags.Narration = true
			}
			offset += seg.AudioDuration
		}
	}

	if req.Music != nil && req.Music.URL != "" {
		volume := req.MusicVolume
		if volume == 0 {
			volume = req.Music.Volume
		}
		tracks = append(tracks, mixTrackInput{Kind: "music", URL: req.Music.URL, Volume: volume})
		flags.Music = true
	}

	if req.Sfx != nil {
		for _, scene := range req.Sfx.Scenes {
			if scene.TrackURL == "" {
				continue
			}
			volume := req.SfxVolume
			if volume == 0 {
				volume = scene.Volume
			}
			tracks = append(tracks, mixTrackInput{Kind: "sfx", URL: scene.TrackURL, Volume: volume})
			flags.Sfx = true
		}
	}

	if req.IncludeVideoAudio {
		for _, url := range req.VideoAudioURLs {
			if strings.TrimSpace(url) == "" {
				continue
			}
			tracks = append(tracks, mixTrackInput{Kind: "videoAudio", URL: url, Volume: req.VideoAudioVolume})
			flags.VideoAudio = true
		}
	}

	return tracks, flags
}
