package assets

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/lordpython/aisoulstudio/production"
)

// youtubeHosts is the closed whitelist of accepted YouTube hosts. Anything
// else is rejected before a video id is even extracted.
var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// ParseYouTubeVideoID validates rawURL against the host whitelist and
// extracts the 11-character video id from any of the common URL shapes
// (watch, youtu.be, shorts, embed, live).
func ParseYouTubeVideoID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme: %q", u.Scheme)
	}
	if !youtubeHosts[strings.ToLower(u.Hostname())] {
		return "", fmt.Errorf("host %q is not a YouTube host", u.Hostname())
	}

	var id string
	switch {
	case u.Hostname() == "youtu.be":
		id = strings.Trim(u.Path, "/")
	case strings.HasPrefix(u.Path, "/watch"):
		id = u.Query().Get("v")
	case strings.HasPrefix(u.Path, "/shorts/"):
		id = strings.Trim(strings.TrimPrefix(u.Path, "/shorts/"), "/")
	case strings.HasPrefix(u.Path, "/embed/"):
		id = strings.Trim(strings.TrimPrefix(u.Path, "/embed/"), "/")
	case strings.HasPrefix(u.Path, "/live/"):
		id = strings.Trim(strings.TrimPrefix(u.Path, "/live/"), "/")
	default:
		return "", fmt.Errorf("unrecognized YouTube URL shape: %s", u.Path)
	}

	if !validYouTubeID(id) {
		return "", fmt.Errorf("invalid YouTube video id: %q", id)
	}
	return id, nil
}

func validYouTubeID(id string) bool {
	if len(id) != 11 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// CaptionFetcher retrieves the timed transcript for a video.
type CaptionFetcher interface {
	FetchTranscript(ctx context.Context, videoID, language string) ([]production.TranscriptSegment, error)
}

// YouTubeImporter pulls video metadata through the Data API and the
// transcript through a caption fetcher.
type YouTubeImporter struct {
	service  *youtube.Service
	captions CaptionFetcher
	logger   *slog.Logger
}

// NewYouTubeImporter creates an importer over an authenticated service.
func NewYouTubeImporter(service *youtube.Service, captions CaptionFetcher, logger *slog.Logger) *YouTubeImporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &YouTubeImporter{service: service, captions: captions, logger: logger}
}

// NewYouTubeService builds a read-only Data API service from an API key.
func NewYouTubeService(ctx context.Context, apiKey string) (*youtube.Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("YouTube API key is empty")
	}
	return youtube.NewService(ctx, option.WithAPIKey(apiKey))
}

// NewYouTubeServiceFromOAuth builds a Data API service from OAuth refresh
// credentials, for installations that also upload.
func NewYouTubeServiceFromOAuth(ctx context.Context, clientID, clientSecret, refreshToken string) (*youtube.Service, error) {
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("YouTube OAuth credentials are incomplete")
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeReadonlyScope, youtube.YoutubeUploadScope},
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh on first use
	}

	client := oauth2.NewClient(ctx, conf.TokenSource(ctx, token))
	return youtube.NewService(ctx, option.WithHTTPClient(client))
}

// Import fetches metadata and transcript for the video behind rawURL.
func (y *YouTubeImporter) Import(ctx context.Context, rawURL string) (*production.ImportedContent, error) {
	videoID, err := ParseYouTubeVideoID(rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := y.service.Videos.List([]string{"snippet", "contentDetails"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("fetching video metadata: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("video %s not found", videoID)
	}
	video := resp.Items[0]

	duration, err := ParseISO8601Duration(video.ContentDetails.Duration)
	if err != nil {
		return nil, fmt.Errorf("parsing video duration: %w", err)
	}

	language := ""
	if video.Snippet != nil {
		language = video.Snippet.DefaultAudioLanguage
	}
	segments, err := y.captions.FetchTranscript(ctx, videoID, language)
	if err != nil {
		return nil, fmt.Errorf("fetching transcript: %w", err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("video %s has no transcript", videoID)
	}

	var transcript strings.Builder
	for i, seg := range segments {
		if i > 0 {
			transcript.WriteString(" ")
		}
		transcript.WriteString(seg.Text)
	}

	content := &production.ImportedContent{
		SourceKind: "youtube",
		SourceURL:  rawURL,
		Title:      video.Snippet.Title,
		Transcript: transcript.String(),
		Segments:   segments,
		Duration:   duration,
		Metadata: map[string]string{
			"videoId": videoID,
			"channel": video.Snippet.ChannelTitle,
		},
	}

	y.logger.Info("youtube content imported",
		"video_id", videoID,
		"duration", duration,
		"segments", len(segments))
	return content, nil
}

// ParseISO8601Duration parses the Data API's duration format (PT#H#M#S)
// into seconds.
func ParseISO8601Duration(s string) (float64, error) {
	rest, ok := strings.CutPrefix(s, "PT")
	if !ok {
		return 0, fmt.Errorf("malformed duration %q", s)
	}

	total := 0.0
	num := ""
	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'H' || r == 'M' || r == 'S':
			if num == "" {
				return 0, fmt.Errorf("malformed duration %q", s)
			}
			v, err := strconv.Atoi(num)
			if err != nil {
				return 0, fmt.Errorf("malformed duration %q: %w", s, err)
			}
			switch r {
			case 'H':
				total += float64(v) * 3600
			case 'M':
				total += float64(v) * 60
			case 'S':
				total += float64(v)
			}
			num = ""
		default:
			return 0, fmt.Errorf("malformed duration %q", s)
		}
	}
	if num != "" {
		return 0, fmt.Errorf("malformed duration %q", s)
	}
	return total, nil
}

// TimedTextFetcher retrieves transcripts from the public timedtext
// endpoint in json3 format.
type TimedTextFetcher struct {
	baseURL string
	client  *http.Client
}

// NewTimedTextFetcher creates a fetcher. An empty baseURL uses the public
// endpoint.
func NewTimedTextFetcher(baseURL string, client *http.Client) *TimedTextFetcher {
	if baseURL == "" {
		baseURL = "https://www.youtube.com/api/timedtext"
	}
	return &TimedTextFetcher{baseURL: baseURL, client: client}
}

type timedTextResponse struct {
	Events []struct {
		StartMs    int64 `json:"tStartMs"`
		DurationMs int64 `json:"dDurationMs"`
		Segs       []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// FetchTranscript downloads and flattens the json3 caption track.
func (f *TimedTextFetcher) FetchTranscript(ctx context.Context, videoID, language string) ([]production.TranscriptSegment, error) {
	if language == "" {
		language = "en"
	}

	query := url.Values{}
	query.Set("v", videoID)
	query.Set("lang", language)
	query.Set("fmt", "json3")

	var resp timedTextResponse
	err := getJSON(ctx, f.client, f.baseURL+"?"+query.Encode(), nil, &resp)
	if err != nil {
		return nil, err
	}

	var segments []production.TranscriptSegment
	for _, event := range resp.Events {
		var text strings.Builder
		for _, seg := range event.Segs {
			text.WriteString(seg.UTF8)
		}
		trimmed := strings.TrimSpace(strings.ReplaceAll(text.String(), "\n", " "))
		if trimmed == "" {
			continue
		}
		start := float64(event.StartMs) / 1000
		segments = append(segments, production.TranscriptSegment{
			Start: start,
			End:   start + float64(event.DurationMs)/1000,
			Text:  trimmed,
		})
	}
	return segments, nil
}
