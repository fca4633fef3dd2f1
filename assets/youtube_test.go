package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/lordpython/aisoulstudio/production"
)

func TestParseYouTubeVideoID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"watch URL", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"shorts URL", "https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"embed URL", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"live URL", "https://www.youtube.com/live/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"mobile host", "https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"music host", "https://music.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"extra params", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", false},
		{"foreign host", "https://vimeo.com/123456", "", true},
		{"lookalike host", "https://youtube.com.evil.example/watch?v=dQw4w9WgXcQ", "", true},
		{"missing id", "https://www.youtube.com/watch", "", true},
		{"short id", "https://youtu.be/abc", "", true},
		{"bad characters", "https://youtu.be/abc$efghijk", "", true},
		{"channel path", "https://www.youtube.com/@somechannel", "", true},
		{"ftp scheme", "ftp://www.youtube.com/watch?v=dQw4w9WgXcQ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseYouTubeVideoID(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseISO8601Duration(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"PT4M13S", 253, false},
		{"PT1H2M3S", 3723, false},
		{"PT45S", 45, false},
		{"PT2M", 120, false},
		{"PT1H", 3600, false},
		{"P1DT2H", 0, true},
		{"4M13S", 0, true},
		{"PT", 0, true},
		{"PTM", 0, true},
		{"PT5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseISO8601Duration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimedTextFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("v"))
		assert.Equal(t, "en", r.URL.Query().Get("lang"))
		assert.Equal(t, "json3", r.URL.Query().Get("fmt"))
		w.Write([]byte(`{"events":[
			{"tStartMs":0,"dDurationMs":2500,"segs":[{"utf8":"Never gonna "},{"utf8":"give you up"}]},
			{"tStartMs":2500,"dDurationMs":1000,"segs":[{"utf8":"\n"}]},
			{"tStartMs":3500,"dDurationMs":2000,"segs":[{"utf8":"never gonna let you down"}]}
		]}`))
	}))
	defer server.Close()

	fetcher := NewTimedTextFetcher(server.URL, server.Client())
	segments, err := fetcher.FetchTranscript(context.Background(), "dQw4w9WgXcQ", "")
	require.NoError(t, err)

	require.Len(t, segments, 2, "whitespace-only events are dropped")
	assert.Equal(t, "Never gonna give you up", segments[0].Text)
	assert.InDelta(t, 0, segments[0].Start, 0.001)
	assert.InDelta(t, 2.5, segments[0].End, 0.001)
	assert.Equal(t, "never gonna let you down", segments[1].Text)
	assert.InDelta(t, 3.5, segments[1].Start, 0.001)
}

// scriptedCaptions returns fixed segments without any network.
type scriptedCaptions struct {
	segments []production.TranscriptSegment
}

func (s *scriptedCaptions) FetchTranscript(context.Context, string, string) ([]production.TranscriptSegment, error) {
	return s.segments, nil
}

func TestYouTubeImporter_Import(t *testing.T) {
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "videos")
		assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{
			"id":"dQw4w9WgXcQ",
			"snippet":{"title":"Test Video","channelTitle":"Test Channel","defaultAudioLanguage":"en"},
			"contentDetails":{"duration":"PT3M33S"}
		}]}`))
	}))
	defer apiServer.Close()

	service, err := youtube.NewService(context.Background(),
		option.WithEndpoint(apiServer.URL),
		option.WithAPIKey("test-key"),
		option.WithHTTPClient(apiServer.Client()))
	require.NoError(t, err)

	captions := &scriptedCaptions{segments: []production.TranscriptSegment{
		{Start: 0, End: 5, Text: "First line."},
		{Start: 5, End: 10, Text: "Second line."},
	}}

	importer := NewYouTubeImporter(service, captions, nil)
	content, err := importer.Import(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)

	assert.Equal(t, "youtube", content.SourceKind)
	assert.Equal(t, "Test Video", content.Title)
	assert.Equal(t, "Test Channel", content.Metadata["channel"])
	assert.Equal(t, "dQw4w9WgXcQ", content.Metadata["videoId"])
	assert.InDelta(t, 213, content.Duration, 0.001)
	assert.Len(t, content.Segments, 2)
	assert.Equal(t, "First line. Second line.", content.Transcript)
}

func TestYouTubeImporter_RejectsForeignHost(t *testing.T) {
	importer := NewYouTubeImporter(nil, &scriptedCaptions{}, nil)

	_, err := importer.Import(context.Background(), "https://vimeo.com/123456")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a YouTube host")
}
