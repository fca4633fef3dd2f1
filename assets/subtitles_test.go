package assets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordpython/aisoulstudio/production"
)

func TestIsRTLLanguage(t *testing.T) {
	tests := []struct {
		lang string
		want bool
	}{
		{"ar", true},
		{"ar-SA", true},
		{"he", true},
		{"he_IL", true},
		{"fa", true},
		{"en", false},
		{"en-US", false},
		{"ja", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRTLLanguage(tt.lang))
		})
	}
}

func TestSerializeSubtitles_SRT(t *testing.T) {
	cues := []production.SubtitleCue{
		{Index: 1, Start: 0, End: 2.5, Text: "Bees pollinate flowers"},
		{Index: 2, Start: 2.5, End: 5.04, Text: "across the whole orchard"},
	}

	content, err := SerializeSubtitles(cues, SubtitleFormatSRT, "en")
	require.NoError(t, err)

	want := "1\n00:00:00,000 --> 00:00:02,500\nBees pollinate flowers\n\n" +
		"2\n00:00:02,500 --> 00:00:05,040\nacross the whole orchard\n\n"
	assert.Equal(t, want, content)
}

func TestSerializeSubtitles_VTT(t *testing.T) {
	cues := []production.SubtitleCue{
		{Index: 1, Start: 61.2, End: 63.75, Text: "One minute in"},
	}

	content, err := SerializeSubtitles(cues, SubtitleFormatVTT, "en")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(content, "WEBVTT\n\n"))
	assert.Contains(t, content, "00:01:01.200 --> 00:01:03.750\nOne minute in\n")
	assert.NotContains(t, content, ",200", "VTT uses dot milliseconds")
}

func TestSerializeSubtitles_RTLWrapping(t *testing.T) {
	cues := []production.SubtitleCue{
		{Index: 1, Start: 0, End: 2, Text: "مرحبا بالعالم"},
	}

	content, err := SerializeSubtitles(cues, SubtitleFormatSRT, "ar")
	require.NoError(t, err)

	assert.Contains(t, content, "‫‏مرحبا بالعالم‬")
}

func TestSerializeSubtitles_UnsupportedFormat(t *testing.T) {
	_, err := SerializeSubtitles(nil, "ass", "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported subtitle format")
}

func TestParseSubtitles_SRTRoundTrip(t *testing.T) {
	cues := []production.SubtitleCue{
		{Index: 1, Start: 0, End: 2.5, Text: "First cue"},
		{Index: 2, Start: 2.5, End: 6.123, Text: "Second cue\nwith two lines"},
		{Index: 3, Start: 3661.001, End: 3665, Text: "Past the hour mark"},
	}

	content, err := SerializeSubtitles(cues, SubtitleFormatSRT, "en")
	require.NoError(t, err)

	parsed, err := ParseSubtitles(content, SubtitleFormatSRT)
	require.NoError(t, err)
	require.Len(t, parsed, 3)
	assert.Equal(t, cues, parsed)

	again, err := SerializeSubtitles(parsed, SubtitleFormatSRT, "en")
	require.NoError(t, err)
	assert.Equal(t, content, again, "serialize(parse(x)) must reproduce x byte for byte")
}

func TestParseSubtitles_VTTRoundTrip(t *testing.T) {
	cues := []production.SubtitleCue{
		{Index: 1, Start: 0, End: 1.5, Text: "Hello"},
		{Index: 2, Start: 1.5, End: 4, Text: "World"},
	}

	content, err := SerializeSubtitles(cues, SubtitleFormatVTT, "en")
	require.NoError(t, err)

	parsed, err := ParseSubtitles(content, SubtitleFormatVTT)
	require.NoError(t, err)
	assert.Equal(t, cues, parsed)

	again, err := SerializeSubtitles(parsed, SubtitleFormatVTT, "en")
	require.NoError(t, err)
	assert.Equal(t, content, again)
}

func TestParseSubtitles_RTLRoundTrip(t *testing.T) {
	cues := []production.SubtitleCue{
		{Index: 1, Start: 0, End: 2, Text: "שלום עולם"},
		{Index: 2, Start: 2, End: 4, Text: "כתוביות"},
	}

	content, err := SerializeSubtitles(cues, SubtitleFormatSRT, "he")
	require.NoError(t, err)

	parsed, err := ParseSubtitles(content, SubtitleFormatSRT)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, "שלום עולם", parsed[0].Text, "bidi wrapping is stripped on parse")

	again, err := SerializeSubtitles(parsed, SubtitleFormatSRT, "he")
	require.NoError(t, err)
	assert.Equal(t, content, again)
}

func TestParseSubtitles_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		format  string
	}{
		{"srt bad index", "x\n00:00:00,000 --> 00:00:01,000\nhi\n\n", SubtitleFormatSRT},
		{"srt bad timestamp", "1\n00:00 --> 00:01\nhi\n\n", SubtitleFormatSRT},
		{"vtt missing header", "00:00:00.000 --> 00:00:01.000\nhi\n\n", SubtitleFormatVTT},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSubtitles(tt.content, tt.format)
			assert.Error(t, err)
		})
	}
}

func TestBuildCues_SplitsByWordCount(t *testing.T) {
	segments := []production.NarrationSegment{
		{SceneID: "scene-1", Text: "one two three four five six seven eight nine ten", AudioDuration: 10},
	}

	cues := BuildCues(segments, 4)
	require.Len(t, cues, 3)

	assert.Equal(t, "one two three four", cues[0].Text)
	assert.Equal(t, "five six seven eight", cues[1].Text)
	assert.Equal(t, "nine ten", cues[2].Text)

	// Ten words over ten seconds: one second per word.
	assert.InDelta(t, 0, cues[0].Start, 0.001)
	assert.InDelta(t, 4, cues[0].End, 0.001)
	assert.InDelta(t, 4, cues[1].Start, 0.001)
	assert.InDelta(t, 8, cues[1].End, 0.001)
	assert.InDelta(t, 8, cues[2].Start, 0.001)
	assert.InDelta(t, 10, cues[2].End, 0.001)
}

func TestBuildCues_AccumulatesAcrossSegments(t *testing.T) {
	segments := []production.NarrationSegment{
		{SceneID: "scene-1", Text: "first segment", AudioDuration: 4},
		{SceneID: "scene-2", Text: "second segment", AudioDuration: 6},
	}

	cues := BuildCues(segments, 8)
	require.Len(t, cues, 2)

	assert.InDelta(t, 0, cues[0].Start, 0.001)
	assert.InDelta(t, 4, cues[0].End, 0.001)
	assert.InDelta(t, 4, cues[1].Start, 0.001)
	assert.InDelta(t, 10, cues[1].End, 0.001)
	assert.Equal(t, 1, cues[0].Index)
	assert.Equal(t, 2, cues[1].Index)
}

func TestBuildCues_EstimatesDurationWhenUnmeasured(t *testing.T) {
	segments := []production.NarrationSegment{
		{SceneID: "scene-1", Text: "five words in this one"},
	}

	cues := BuildCues(segments, 8)
	require.Len(t, cues, 1)
	assert.InDelta(t, 2.0, cues[0].End, 0.001, "five words at 2.5 words per second")
}

func TestBuildCues_DefaultMaxWords(t *testing.T) {
	words := make([]string, 16)
	for i := range words {
		words[i] = "w"
	}
	segments := []production.NarrationSegment{
		{SceneID: "scene-1", Text: strings.Join(words, " "), AudioDuration: 16},
	}

	cues := BuildCues(segments, 0)
	require.Len(t, cues, 2, "zero maxWords falls back to 8 per cue")
}
