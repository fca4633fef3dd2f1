// Package intent derives production hints from the user's free-form
// request before any LLM call: media sources worth importing, the visual
// style, and which optional tools the user asked for. The result is
// rendered as a hint block prepended to the user's message; it never
// invokes a tool itself.
package intent

import (
	"fmt"
	"regexp"
	"strings"
)

// First-tool recommendations.
const (
	FirstToolImportYouTube   = "import-from-youtube"
	FirstToolTranscribeAudio = "transcribe-audio"
	FirstToolPlanVideo       = "plan-video"
)

// Result is the one-shot analysis of a user request.
type Result struct {
	HasYouTubeURL          bool
	HasAudioFile           bool
	WantsAnimation         bool
	WantsMusic             bool
	WantsBackgroundRemoval bool
	WantsSubtitles         bool

	YouTubeURL    string
	AudioFilePath string
	DetectedStyle string

	FirstTool     string
	OptionalTools []string
}

// youtubePatterns cover the URL shapes users paste. The capture group is
// the 11-character video id; every match normalizes to the canonical
// watch URL.
var youtubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:https?://)?(?:www\.|m\.|music\.)?youtube\.com/watch\?\S*?v=([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`(?i)(?:https?://)?youtu\.be/([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`(?i)(?:https?://)?(?:www\.|m\.)?youtube\.com/shorts/([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`(?i)(?:https?://)?(?:www\.|m\.)?youtube\.com/embed/([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`(?i)(?:https?://)?(?:www\.|m\.)?youtube\.com/live/([A-Za-z0-9_-]{11})`),
}

// tweetPattern recognizes video posts on X; these import through the
// same flow but keep their original URL since there is no watch form.
var tweetPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?(?:twitter|x)\.com/[A-Za-z0-9_]+/status/[0-9]+`)

// audioFilePattern extracts a path or filename with a supported audio
// extension.
var audioFilePattern = regexp.MustCompile(`(?i)(\S+\.(?:mp3|wav|m4a|ogg|flac|aac))\b`)

// Keyword vocabularies, matched whole-word against the lowered input.
// "video" is deliberately absent from the animation list: every output
// is a video, so the word carries no signal.
var (
	animationWords  = regexp.MustCompile(`\b(?:animated|animation|animate|motion|moving|dynamic)\b`)
	musicWords      = regexp.MustCompile(`\b(?:music|soundtrack|bgm|song|melody|tune)\b`)
	backgroundWords = regexp.MustCompile(`\b(?:remove (?:the )?background|background removal|transparent background|without (?:a )?background)\b`)
	subtitleWords   = regexp.MustCompile(`\b(?:subtitles?|captions?|closed captions)\b`)
)

// styleTable maps each supported preset to its synonyms. Scan order is
// fixed; the first style with a hit wins.
var styleTable = []struct {
	Name     string
	Synonyms []string
}{
	{"Cinematic", []string{"cinematic", "filmic", "film look", "movie style"}},
	{"Anime", []string{"anime", "manga"}},
	{"Watercolor", []string{"watercolor", "watercolour", "water color"}},
	{"Oil Painting", []string{"oil painting", "painterly"}},
	{"Documentary", []string{"documentary"}},
	{"Realistic", []string{"photorealistic", "photo-realistic", "realistic", "lifelike"}},
	{"Vintage", []string{"vintage", "retro", "old-fashioned"}},
	{"Modern", []string{"modern", "contemporary", "minimalist"}},
	{"Fantasy", []string{"fantasy", "magical", "fairytale", "fairy tale"}},
	{"Sci-Fi", []string{"sci-fi", "scifi", "science fiction", "futuristic", "cyberpunk"}},
	{"Horror", []string{"horror", "creepy", "spooky", "scary"}},
	{"Noir", []string{"noir"}},
}

// styleMatchers holds one compiled whole-word matcher per style, in
// table order.
var styleMatchers = func() []*regexp.Regexp {
	matchers := make([]*regexp.Regexp, len(styleTable))
	for i, style := range styleTable {
		quoted := make([]string, len(style.Synonyms))
		for j, syn := range style.Synonyms {
			quoted[j] = regexp.QuoteMeta(syn)
		}
		matchers[i] = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	return matchers
}()

// Analyze inspects one user request and returns the derived hints.
func Analyze(input string) Result {
	lowered := strings.ToLower(input)
	r := Result{}

	for _, pattern := range youtubePatterns {
		if m := pattern.FindStringSubmatch(input); m != nil {
			r.HasYouTubeURL = true
			r.YouTubeURL = "https://www.youtube.com/watch?v=" + m[1]
			break
		}
	}
	if !r.HasYouTubeURL {
		if m := tweetPattern.FindString(input); m != "" {
			r.HasYouTubeURL = true
			r.YouTubeURL = m
		}
	}

	if m := audioFilePattern.FindStringSubmatch(input); m != nil {
		r.HasAudioFile = true
		r.AudioFilePath = m[1]
	}

	r.WantsAnimation = animationWords.MatchString(lowered)
	r.WantsMusic = musicWords.MatchString(lowered)
	r.WantsBackgroundRemoval = backgroundWords.MatchString(lowered)
	r.WantsSubtitles = subtitleWords.MatchString(lowered)

	for i, matcher := range styleMatchers {
		if matcher.MatchString(lowered) {
			r.DetectedStyle = styleTable[i].Name
			break
		}
	}

	switch {
	case r.HasYouTubeURL:
		r.FirstTool = FirstToolImportYouTube
	case r.HasAudioFile:
		r.FirstTool = FirstToolTranscribeAudio
	default:
		r.FirstTool = FirstToolPlanVideo
	}

	if r.WantsAnimation {
		r.OptionalTools = append(r.OptionalTools, "animate_image")
	}
	if r.WantsMusic {
		r.OptionalTools = append(r.OptionalTools, "generate_music")
	}
	if r.WantsBackgroundRemoval {
		r.OptionalTools = append(r.OptionalTools, "remove_background")
	}
	if r.WantsSubtitles {
		r.OptionalTools = append(r.OptionalTools, "generate_subtitles")
	}

	return r
}

// HasImportSignal reports whether the request names an external source.
func (r Result) HasImportSignal() bool {
	return r.HasYouTubeURL || r.HasAudioFile
}

// HintBlock renders the analysis as plain-text guidance for the model.
func (r Result) HintBlock() string {
	var b strings.Builder
	b.WriteString("[production hints]\n")
	switch r.FirstTool {
	case FirstToolImportYouTube:
		fmt.Fprintf(&b, "start with import_youtube_content using url %s\n", r.YouTubeURL)
	case FirstToolTranscribeAudio:
		fmt.Fprintf(&b, "the user attached an audio file (%s); start with transcribe_audio_file once it is in a session\n", r.AudioFilePath)
	default:
		b.WriteString("start with plan_video\n")
	}
	if r.DetectedStyle != "" {
		fmt.Fprintf(&b, "requested visual style: %s\n", r.DetectedStyle)
	}
	if len(r.OptionalTools) > 0 {
		fmt.Fprintf(&b, "also requested: %s\n", strings.Join(r.OptionalTools, ", "))
	}
	b.WriteString("[/production hints]")
	return b.String()
}

// Annotate prepends the hint block to the user's message.
func (r Result) Annotate(message string) string {
	return r.HintBlock() + "\n\n" + message
}
