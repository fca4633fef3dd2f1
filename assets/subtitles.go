package assets

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lordpython/aisoulstudio/production"
)

// Subtitle formats.
const (
	SubtitleFormatSRT = "srt"
	SubtitleFormatVTT = "vtt"
)

// Bidi control characters for right-to-left subtitle rendering. Each RTL
// cue is wrapped RLE…PDF with an RLM immediately before the text.
const (
	bidiRLE = "‫" // RIGHT-TO-LEFT EMBEDDING
	bidiRLM = "‏" // RIGHT-TO-LEFT MARK
	bidiPDF = "‬" // POP DIRECTIONAL FORMATTING
)

// rtlLanguages lists base language codes rendered right to left.
var rtlLanguages = map[string]bool{
	"ar": true,
	"he": true,
	"fa": true,
	"ur": true,
}

// IsRTLLanguage reports whether a language code (base or BCP 47 tagged,
// e.g. "ar" or "ar-SA") renders right to left.
func IsRTLLanguage(lang string) bool {
	base := strings.ToLower(lang)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	return rtlLanguages[base]
}

// SerializeSubtitles renders cues in the requested wire format. RTL
// languages get each cue's text wrapped with bidi embedding markers.
// Parsing the output with ParseSubtitles and re-serializing reproduces the
// content byte for byte.
func SerializeSubtitles(cues []production.SubtitleCue, format, language string) (string, error) {
	switch format {
	case SubtitleFormatSRT:
		return serializeSRT(cues, language), nil
	case SubtitleFormatVTT:
		return serializeVTT(cues, language), nil
	default:
		return "", fmt.Errorf("unsupported subtitle format: %q", format)
	}
}

func serializeSRT(cues []production.SubtitleCue, language string) string {
	rtl := IsRTLLanguage(language)

	var b strings.Builder
	for i, cue := range cues {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("\n")
		b.WriteString(formatSRTTimestamp(cue.Start))
		b.WriteString(" --> ")
		b.WriteString(formatSRTTimestamp(cue.End))
		b.WriteString("\n")
		b.WriteString(wrapBidi(cue.Text, rtl))
		b.WriteString("\n\n")
	}
	return b.String()
}

func serializeVTT(cues []production.SubtitleCue, language string) string {
	rtl := IsRTLLanguage(language)

	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, cue := range cues {
		b.WriteString(formatVTTTimestamp(cue.Start))
		b.WriteString(" --> ")
		b.WriteString(formatVTTTimestamp(cue.End))
		b.WriteString("\n")
		b.WriteString(wrapBidi(cue.Text, rtl))
		b.WriteString("\n\n")
	}
	return b.String()
}

func wrapBidi(text string, rtl bool) string {
	if !rtl {
		return text
	}
	return bidiRLE + bidiRLM + text + bidiPDF
}

// unwrapBidi strips the bidi wrapping applied by wrapBidi so parsed cues
// hold the raw text.
func unwrapBidi(text string) string {
	if strings.HasPrefix(text, bidiRLE+bidiRLM) && strings.HasSuffix(text, bidiPDF) {
		return strings.TrimSuffix(strings.TrimPrefix(text, bidiRLE+bidiRLM), bidiPDF)
	}
	return text
}

// formatSRTTimestamp renders seconds as HH:MM:SS,mmm.
func formatSRTTimestamp(seconds float64) string {
	h, m, s, ms := splitTimestamp(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// formatVTTTimestamp renders seconds as HH:MM:SS.mmm.
func formatVTTTimestamp(seconds float64) string {
	h, m, s, ms := splitTimestamp(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitTimestamp(seconds float64) (h, m, s, ms int) {
	if seconds < 0 {
		seconds = 0
	}
	totalMs := int(seconds*1000 + 0.5)
	ms = totalMs % 1000
	totalSec := totalMs / 1000
	s = totalSec % 60
	m = (totalSec / 60) % 60
	h = totalSec / 3600
	return h, m, s, ms
}

// ParseSubtitles parses serialized SRT or VTT content back into cues.
// Bidi wrapping is stripped so round-tripping through SerializeSubtitles
// with the same language reproduces the input.
func ParseSubtitles(content, format string) ([]production.SubtitleCue, error) {
	switch format {
	case SubtitleFormatSRT:
		return parseSRT(content)
	case SubtitleFormatVTT:
		return parseVTT(content)
	default:
		return nil, fmt.Errorf("unsupported subtitle format: %q", format)
	}
}

func parseSRT(content string) ([]production.SubtitleCue, error) {
	var cues []production.SubtitleCue

	blocks := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n")
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		lines := strings.Split(block, "\n")
		if len(lines) < 2 {
			return nil, fmt.Errorf("malformed SRT block: %q", block)
		}

		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			return nil, fmt.Errorf("malformed SRT cue index %q: %w", lines[0], err)
		}

		start, end, err := parseTimestampLine(lines[1], ",")
		if err != nil {
			return nil, err
		}

		text := unwrapBidi(strings.Join(lines[2:], "\n"))
		cues = append(cues, production.SubtitleCue{
			Index: index,
			Start: start,
			End:   end,
			Text:  text,
		})
	}
	return cues, nil
}

func parseVTT(content string) ([]production.SubtitleCue, error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	rest, ok := strings.CutPrefix(normalized, "WEBVTT\n\n")
	if !ok {
		return nil, fmt.Errorf("missing WEBVTT header")
	}

	var cues []production.SubtitleCue
	index := 0
	for _, block := range strings.Split(rest, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		lines := strings.Split(block, "\n")
		start, end, err := parseTimestampLine(lines[0], ".")
		if err != nil {
			return nil, err
		}

		index++
		text := unwrapBidi(strings.Join(lines[1:], "\n"))
		cues = append(cues, production.SubtitleCue{
			Index: index,
			Start: start,
			End:   end,
			Text:  text,
		})
	}
	return cues, nil
}

// parseTimestampLine parses "HH:MM:SS<sep>mmm --> HH:MM:SS<sep>mmm".
func parseTimestampLine(line, msSep string) (start, end float64, err error) {
	parts := strings.Split(line, " --> ")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed timestamp line: %q", line)
	}

	start, err = parseTimestamp(strings.TrimSpace(parts[0]), msSep)
	if err != nil {
		return 0, 0, err
	}
	end, err = parseTimestamp(strings.TrimSpace(parts[1]), msSep)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseTimestamp(ts, msSep string) (float64, error) {
	clock, msPart, ok := strings.Cut(ts, msSep)
	if !ok {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}

	clockParts := strings.Split(clock, ":")
	if len(clockParts) != 3 {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}

	h, err := strconv.Atoi(clockParts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}
	m, err := strconv.Atoi(clockParts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}
	s, err := strconv.Atoi(clockParts[2])
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}
	ms, err := strconv.Atoi(msPart)
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
	}

	return float64(h)*3600 + float64(m)*60 + float64(s) + float64(ms)/1000, nil
}

// BuildCues derives subtitle cues from narration segments, splitting each
// segment's text into chunks of at most maxWordsPerSegment words and
// distributing the segment's measured duration across chunks by word count.
// Cue start times accumulate across segments.
func BuildCues(segments []production.NarrationSegment, maxWordsPerSegment int) []production.SubtitleCue {
	if maxWordsPerSegment <= 0 {
		maxWordsPerSegment = 8
	}

	var cues []production.SubtitleCue
	offset := 0.0
	index := 0

	for _, seg := range segments {
		words := strings.Fields(seg.Text)
		duration := seg.AudioDuration
		if duration <= 0 {
			// Rough speaking-rate estimate when no measurement exists.
			duration = float64(len(words)) / 2.5
		}
		if len(words) == 0 {
			offset += duration
			continue
		}

		perWord := duration / float64(len(words))
		for i := 0; i < len(words); i += maxWordsPerSegment {
			j := min(i+maxWordsPerSegment, len(words))
			index++
			cues = append(cues, production.SubtitleCue{
				Index: index,
				Start: offset + float64(i)*perWord,
				End:   offset + float64(j)*perWord,
				Text:  strings.Join(words[i:j], " "),
			})
		}
		offset += duration
	}
	return cues
}
