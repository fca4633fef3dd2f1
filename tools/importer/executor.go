// Package importer implements the IMPORT tool group: bringing YouTube
// videos, uploaded audio, and web articles into import sessions that
// plan_video can build on.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lordpython/aisoulstudio/assets"
	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/tools"
)

// ContentImporter pulls one external source into an imported-content
// record. Both the YouTube and the article importer satisfy it.
type ContentImporter interface {
	Import(ctx context.Context, url string) (*production.ImportedContent, error)
}

// Executor serves the IMPORT tools.
type Executor struct {
	sessions    *session.Store
	youtube     ContentImporter
	articles    ContentImporter
	transcriber assets.Transcriber
	logger      *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates the IMPORT executor.
func NewExecutor(sessions *session.Store, youtube, articles ContentImporter, transcriber assets.Transcriber, opts ...Option) *Executor {
	e := &Executor{
		sessions:    sessions,
		youtube:     youtube,
		articles:    articles,
		transcriber: transcriber,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one IMPORT tool call.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	switch call.Name {
	case "import_youtube_content":
		return e.importYouTube(ctx, call)
	case "transcribe_audio_file":
		return e.transcribeAudio(ctx, call)
	case "import_web_article":
		return e.importArticle(ctx, call)
	default:
		return tools.UnknownTool(call.Name)
	}
}

// importYouTube pulls a video's metadata and transcript into a fresh
// import session. Bad URLs fail in-band before any network call.
func (e *Executor) importYouTube(ctx context.Context, call llm.ToolCall) (string, error) {
	url, ok := call.StringArg("url")
	if !ok || url == "" {
		return tools.Failure("url is required", "pass the full YouTube link"), nil
	}
	if _, err := assets.ParseYouTubeVideoID(url); err != nil {
		return tools.Failure(err.Error(), "pass a youtube.com or youtu.be link"), nil
	}
	if e.youtube == nil {
		return tools.Failure("youtube import is not configured",
			"set a YouTube API key in the studio config"), nil
	}

	content, err := e.youtube.Import(ctx, url)
	if err != nil {
		return "", fmt.Errorf("importing youtube content: %w", err)
	}

	id := production.NewImportID()
	state := production.NewState(id)
	state.ImportedContent = content
	if err := e.sessions.Create(id, state); err != nil {
		return "", err
	}

	e.logger.Info("YouTube content imported",
		"session_id", id,
		"title", content.Title,
		"duration", content.Duration,
		"segments", len(content.Segments))

	return tools.Success(map[string]any{
		"sessionId":          id,
		"title":              content.Title,
		"duration":           content.Duration,
		"transcriptSegments": len(content.Segments),
		"transcriptPreview":  preview(content.Transcript, 200),
	}), nil
}

// transcribeAudio transcribes the audio attached to an import session and
// stores the timed transcript back on it.
func (e *Executor) transcribeAudio(ctx context.Context, call llm.ToolCall) (string, error) {
	state, err := tools.ResolveSession(e.sessions, call, "contentPlanId")
	if err != nil {
		return tools.Failure(err.Error(), tools.SessionSuggestion), nil
	}
	imported := state.ImportedContent
	if imported == nil || len(imported.Audio) == 0 {
		return tools.Failure("session has no audio attached",
			"attach an uploaded audio file to the session before transcribing"), nil
	}
	if e.transcriber == nil {
		return tools.Failure("transcription is not configured",
			"set the transcriber endpoint in the studio config"), nil
	}

	language, _ := call.StringArg("language")
	transcription, err := e.transcriber.Transcribe(ctx, assets.TranscribeRequest{
		Audio:        imported.Audio,
		MimeType:     imported.MimeType,
		LanguageHint: language,
	})
	if err != nil {
		return "", fmt.Errorf("transcribing audio: %w", err)
	}

	if err := e.sessions.Update(state.SessionID, func(s *production.State) {
		s.ImportedContent.Transcript = transcription.Text
		s.ImportedContent.Segments = transcription.Segments
		s.ImportedContent.Duration = transcription.Duration
		if s.ImportedContent.Metadata == nil {
			s.ImportedContent.Metadata = map[string]string{}
		}
		s.ImportedContent.Metadata["language"] = transcription.Language
	}); err != nil {
		return "", err
	}

	return tools.Success(map[string]any{
		"segmentCount": len(transcription.Segments),
		"language":     transcription.Language,
		"duration":     transcription.Duration,
	}), nil
}

// importArticle fetches a web article and stores its readable text as an
// import session.
func (e *Executor) importArticle(ctx context.Context, call llm.ToolCall) (string, error) {
	url, ok := call.StringArg("url")
	if !ok || url == "" {
		return tools.Failure("url is required", "pass the article link"), nil
	}
	if err := assets.ValidateArticleURL(url); err != nil {
		return tools.Failure(err.Error(), "pass a public http(s) article link"), nil
	}

	content, err := e.articles.Import(ctx, url)
	if err != nil {
		return "", fmt.Errorf("importing article: %w", err)
	}

	id := production.NewImportID()
	state := production.NewState(id)
	state.ImportedContent = content
	if err := e.sessions.Create(id, state); err != nil {
		return "", err
	}

	e.logger.Info("Article imported",
		"session_id", id,
		"title", content.Title,
		"words", len(strings.Fields(content.Transcript)))

	return tools.Success(map[string]any{
		"sessionId":         id,
		"title":             content.Title,
		"wordCount":         len(strings.Fields(content.Transcript)),
		"transcriptPreview": preview(content.Transcript, 200),
	}), nil
}

// preview clips text to max runes for payload-sized excerpts.
func preview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// ListTools returns the IMPORT tool definitions.
func (e *Executor) ListTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "import_youtube_content",
			Description: "Import a YouTube video's transcript and metadata as the source for a production",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "YouTube video URL (watch, youtu.be, shorts, embed, or live)",
					},
				},
				"required": []string{"url"},
			},
		},
		{
			Name:        "transcribe_audio_file",
			Description: "Transcribe the audio file attached to an import session into a timed transcript",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"contentPlanId": map[string]any{
						"type":        "string",
						"description": "Import session id holding the uploaded audio",
					},
					"language": map[string]any{
						"type":        "string",
						"description": "Language hint for the transcriber, e.g. en or ar",
					},
				},
				"required": []string{"contentPlanId"},
			},
		},
		{
			Name:        "import_web_article",
			Description: "Import a web article's readable text as the source for a production",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "Public article URL",
					},
				},
				"required": []string{"url"},
			},
		},
	}
}

var _ tools.Executor = (*Executor)(nil)
