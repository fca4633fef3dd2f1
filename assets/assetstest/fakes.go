// Package assetstest provides deterministic in-memory implementations of
// the asset provider contracts. Every fake supports failure injection
// through an Err field, optionally bounded by FailTimes so retry paths can
// be exercised: with FailTimes == 2 the first two calls fail and the third
// succeeds.
package assetstest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lordpython/aisoulstudio/assets"
	"github.com/lordpython/aisoulstudio/production"
)

// gate decides whether one more call should fail.
type gate struct {
	calls int
}

func (g *gate) fail(err error, failTimes int) error {
	g.calls++
	if err == nil {
		return nil
	}
	if failTimes == 0 || g.calls <= failTimes {
		return err
	}
	return nil
}

// FakePlanner returns a deterministic plan derived from the request.
type FakePlanner struct {
	mu         sync.Mutex
	gate       gate
	Err        error
	FailTimes  int
	SceneCount int

	// LastRequest captures the most recent GeneratePlan request.
	LastRequest assets.PlanRequest
}

var _ assets.Planner = (*FakePlanner)(nil)

func (p *FakePlanner) GeneratePlan(_ context.Context, req assets.PlanRequest) (*production.ContentPlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastRequest = req
	if err := p.gate.fail(p.Err, p.FailTimes); err != nil {
		return nil, err
	}

	count := p.SceneCount
	if count == 0 {
		count = 3
	}
	target := req.TargetDuration
	if target <= 0 {
		target = 30
	}
	language := req.Language
	if language == "" {
		language = "en"
	}

	plan := &production.ContentPlan{
		Topic:        req.Topic,
		Style:        req.Style,
		Audience:     req.Audience,
		VideoPurpose: req.VideoPurpose,
		Language:     language,
	}
	per := target / float64(count)
	for i := 1; i <= count; i++ {
		plan.Scenes = append(plan.Scenes, production.Scene{
			ID:              fmt.Sprintf("scene-%d", i),
			Name:            fmt.Sprintf("Scene %d", i),
			Duration:        per,
			NarrationScript: fmt.Sprintf("Narration for scene %d about %s.", i, req.Topic),
			VisualDesc:      fmt.Sprintf("Visual %d: %s", i, req.Topic),
			EmotionalTone:   "neutral",
		})
		plan.TotalDuration += per
	}
	return plan, nil
}

// Calls reports how many times GeneratePlan ran.
func (p *FakePlanner) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gate.calls
}

// FakeScreenwriter produces deterministic screenplay artifacts.
type FakeScreenwriter struct {
	mu        sync.Mutex
	gate      gate
	Err       error
	FailTimes int
}

var _ assets.Screenwriter = (*FakeScreenwriter)(nil)

func (s *FakeScreenwriter) GenerateBreakdown(_ context.Context, story string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate.fail(s.Err, s.FailTimes); err != nil {
		return "", err
	}
	return "ACT I\n" + clip(story, 120) + "\n\nACT II\nRising action.\n\nACT III\nResolution.", nil
}

func (s *FakeScreenwriter) CreateScreenplay(_ context.Context, breakdown string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate.fail(s.Err, s.FailTimes); err != nil {
		return "", err
	}
	return "INT. OPENING - DAY\n\n" + clip(breakdown, 120) + "\n\nNARRATOR\nAnd so it begins.", nil
}

func (s *FakeScreenwriter) GenerateCharacters(_ context.Context, script string) ([]production.ScreenplayCharacter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate.fail(s.Err, s.FailTimes); err != nil {
		return nil, err
	}
	_ = script
	return []production.ScreenplayCharacter{
		{Name: "Narrator", Description: "Unseen voice guiding the story", VisualRef: "none"},
		{Name: "Protagonist", Description: "Central figure of the story"},
	}, nil
}

func (s *FakeScreenwriter) GenerateShotlist(_ context.Context, script string) ([]production.ScreenplayShot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate.fail(s.Err, s.FailTimes); err != nil {
		return nil, err
	}
	_ = script
	return []production.ScreenplayShot{
		{SceneID: "scene-1", ShotType: "wide", CameraDir: "slow push in", Subject: "Opening establishing shot"},
		{SceneID: "scene-2", ShotType: "close-up", Subject: "Protagonist reaction"},
	}, nil
}

// FakeSynthesizer produces placeholder audio whose duration matches the
// natural speaking estimate for the text.
type FakeSynthesizer struct {
	mu        sync.Mutex
	gate      gate
	Err       error
	FailTimes int
}

var _ assets.SpeechSynthesizer = (*FakeSynthesizer)(nil)

func (s *FakeSynthesizer) Synthesize(_ context.Context, req assets.SpeechRequest) (*assets.SpeechResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate.fail(s.Err, s.FailTimes); err != nil {
		return nil, err
	}
	// Fresh URL per attempt, as retried side-effectful tools must produce.
	return &assets.SpeechResult{
		Audio:    []byte("FAKEAUDIO:" + req.Text),
		URL:      fmt.Sprintf("https://assets.test/narration/%d.mp3", s.gate.calls),
		Duration: assets.EstimateSpeechDuration(req.Text),
	}, nil
}

// FakeImageProvider implements image generation, editing, and consistency
// checks with synthetic URLs.
type FakeImageProvider struct {
	mu        sync.Mutex
	genGate   gate
	editGate  gate
	Err       error
	FailTimes int
	EditErr   error
	Score     int
	Issues    []string
}

var (
	_ assets.ImageGenerator     = (*FakeImageProvider)(nil)
	_ assets.ImageEditor        = (*FakeImageProvider)(nil)
	_ assets.ConsistencyChecker = (*FakeImageProvider)(nil)
)

func (p *FakeImageProvider) GenerateImage(_ context.Context, req assets.ImageRequest) (*assets.ImageResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.genGate.fail(p.Err, p.FailTimes); err != nil {
		return nil, err
	}
	return &assets.ImageResult{
		URL:   fmt.Sprintf("https://assets.test/images/%d.png", p.genGate.calls),
		Model: "fake-image",
	}, nil
}

// GenerateCalls reports how many times GenerateImage ran, including
// injected failures.
func (p *FakeImageProvider) GenerateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.genGate.calls
}

func (p *FakeImageProvider) RemoveBackground(_ context.Context, imageURL string) (*assets.ImageResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.editGate.fail(p.EditErr, 0); err != nil {
		return nil, err
	}
	return &assets.ImageResult{URL: imageURL + "?bg=removed", Model: "fake-edit"}, nil
}

func (p *FakeImageProvider) Restyle(_ context.Context, imageURL, style string) (*assets.ImageResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.editGate.fail(p.EditErr, 0); err != nil {
		return nil, err
	}
	return &assets.ImageResult{URL: imageURL + "?style=" + style, Model: "fake-edit"}, nil
}

func (p *FakeImageProvider) VerifyConsistency(_ context.Context, imageURLs []string, _ string) (*assets.ConsistencyReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	score := p.Score
	if score == 0 {
		score = 92
	}
	return &assets.ConsistencyReport{
		Score:         score,
		ScenesChecked: len(imageURLs),
		Issues:        p.Issues,
	}, nil
}

// FakeVideoGenerator produces synthetic clips with independent failure
// injection for text-to-video and image animation.
type FakeVideoGenerator struct {
	mu                sync.Mutex
	genGate           gate
	animateGate       gate
	GenerateErr       error
	GenerateFailTimes int
	AnimateErr        error
	AnimateFailTimes  int
	Model             string
}

var _ assets.VideoGenerator = (*FakeVideoGenerator)(nil)

func (g *FakeVideoGenerator) GenerateVideo(_ context.Context, req assets.VideoRequest) (*assets.VideoResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.genGate.fail(g.GenerateErr, g.GenerateFailTimes); err != nil {
		return nil, err
	}
	duration := req.Duration
	if duration == 0 {
		duration = 8
	}
	model := g.Model
	if model == "" {
		model = "fake-veo"
	}
	return &assets.VideoResult{
		URL:      fmt.Sprintf("https://assets.test/videos/%d.mp4", g.genGate.calls),
		Model:    model,
		Duration: duration,
	}, nil
}

func (g *FakeVideoGenerator) AnimateImage(_ context.Context, req assets.AnimateRequest) (*assets.VideoResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.animateGate.fail(g.AnimateErr, g.AnimateFailTimes); err != nil {
		return nil, err
	}
	_ = req
	return &assets.VideoResult{
		URL:      fmt.Sprintf("https://assets.test/animated/%d.mp4", g.animateGate.calls),
		Model:    "fake-animate",
		Duration: 4,
	}, nil
}

// GenerateCalls reports text-to-video attempts.
func (g *FakeVideoGenerator) GenerateCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.genGate.calls
}

// AnimateCalls reports animation attempts.
func (g *FakeVideoGenerator) AnimateCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.animateGate.calls
}

// FakeMusicGenerator produces synthetic music tracks.
type FakeMusicGenerator struct {
	mu        sync.Mutex
	gate      gate
	Err       error
	FailTimes int
}

var _ assets.MusicGenerator = (*FakeMusicGenerator)(nil)

func (g *FakeMusicGenerator) GenerateMusic(_ context.Context, req assets.MusicRequest) (*assets.MusicResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.gate.fail(g.Err, g.FailTimes); err != nil {
		return nil, err
	}
	duration := req.Duration
	if duration <= 0 {
		duration = 30
	}
	return &assets.MusicResult{
		TaskID:   fmt.Sprintf("task_%d", g.gate.calls),
		URL:      fmt.Sprintf("https://assets.test/music/%d.mp3", g.gate.calls),
		Duration: duration,
	}, nil
}

// FakeMixer mixes by concatenating nothing: it reports the narration
// span as the mix duration and records which tracks contributed.
type FakeMixer struct {
	mu        sync.Mutex
	gate      gate
	Err       error
	FailTimes int
}

var _ assets.AudioMixer = (*FakeMixer)(nil)

func (m *FakeMixer) Mix(_ context.Context, req assets.MixRequest) (*production.MixedAudio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gate.fail(m.Err, m.FailTimes); err != nil {
		return nil, err
	}

	var flags production.TrackFlags
	duration := 0.0
	for _, seg := range req.Narration {
		if seg.AudioURL != "" || len(seg.Audio) > 0 {
			flags.Narration = true
		}
		duration += seg.AudioDuration
	}
	if req.NarrationURL != "" {
		flags.Narration = true
	}
	if req.Music != nil && req.Music.URL != "" {
		flags.Music = true
	}
	if req.Sfx != nil && len(req.Sfx.Scenes) > 0 {
		flags.Sfx = true
	}
	if req.IncludeVideoAudio && len(req.VideoAudioURLs) > 0 {
		flags.VideoAudio = true
	}
	if !flags.Narration && !flags.Music && !flags.Sfx && !flags.VideoAudio {
		return nil, fmt.Errorf("nothing to mix: no narration, music, sfx, or video audio")
	}

	return &production.MixedAudio{
		URL:            fmt.Sprintf("https://assets.test/mix/%d.mp3", m.gate.calls),
		Duration:       duration,
		Tracks:         flags,
		DuckingApplied: req.Ducking && flags.Narration && flags.Music,
	}, nil
}

// FakeTranscriber returns a scripted transcription, or a synthetic one
// when none is set.
type FakeTranscriber struct {
	mu        sync.Mutex
	gate      gate
	Err       error
	FailTimes int
	Result    *assets.Transcription
}

var _ assets.Transcriber = (*FakeTranscriber)(nil)

func (t *FakeTranscriber) Transcribe(_ context.Context, req assets.TranscribeRequest) (*assets.Transcription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.gate.fail(t.Err, t.FailTimes); err != nil {
		return nil, err
	}
	if t.Result != nil {
		return t.Result, nil
	}
	_ = req
	return &assets.Transcription{
		Language: "en",
		Duration: 12,
		Text:     "First part. Second part. Third part.",
		Segments: []production.TranscriptSegment{
			{Start: 0, End: 4, Text: "First part."},
			{Start: 4, End: 8, Text: "Second part."},
			{Start: 8, End: 12, Text: "Third part."},
		},
	}, nil
}

// FakeExporter renders nothing and returns a synthetic download URL per
// attempt.
type FakeExporter struct {
	mu        sync.Mutex
	gate      gate
	Err       error
	FailTimes int
}

var _ assets.VideoExporter = (*FakeExporter)(nil)

func (e *FakeExporter) Export(_ context.Context, req assets.ExportRequest) (*production.ExportResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.gate.fail(e.Err, e.FailTimes); err != nil {
		return nil, err
	}

	duration := 0.0
	for _, scene := range req.Scenes {
		duration += scene.Duration
	}
	return &production.ExportResult{
		DownloadURL: fmt.Sprintf("https://assets.test/export/%d.%s", e.gate.calls, req.Format),
		Format:      req.Format,
		AspectRatio: req.AspectRatio,
		Quality:     req.Quality,
		Duration:    duration,
		FileSizeMB:  assets.EstimateFileSizeMB(duration, req.Quality),
		IncludedAssets: production.IncludedAssets{
			Narration:  len(req.Narration) > 0,
			Visuals:    len(req.Visuals) > 0,
			Music:      req.MusicURL != "",
			Sfx:        req.Sfx != nil && len(req.Sfx.Scenes) > 0,
			Subtitles:  req.Subtitles != nil,
			MixedAudio: req.MixedAudioURL != "",
		},
	}, nil
}

// FakeBucket stores uploads in memory. Paths containing FailPattern fail,
// which exercises partial-upload reporting.
type FakeBucket struct {
	mu          sync.Mutex
	Objects     map[string][]byte
	FailPattern string
}

var _ assets.BucketClient = (*FakeBucket)(nil)

func (b *FakeBucket) BasePath() string {
	return "https://bucket.test"
}

func (b *FakeBucket) Put(_ context.Context, objectPath string, data []byte, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailPattern != "" && strings.Contains(objectPath, b.FailPattern) {
		return "", fmt.Errorf("simulated upload failure for %s", objectPath)
	}
	if b.Objects == nil {
		b.Objects = make(map[string][]byte)
	}
	b.Objects[objectPath] = data
	return "https://bucket.test/" + objectPath, nil
}

// StoredPaths returns the uploaded object paths.
func (b *FakeBucket) StoredPaths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	paths := make([]string, 0, len(b.Objects))
	for p := range b.Objects {
		paths = append(paths, p)
	}
	return paths
}

// FakeCaptionFetcher returns scripted transcript segments.
type FakeCaptionFetcher struct {
	Err      error
	Segments []production.TranscriptSegment
}

var _ assets.CaptionFetcher = (*FakeCaptionFetcher)(nil)

func (f *FakeCaptionFetcher) FetchTranscript(_ context.Context, _, _ string) ([]production.TranscriptSegment, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Segments != nil {
		return f.Segments, nil
	}
	return []production.TranscriptSegment{
		{Start: 0, End: 5, Text: "Imported line one."},
		{Start: 5, End: 10, Text: "Imported line two."},
	}, nil
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
