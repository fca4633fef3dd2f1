// Package recovery is the error-recovery harness around tool execution:
// per-tool retry strategies with exponential backoff, error classification,
// fallback substitution, and aggregation of a run's failures into a
// partial-success report.
//
// Strategies are data, not code. The built-in table covers every production
// tool; deployments override entries through a YAML file that can be
// hot-reloaded while the service runs.
package recovery

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Action names a fallback behavior applied after retries are exhausted.
type Action string

// The fallback actions the harness knows how to apply.
const (
	ActionNone              Action = "none"
	ActionPlaceholderVisual Action = "use-placeholder-visual"
	ActionStaticImage       Action = "fall-back-to-static-image"
	ActionSkipSfx           Action = "skip-sfx"
	ActionKeepOriginalImage Action = "keep-original-image"
	ActionAssetBundle       Action = "provide-asset-bundle"
	ActionSkipAudioSource   Action = "skip-audio-source"
)

// Strategy is the recovery policy for one tool.
type Strategy struct {
	MaxRetries        int     `yaml:"maxRetries"`
	InitialDelayMs    int     `yaml:"initialDelayMs"`
	MaxDelayMs        int     `yaml:"maxDelayMs"`
	BackoffMultiplier float64 `yaml:"backoffMultiplier"`
	Jitter            bool    `yaml:"jitter"`

	// ContinueOnFailure permits the pipeline to proceed after this tool
	// ultimately fails; it also gates fallback application.
	ContinueOnFailure bool   `yaml:"continueOnFailure"`
	FallbackAction    Action `yaml:"fallbackAction"`
}

// Delay returns the backoff before retry n (zero-based), clamped to
// MaxDelayMs. Jitter is applied by the harness, not here, so the value is
// deterministic for a given strategy.
func (s Strategy) Delay(retry int) time.Duration {
	d := float64(s.InitialDelayMs)
	for i := 0; i < retry; i++ {
		d *= s.BackoffMultiplier
	}
	if max := float64(s.MaxDelayMs); s.MaxDelayMs > 0 && d > max {
		d = max
	}
	return time.Duration(d) * time.Millisecond
}

// DefaultStrategy is applied to tools without a table entry.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxRetries:        2,
		InitialDelayMs:    1000,
		MaxDelayMs:        10000,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		ContinueOnFailure: true,
		FallbackAction:    ActionNone,
	}
}

// defaultStrategies is the built-in per-tool table. Generation tools retry
// harder than LLM-backed planning tools because their providers rate-limit
// aggressively; pipeline-critical tools (plan, narration) set
// ContinueOnFailure to false because nothing downstream works without them.
func defaultStrategies() map[string]Strategy {
	return map[string]Strategy{
		"import_youtube_content": {MaxRetries: 3, InitialDelayMs: 1000, MaxDelayMs: 15000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionNone},
		"transcribe_audio_file":  {MaxRetries: 2, InitialDelayMs: 2000, MaxDelayMs: 20000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionSkipAudioSource},
		"import_web_article":     {MaxRetries: 2, InitialDelayMs: 1000, MaxDelayMs: 10000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionNone},

		"plan_video":          {MaxRetries: 2, InitialDelayMs: 2000, MaxDelayMs: 20000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: false, FallbackAction: ActionNone},
		"narrate_scenes":      {MaxRetries: 3, InitialDelayMs: 2000, MaxDelayMs: 30000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: false, FallbackAction: ActionNone},
		"validate_plan":       {MaxRetries: 1, InitialDelayMs: 1000, MaxDelayMs: 5000, BackoffMultiplier: 2.0, Jitter: false, ContinueOnFailure: true, FallbackAction: ActionNone},
		"adjust_timing":       {MaxRetries: 1, InitialDelayMs: 1000, MaxDelayMs: 5000, BackoffMultiplier: 2.0, Jitter: false, ContinueOnFailure: true, FallbackAction: ActionNone},
		"generate_breakdown":  {MaxRetries: 2, InitialDelayMs: 2000, MaxDelayMs: 20000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionNone},
		"create_screenplay":   {MaxRetries: 2, InitialDelayMs: 2000, MaxDelayMs: 20000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionNone},
		"generate_characters": {MaxRetries: 2, InitialDelayMs: 2000, MaxDelayMs: 20000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionNone},
		"generate_shotlist":   {MaxRetries: 2, InitialDelayMs: 2000, MaxDelayMs: 20000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionNone},

		"generate_visuals": {MaxRetries: 3, InitialDelayMs: 2000, MaxDelayMs: 30000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionPlaceholderVisual},
		"generate_video":   {MaxRetries: 2, InitialDelayMs: 3000, MaxDelayMs: 30000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionStaticImage},
		"animate_image":    {MaxRetries: 2, InitialDelayMs: 3000, MaxDelayMs: 30000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionKeepOriginalImage},
		"plan_sfx":         {MaxRetries: 1, InitialDelayMs: 1000, MaxDelayMs: 5000, BackoffMultiplier: 2.0, Jitter: false, ContinueOnFailure: true, FallbackAction: ActionSkipSfx},
		"generate_music":   {MaxRetries: 2, InitialDelayMs: 3000, MaxDelayMs: 30000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionSkipAudioSource},

		"verify_character_consistency": {MaxRetries: 1, InitialDelayMs: 1000, MaxDelayMs: 10000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionNone},
		"remove_background":            {MaxRetries: 2, InitialDelayMs: 2000, MaxDelayMs: 20000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionKeepOriginalImage},
		"restyle_image":                {MaxRetries: 2, InitialDelayMs: 2000, MaxDelayMs: 20000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionKeepOriginalImage},
		"mix_audio_tracks":             {MaxRetries: 2, InitialDelayMs: 2000, MaxDelayMs: 15000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionNone},

		"generate_subtitles":         {MaxRetries: 2, InitialDelayMs: 1000, MaxDelayMs: 10000, BackoffMultiplier: 2.0, Jitter: false, ContinueOnFailure: true, FallbackAction: ActionNone},
		"validate_export":            {MaxRetries: 0, ContinueOnFailure: true, FallbackAction: ActionNone},
		"list_export_presets":        {MaxRetries: 0, ContinueOnFailure: true, FallbackAction: ActionNone},
		"export_final_video":         {MaxRetries: 2, InitialDelayMs: 3000, MaxDelayMs: 30000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionAssetBundle},
		"upload_production_to_cloud": {MaxRetries: 3, InitialDelayMs: 2000, MaxDelayMs: 30000, BackoffMultiplier: 2.0, Jitter: true, ContinueOnFailure: true, FallbackAction: ActionNone},

		"get_production_status": {MaxRetries: 0, ContinueOnFailure: true, FallbackAction: ActionNone},
		"mark_complete":         {MaxRetries: 0, ContinueOnFailure: true, FallbackAction: ActionNone},
	}
}

// Table resolves tool names to strategies. It is safe for concurrent use;
// Resolve runs on the dispatch path while LoadFile may replace entries from
// a file watcher.
type Table struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	fallback   Strategy
}

// NewTable returns a table seeded with the built-in strategies.
func NewTable() *Table {
	return &Table{
		strategies: defaultStrategies(),
		fallback:   DefaultStrategy(),
	}
}

// Resolve returns the strategy for a tool, or the default when the tool has
// no entry.
func (t *Table) Resolve(tool string) Strategy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.strategies[tool]; ok {
		return s
	}
	return t.fallback
}

// Set replaces the strategy for one tool.
func (t *Table) Set(tool string, s Strategy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.strategies[tool] = s
}

// strategyFile is the YAML override shape:
//
//	default:
//	  maxRetries: 2
//	  ...
//	tools:
//	  generate_visuals:
//	    maxRetries: 5
//	    ...
type strategyFile struct {
	Default *Strategy           `yaml:"default"`
	Tools   map[string]Strategy `yaml:"tools"`
}

// LoadFile merges strategy overrides from a YAML file into the table. A
// tool entry replaces the built-in one wholesale; delay fields left at zero
// inherit from the file's (or built-in) default so short overrides stay
// short.
func (t *Table) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read strategy file: %w", err)
	}

	var file strategyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse strategy file %s: %w", path, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	base := t.fallback
	if file.Default != nil {
		base = normalize(*file.Default, DefaultStrategy())
		t.fallback = base
	}
	for tool, s := range file.Tools {
		t.strategies[tool] = normalize(s, base)
	}
	return nil
}

// normalize fills timing fields left at zero from a base strategy.
// MaxRetries and the boolean fields are taken as written: zero retries is a
// valid policy.
func normalize(s, base Strategy) Strategy {
	if s.InitialDelayMs == 0 {
		s.InitialDelayMs = base.InitialDelayMs
	}
	if s.MaxDelayMs == 0 {
		s.MaxDelayMs = base.MaxDelayMs
	}
	if s.BackoffMultiplier == 0 {
		s.BackoffMultiplier = base.BackoffMultiplier
	}
	if s.FallbackAction == "" {
		s.FallbackAction = ActionNone
	}
	return s
}
