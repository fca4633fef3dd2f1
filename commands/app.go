// Package commands implements the studio CLI: producing videos locally,
// serving the HTTP API, running queue workers, and inspecting sessions.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/lordpython/aisoulstudio/agent"
	"github.com/lordpython/aisoulstudio/assets"
	"github.com/lordpython/aisoulstudio/assets/assetstest"
	"github.com/lordpython/aisoulstudio/config"
	"github.com/lordpython/aisoulstudio/llm"
	"github.com/lordpython/aisoulstudio/metrics"
	"github.com/lordpython/aisoulstudio/production"
	"github.com/lordpython/aisoulstudio/progress"
	"github.com/lordpython/aisoulstudio/recovery"
	"github.com/lordpython/aisoulstudio/session"
	"github.com/lordpython/aisoulstudio/storage"
	"github.com/lordpython/aisoulstudio/supervisor"
	"github.com/lordpython/aisoulstudio/tools"
	"github.com/lordpython/aisoulstudio/tools/content"
	"github.com/lordpython/aisoulstudio/tools/enhance"
	"github.com/lordpython/aisoulstudio/tools/exporter"
	"github.com/lordpython/aisoulstudio/tools/importer"
	"github.com/lordpython/aisoulstudio/tools/media"
	"github.com/lordpython/aisoulstudio/tools/utility"
)

// App wires the production stack behind the CLI commands. Unset
// integrations stay nil and the matching features degrade with in-band
// guidance instead of failing startup.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Client   llm.ChatClient
	Sessions *session.Store
	Registry *tools.Registry
	Harness  *recovery.Harness
	Fallback *recovery.Fallback

	// Archive is nil when no Postgres URL is configured.
	Archive *storage.Archive

	redis *redis.Client
	nats  *nats.Conn
}

// AppOptions tune App construction.
type AppOptions struct {
	// DryRun swaps every media backend for deterministic in-memory
	// providers so a full pipeline runs without external services. The
	// chat model is still real; point it at a local endpoint for fully
	// offline runs.
	DryRun bool
}

// NewApp builds the production stack from configuration. The context
// bounds connection checks and scopes the strategy-file watcher.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts AppOptions) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	modelReg, err := cfg.BuildRegistry()
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(modelReg, llm.WithLogger(logger))

	sessions := session.NewStore()

	table := recovery.NewTable()
	if path := cfg.Recovery.StrategyFile; path != "" {
		if err := table.LoadFile(path); err != nil {
			return nil, fmt.Errorf("load recovery strategies: %w", err)
		}
		if err := recovery.WatchFile(ctx, table, path, logger); err != nil {
			logger.Warn("Strategy hot reload unavailable", "path", path, "error", err)
		}
	}
	harness := recovery.NewHarness(table)

	httpClient := &http.Client{Timeout: 120 * time.Second}

	var (
		planner     assets.Planner
		writer      assets.Screenwriter
		speech      assets.SpeechSynthesizer
		images      assets.ImageGenerator
		editor      assets.ImageEditor
		checker     assets.ConsistencyChecker
		videos      assets.VideoGenerator
		music       assets.MusicGenerator
		mixer       assets.AudioMixer
		renderer    assets.VideoExporter
		transcriber assets.Transcriber
		uploader    *assets.CloudUploader
		youtube     importer.ContentImporter
	)

	if opts.DryRun {
		img := &assetstest.FakeImageProvider{}
		planner = &assetstest.FakePlanner{}
		writer = &assetstest.FakeScreenwriter{}
		speech = &assetstest.FakeSynthesizer{}
		images, editor, checker = img, img, img
		videos = &assetstest.FakeVideoGenerator{}
		music = &assetstest.FakeMusicGenerator{}
		mixer = &assetstest.FakeMixer{}
		renderer = &assetstest.FakeExporter{}
		transcriber = &assetstest.FakeTranscriber{}
		uploader = assets.NewCloudUploader(&assetstest.FakeBucket{}, logger)
		logger.Info("Dry run: media backends replaced with in-memory providers")
	} else {
		llmPlanner := assets.NewLLMPlanner(client)
		planner, writer = llmPlanner, llmPlanner
		speech = assets.NewHTTPSpeechSynthesizer(cfg.Assets.Speech.URL, cfg.Assets.Speech.APIKey, httpClient)
		img := assets.NewHTTPImageProvider(cfg.Assets.Images.URL, cfg.Assets.Images.APIKey, httpClient)
		images, editor, checker = img, img, img
		videos = assets.NewHTTPVideoGenerator(cfg.Assets.Video.URL, cfg.Assets.Video.APIKey, httpClient)
		music = assets.NewHTTPMusicGenerator(cfg.Assets.Music.URL, cfg.Assets.Music.APIKey, httpClient)
		mixer = assets.NewHTTPAudioMixer(cfg.Assets.Mixer.URL, cfg.Assets.Mixer.APIKey, httpClient)
		renderer = assets.NewHTTPVideoExporter(cfg.Assets.Exporter.URL, cfg.Assets.Exporter.APIKey, httpClient)
		if cfg.Assets.Transcriber.URL != "" {
			transcriber = assets.NewHTTPTranscriber(cfg.Assets.Transcriber.URL, cfg.Assets.Transcriber.APIKey, httpClient)
		}
		if cfg.Assets.Bucket.URL != "" {
			bucket := assets.NewHTTPBucketClient(cfg.Assets.Bucket.URL, cfg.Assets.Bucket.APIKey, httpClient)
			uploader = assets.NewCloudUploader(bucket, logger)
		}
		if cfg.Assets.YouTubeAPIKey != "" {
			service, err := assets.NewYouTubeService(ctx, cfg.Assets.YouTubeAPIKey)
			if err != nil {
				logger.Warn("YouTube import unavailable", "error", err)
			} else {
				captions := assets.NewTimedTextFetcher("", httpClient)
				youtube = assets.NewYouTubeImporter(service, captions, logger)
			}
		}
	}
	articles := assets.NewArticleImporter(assets.WithArticleLogger(logger))

	fallback := recovery.NewFallback(sessions, images, videos, logger)

	reg := tools.NewRegistry()
	executors := []tools.Executor{
		importer.NewExecutor(sessions, youtube, articles, transcriber, importer.WithLogger(logger)),
		content.NewExecutor(sessions, planner, writer, speech, content.WithLogger(logger)),
		media.NewExecutor(sessions, images, videos, assets.NewCatalogSfxLibrary(), music, media.WithLogger(logger)),
		enhance.NewExecutor(sessions, editor, checker, mixer, enhance.WithLogger(logger)),
		exporter.NewExecutor(sessions, renderer, uploader, exporter.WithLogger(logger)),
		utility.NewExecutor(sessions, utility.WithLogger(logger)),
	}
	for _, exec := range executors {
		if err := reg.RegisterExecutor(tools.NewInstrumentedExecutor(exec)); err != nil {
			return nil, fmt.Errorf("register tools: %w", err)
		}
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Client:   client,
		Sessions: sessions,
		Registry: reg,
		Harness:  harness,
		Fallback: fallback,
	}

	if cfg.Postgres.URL != "" {
		archive, err := storage.NewArchive(cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect session archive: %w", err)
		}
		app.Archive = archive
		logger.Info("Session archive connected")
	}

	if cfg.Redis.URL != "" {
		redisOpt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		rc := redis.NewClient(redisOpt)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rc.Ping(pingCtx).Err(); err != nil {
			logger.Debug("Redis progress bridge unavailable", "url", cfg.Redis.URL, "error", err)
			_ = rc.Close()
		} else {
			app.redis = rc
		}
		cancel()
	}

	if cfg.NATS.URL != "" {
		conn, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			logger.Warn("NATS progress bridge unavailable", "url", cfg.NATS.URL, "error", err)
		} else {
			app.nats = conn
		}
	}

	return app, nil
}

// ProductionResult normalizes monolithic and supervised run outcomes.
type ProductionResult struct {
	SessionID    string
	Status       string
	Report       *production.Report
	FinalMessage string
	// Stages is populated in supervised mode only.
	Stages []supervisor.StageResult
}

// RunProduction executes one production request in the configured mode and
// archives the terminal session state when an archive is attached. A
// stopped pipeline returns both the partial result and the error.
func (a *App) RunProduction(ctx context.Context, opts agent.RunOptions) (*ProductionResult, error) {
	return a.runProduction(ctx, opts, a.Config.Orchestrator.Mode == config.ModeSupervised)
}

// RunProductionSupervised forces the staged supervisor for one run. Queue
// tasks carry their own supervised flag and use this regardless of the
// configured mode.
func (a *App) RunProductionSupervised(ctx context.Context, opts agent.RunOptions) (*ProductionResult, error) {
	return a.runProduction(ctx, opts, true)
}

func (a *App) runProduction(ctx context.Context, opts agent.RunOptions, supervised bool) (*ProductionResult, error) {
	opts.Progress = a.fanout(opts.Progress)
	musicAlways := a.Config.Orchestrator.Music == "always"

	var (
		res    *ProductionResult
		runErr error
	)

	if supervised {
		supOpts := []supervisor.Option{
			supervisor.WithLogger(a.Logger),
			supervisor.WithStageIterations(a.Config.Orchestrator.StageIterations),
		}
		if musicAlways {
			supOpts = append(supOpts, supervisor.WithMusicAlways())
		}
		sup := supervisor.New(a.Client, a.Registry, a.Sessions, a.Harness, a.Fallback, supOpts...)
		r, err := sup.Run(ctx, opts)
		runErr = err
		if r != nil {
			res = &ProductionResult{
				SessionID:    r.SessionID,
				Status:       r.Status,
				Report:       r.Report,
				FinalMessage: r.FinalMessage,
				Stages:       r.Stages,
			}
		}
	} else {
		agentOpts := []agent.Option{
			agent.WithLogger(a.Logger),
			agent.WithMaxIterations(a.Config.Orchestrator.MaxIterations),
		}
		if musicAlways {
			agentOpts = append(agentOpts, agent.WithMusicAlways())
		}
		orch := agent.New(a.Client, a.Registry, a.Sessions, a.Harness, a.Fallback, agentOpts...)
		r, err := orch.Run(ctx, opts)
		runErr = err
		if r != nil {
			res = &ProductionResult{
				SessionID:    r.SessionID,
				Status:       r.Status,
				Report:       r.Report,
				FinalMessage: r.FinalMessage,
			}
		}
	}

	if res == nil {
		return nil, runErr
	}

	a.archiveSession(ctx, res.SessionID)
	metrics.SetActiveSessions(a.Sessions.Len())
	return res, runErr
}

// archiveSession mirrors a session's terminal state to Postgres. Archive
// failures are logged, never fatal: the run already finished.
func (a *App) archiveSession(ctx context.Context, sessionID string) {
	if a.Archive == nil || sessionID == "" {
		return
	}
	state, err := a.Sessions.Get(sessionID)
	if err != nil {
		return
	}
	if err := a.Archive.Save(ctx, state); err != nil {
		a.Logger.Warn("Failed to archive session", "session_id", sessionID, "error", err)
	}
}

// fanout layers the configured progress bridges under the caller's
// callback. Bridges are observers; their failures never reach the run.
func (a *App) fanout(local progress.Callback) progress.Callback {
	callbacks := make([]progress.Callback, 0, 3)
	if local != nil {
		callbacks = append(callbacks, local)
	}
	if a.redis != nil {
		callbacks = append(callbacks, progress.NewRedisBridge(a.redis, progress.WithRedisLogger(a.Logger)).Callback())
	}
	if a.nats != nil {
		callbacks = append(callbacks, progress.NewNATSBridge(a.nats, progress.WithNATSLogger(a.Logger)).Callback())
	}
	if len(callbacks) == 0 {
		return nil
	}
	return progress.Fanout(callbacks...)
}

// Close releases external connections.
func (a *App) Close() {
	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			a.Logger.Warn("Failed to close archive", "error", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.nats != nil {
		_ = a.nats.Drain()
		a.nats.Close()
	}
}
