// Package config provides configuration loading and management for the studio.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/lordpython/aisoulstudio/model"
)

// Orchestrator modes.
const (
	ModeMonolithic = "monolithic"
	ModeSupervised = "supervised"
)

// Config represents the complete studio configuration.
type Config struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Models       ModelsConfig       `yaml:"models"`
	Assets       AssetsConfig       `yaml:"assets"`
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	NATS         NATSConfig         `yaml:"nats"`
	Recovery     RecoveryConfig     `yaml:"recovery"`
	Output       OutputConfig       `yaml:"output"`
}

// OrchestratorConfig controls how production runs execute.
type OrchestratorConfig struct {
	// Mode selects the control loop: "monolithic" runs one agent over the
	// full tool surface, "supervised" decomposes the run into staged
	// subagents. Both produce the same session state.
	Mode string `yaml:"mode"`
	// Music gates the generate_music tool: "auto" exposes it only when the
	// request asks for music, "always" exposes it on every run.
	Music string `yaml:"music"`
	// MaxIterations bounds the monolithic control loop.
	MaxIterations int `yaml:"max_iterations"`
	// StageIterations bounds each subagent in supervised mode.
	StageIterations int `yaml:"stage_iterations"`
}

// ModelsConfig overrides the built-in model registry.
type ModelsConfig struct {
	// Default is the model used when no capability matches.
	Default string `yaml:"default"`
	// Endpoints adds or replaces model endpoints by name.
	Endpoints map[string]EndpointConfig `yaml:"endpoints"`
	// Capabilities adds or replaces capability preference chains.
	Capabilities map[string]CapabilityConfig `yaml:"capabilities"`
}

// EndpointConfig defines one model endpoint.
type EndpointConfig struct {
	// Provider is the model provider (anthropic, openai, ollama).
	Provider string `yaml:"provider"`
	// URL is the API endpoint URL (for OpenAI-compatible providers).
	URL string `yaml:"url,omitempty"`
	// Model is the identifier sent to the provider.
	Model string `yaml:"model"`
	// MaxTokens is the context window size.
	MaxTokens int `yaml:"max_tokens,omitempty"`
}

// CapabilityConfig lists models for one capability in preference order.
type CapabilityConfig struct {
	Preferred []string `yaml:"preferred"`
	Fallback  []string `yaml:"fallback"`
}

// ServiceEndpoint configures one media-generation backend. API keys are
// usually written as ${VAR} references and filled from the environment.
type ServiceEndpoint struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key,omitempty"`
}

// AssetsConfig configures the media backends the tool executors call.
// Unset endpoints leave the matching tools failing in-band with guidance.
type AssetsConfig struct {
	Images      ServiceEndpoint `yaml:"images"`
	Video       ServiceEndpoint `yaml:"video"`
	Speech      ServiceEndpoint `yaml:"speech"`
	Music       ServiceEndpoint `yaml:"music"`
	Mixer       ServiceEndpoint `yaml:"mixer"`
	Exporter    ServiceEndpoint `yaml:"exporter"`
	Transcriber ServiceEndpoint `yaml:"transcriber"`
	Bucket      ServiceEndpoint `yaml:"bucket"`
	// YouTubeAPIKey enables import_youtube_content metadata lookups.
	YouTubeAPIKey string `yaml:"youtube_api_key,omitempty"`
}

// ServerConfig configures the HTTP API in serve mode.
type ServerConfig struct {
	// Addr is the listen address (host:port).
	Addr string `yaml:"addr"`
}

// RedisConfig configures the production queue and the progress pub/sub bridge.
type RedisConfig struct {
	// URL is the Redis connection URI (redis://host:port).
	URL string `yaml:"url"`
}

// PostgresConfig configures the session archive. An empty URL disables it.
type PostgresConfig struct {
	URL string `yaml:"url"`
}

// NATSConfig configures the NATS progress bridge. An empty URL disables it.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// RecoveryConfig points at optional recovery-strategy overrides.
type RecoveryConfig struct {
	// StrategyFile is a YAML file of per-tool retry strategies, watched for
	// changes while running. Empty keeps the compiled-in table.
	StrategyFile string `yaml:"strategy_file"`
}

// OutputConfig controls where exported videos and reports land on disk.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			Mode:            ModeMonolithic,
			Music:           "auto",
			MaxIterations:   20,
			StageIterations: 8,
		},
		Models: ModelsConfig{
			Default: "", // Keep the registry default
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379",
		},
		Postgres: PostgresConfig{
			URL: "", // Archive disabled
		},
		NATS: NATSConfig{
			URL: "", // Bridge disabled
		},
		Output: OutputConfig{
			Dir: "output",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Orchestrator.Mode {
	case ModeMonolithic, ModeSupervised:
	default:
		return fmt.Errorf("orchestrator.mode must be %q or %q, got %q", ModeMonolithic, ModeSupervised, c.Orchestrator.Mode)
	}
	switch c.Orchestrator.Music {
	case "auto", "always":
	default:
		return fmt.Errorf("orchestrator.music must be \"auto\" or \"always\", got %q", c.Orchestrator.Music)
	}
	if c.Orchestrator.MaxIterations < 1 {
		return fmt.Errorf("orchestrator.max_iterations must be at least 1")
	}
	if c.Orchestrator.StageIterations < 1 {
		return fmt.Errorf("orchestrator.stage_iterations must be at least 1")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// BuildRegistry constructs a model registry from the built-in defaults plus
// any endpoint and capability overrides in this config.
func (c *Config) BuildRegistry() (*model.Registry, error) {
	reg := model.NewDefaultRegistry()

	for name, ep := range c.Models.Endpoints {
		reg.SetEndpoint(name, &model.EndpointConfig{
			Provider:  ep.Provider,
			URL:       ep.URL,
			Model:     ep.Model,
			MaxTokens: ep.MaxTokens,
		})
	}
	for name, cap := range c.Models.Capabilities {
		capVal := model.ParseCapability(name)
		if capVal == "" {
			return nil, fmt.Errorf("models.capabilities: unknown capability %q", name)
		}
		reg.SetCapability(capVal, &model.CapabilityConfig{
			Preferred: cap.Preferred,
			Fallback:  cap.Fallback,
		})
	}
	if c.Models.Default != "" {
		reg.SetDefault(c.Models.Default)
	}

	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("model configuration invalid: %w", err)
	}
	return reg, nil
}

// envPattern matches ${VAR} references in config files.
var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv substitutes ${VAR} references with environment values. Unset
// variables are left intact so the eventual failure names the variable.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := string(match[2 : len(match)-1])
		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		return match
	})
}

// LoadFromFile loads configuration from a YAML file, expanding ${VAR}
// environment references. Unset keys keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(expandEnv(data), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// parseFile reads one config layer without filling defaults, so merging a
// layer cannot write defaults over the layers below it.
func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(expandEnv(data), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Orchestrator
	if other.Orchestrator.Mode != "" {
		c.Orchestrator.Mode = other.Orchestrator.Mode
	}
	if other.Orchestrator.Music != "" {
		c.Orchestrator.Music = other.Orchestrator.Music
	}
	if other.Orchestrator.MaxIterations != 0 {
		c.Orchestrator.MaxIterations = other.Orchestrator.MaxIterations
	}
	if other.Orchestrator.StageIterations != 0 {
		c.Orchestrator.StageIterations = other.Orchestrator.StageIterations
	}

	// Models
	if other.Models.Default != "" {
		c.Models.Default = other.Models.Default
	}
	if len(other.Models.Endpoints) > 0 {
		if c.Models.Endpoints == nil {
			c.Models.Endpoints = make(map[string]EndpointConfig)
		}
		for name, ep := range other.Models.Endpoints {
			c.Models.Endpoints[name] = ep
		}
	}
	if len(other.Models.Capabilities) > 0 {
		if c.Models.Capabilities == nil {
			c.Models.Capabilities = make(map[string]CapabilityConfig)
		}
		for name, cap := range other.Models.Capabilities {
			c.Models.Capabilities[name] = cap
		}
	}

	// Assets
	mergeEndpoint(&c.Assets.Images, other.Assets.Images)
	mergeEndpoint(&c.Assets.Video, other.Assets.Video)
	mergeEndpoint(&c.Assets.Speech, other.Assets.Speech)
	mergeEndpoint(&c.Assets.Music, other.Assets.Music)
	mergeEndpoint(&c.Assets.Mixer, other.Assets.Mixer)
	mergeEndpoint(&c.Assets.Exporter, other.Assets.Exporter)
	mergeEndpoint(&c.Assets.Transcriber, other.Assets.Transcriber)
	mergeEndpoint(&c.Assets.Bucket, other.Assets.Bucket)
	if other.Assets.YouTubeAPIKey != "" {
		c.Assets.YouTubeAPIKey = other.Assets.YouTubeAPIKey
	}

	// Connections
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Redis.URL != "" {
		c.Redis.URL = other.Redis.URL
	}
	if other.Postgres.URL != "" {
		c.Postgres.URL = other.Postgres.URL
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.Recovery.StrategyFile != "" {
		c.Recovery.StrategyFile = other.Recovery.StrategyFile
	}
	if other.Output.Dir != "" {
		c.Output.Dir = other.Output.Dir
	}
}

func mergeEndpoint(dst *ServiceEndpoint, src ServiceEndpoint) {
	if src.URL != "" {
		dst.URL = src.URL
	}
	if src.APIKey != "" {
		dst.APIKey = src.APIKey
	}
}
