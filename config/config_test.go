package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lordpython/aisoulstudio/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Orchestrator.Mode != ModeMonolithic {
		t.Errorf("expected default mode monolithic, got %s", cfg.Orchestrator.Mode)
	}
	if cfg.Orchestrator.Music != "auto" {
		t.Errorf("expected default music auto, got %s", cfg.Orchestrator.Music)
	}
	if cfg.Orchestrator.MaxIterations != 20 {
		t.Errorf("expected default max_iterations 20, got %d", cfg.Orchestrator.MaxIterations)
	}
	if cfg.Orchestrator.StageIterations != 8 {
		t.Errorf("expected default stage_iterations 8, got %d", cfg.Orchestrator.StageIterations)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Redis.URL != "redis://localhost:6379" {
		t.Errorf("expected default redis URL, got %s", cfg.Redis.URL)
	}
	if cfg.Postgres.URL != "" {
		t.Errorf("expected archive disabled by default, got %s", cfg.Postgres.URL)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "supervised mode",
			modify:  func(c *Config) { c.Orchestrator.Mode = ModeSupervised },
			wantErr: false,
		},
		{
			name:    "unknown mode",
			modify:  func(c *Config) { c.Orchestrator.Mode = "parallel" },
			wantErr: true,
		},
		{
			name:    "unknown music mode",
			modify:  func(c *Config) { c.Orchestrator.Music = "sometimes" },
			wantErr: true,
		},
		{
			name:    "zero max iterations",
			modify:  func(c *Config) { c.Orchestrator.MaxIterations = 0 },
			wantErr: true,
		},
		{
			name:    "zero stage iterations",
			modify:  func(c *Config) { c.Orchestrator.StageIterations = 0 },
			wantErr: true,
		},
		{
			name:    "missing server addr",
			modify:  func(c *Config) { c.Server.Addr = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
orchestrator:
  mode: supervised
  music: always
  max_iterations: 30
server:
  addr: ":9090"
redis:
  url: "redis://cache:6379"
postgres:
  url: "postgres://studio@db/studio?sslmode=disable"
models:
  default: qwen
  capabilities:
    orchestration:
      preferred: [qwen]
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Orchestrator.Mode != ModeSupervised {
		t.Errorf("expected mode supervised, got %s", cfg.Orchestrator.Mode)
	}
	if cfg.Orchestrator.Music != "always" {
		t.Errorf("expected music always, got %s", cfg.Orchestrator.Music)
	}
	if cfg.Orchestrator.MaxIterations != 30 {
		t.Errorf("expected max_iterations 30, got %d", cfg.Orchestrator.MaxIterations)
	}
	// Unset keys keep their defaults
	if cfg.Orchestrator.StageIterations != 8 {
		t.Errorf("expected stage_iterations to remain 8, got %d", cfg.Orchestrator.StageIterations)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected addr :9090, got %s", cfg.Server.Addr)
	}
	if cfg.Redis.URL != "redis://cache:6379" {
		t.Errorf("expected redis URL redis://cache:6379, got %s", cfg.Redis.URL)
	}
	if cfg.Postgres.URL == "" {
		t.Error("expected postgres URL to be set")
	}
	if got := cfg.Models.Capabilities["orchestration"].Preferred; len(got) != 1 || got[0] != "qwen" {
		t.Errorf("expected orchestration preferred [qwen], got %v", got)
	}
}

func TestLoadFromFileExpandsEnv(t *testing.T) {
	t.Setenv("STUDIO_TEST_DB", "postgres://studio@db/studio")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
postgres:
  url: "${STUDIO_TEST_DB}"
nats:
  url: "${STUDIO_TEST_UNSET_VAR}"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Postgres.URL != "postgres://studio@db/studio" {
		t.Errorf("expected expanded postgres URL, got %s", cfg.Postgres.URL)
	}
	// Unset variables stay literal so the failure names the variable
	if cfg.NATS.URL != "${STUDIO_TEST_UNSET_VAR}" {
		t.Errorf("expected unset variable to stay literal, got %s", cfg.NATS.URL)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Orchestrator: OrchestratorConfig{
			Mode: ModeSupervised,
		},
		Postgres: PostgresConfig{
			URL: "postgres://studio@db/studio",
		},
		Models: ModelsConfig{
			Endpoints: map[string]EndpointConfig{
				"local": {Provider: "ollama", URL: "http://localhost:11434/v1", Model: "llama3.2"},
			},
		},
	}

	base.Merge(override)

	if base.Orchestrator.Mode != ModeSupervised {
		t.Errorf("expected mode supervised, got %s", base.Orchestrator.Mode)
	}
	// Untouched fields keep base values
	if base.Orchestrator.MaxIterations != 20 {
		t.Errorf("expected max_iterations to remain 20, got %d", base.Orchestrator.MaxIterations)
	}
	if base.Redis.URL != "redis://localhost:6379" {
		t.Errorf("expected redis URL to remain default, got %s", base.Redis.URL)
	}
	if base.Postgres.URL != "postgres://studio@db/studio" {
		t.Errorf("expected postgres URL override, got %s", base.Postgres.URL)
	}
	if _, ok := base.Models.Endpoints["local"]; !ok {
		t.Error("expected merged endpoint local")
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Orchestrator.Mode = ModeSupervised

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Orchestrator.Mode != ModeSupervised {
		t.Errorf("expected mode supervised, got %s", loaded.Orchestrator.Mode)
	}
}

func TestBuildRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models.Endpoints = map[string]EndpointConfig{
		"local": {Provider: "ollama", URL: "http://localhost:11434/v1", Model: "llama3.2", MaxTokens: 128000},
	}
	cfg.Models.Capabilities = map[string]CapabilityConfig{
		"orchestration": {Preferred: []string{"local"}, Fallback: []string{"qwen"}},
	}
	cfg.Models.Default = "local"

	reg, err := cfg.BuildRegistry()
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}

	if got := reg.Resolve(model.CapabilityOrchestration); got != "local" {
		t.Errorf("expected orchestration to resolve to local, got %s", got)
	}
	ep := reg.GetEndpoint("local")
	if ep == nil || ep.Provider != "ollama" {
		t.Fatalf("expected ollama endpoint for local, got %+v", ep)
	}
}

func TestBuildRegistryRejectsUnknownCapability(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models.Capabilities = map[string]CapabilityConfig{
		"telepathy": {Preferred: []string{"qwen"}},
	}

	if _, err := cfg.BuildRegistry(); err == nil {
		t.Error("expected error for unknown capability")
	}
}

func TestBuildRegistryRejectsDanglingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models.Capabilities = map[string]CapabilityConfig{
		"fast": {Preferred: []string{"no-such-endpoint"}},
	}

	if _, err := cfg.BuildRegistry(); err == nil {
		t.Error("expected error for capability referencing a missing endpoint")
	}
}
