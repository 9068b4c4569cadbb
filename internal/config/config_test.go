package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deebo.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// --- Default ---

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Mother.MaxRuntime != 15*time.Minute {
		t.Errorf("Mother.MaxRuntime = %v, want 15m", cfg.Mother.MaxRuntime)
	}
	if cfg.Mother.TurnDelay != time.Second {
		t.Errorf("Mother.TurnDelay = %v, want 1s", cfg.Mother.TurnDelay)
	}
	if cfg.MemoryBank {
		t.Error("memory bank should be off by default")
	}
}

// --- Load ---

func TestLoad_NoFileUsesEnv(t *testing.T) {
	root := t.TempDir()
	cfg, err := load("", envFrom(map[string]string{
		"DEEBO_ROOT":         root,
		"USE_MEMORY_BANK":    "true",
		"MOTHER_HOST":        "gemini",
		"MOTHER_MODEL":       "gemini-2.5-pro",
		"GEMINI_API_KEY":     "g-key",
		"OPENROUTER_API_KEY": "or-key",
		"DEEBO_UVX_PATH":     "/opt/uvx",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Root != root {
		t.Errorf("Root = %q, want %q", cfg.Root, root)
	}
	if !cfg.MemoryBank {
		t.Error("USE_MEMORY_BANK=true should enable the memory bank")
	}
	if cfg.Mother.Provider != ProviderGemini || cfg.Mother.Model != "gemini-2.5-pro" {
		t.Errorf("mother = %s/%s, want gemini/gemini-2.5-pro", cfg.Mother.Provider, cfg.Mother.Model)
	}
	if cfg.Mother.APIKey != "g-key" {
		t.Errorf("Mother.APIKey = %q, want provider key", cfg.Mother.APIKey)
	}
	if cfg.Scenario.APIKey != "or-key" {
		t.Errorf("Scenario.APIKey = %q, want openrouter key", cfg.Scenario.APIKey)
	}
	if cfg.UvxPath != "/opt/uvx" {
		t.Errorf("UvxPath = %q", cfg.UvxPath)
	}
}

func TestLoad_FileWithExpansionAndDurations(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
root: ${TEST_ROOT}
memory_bank: true
scenario_command: ["/usr/local/bin/deebo", "scenario"]
mother:
  provider: anthropic
  model: claude-sonnet-4
  api_key: ${ANTHROPIC_KEY}
  max_runtime: 2m
  turn_delay: 10ms
scenario:
  max_turns: 7
  max_runtime: 90s
`)
	cfg, err := load(path, envFrom(map[string]string{
		"TEST_ROOT":     root,
		"ANTHROPIC_KEY": "sk-ant",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Root != root {
		t.Errorf("Root = %q, want %q", cfg.Root, root)
	}
	if cfg.Mother.APIKey != "sk-ant" {
		t.Errorf("Mother.APIKey = %q, want sk-ant", cfg.Mother.APIKey)
	}
	if cfg.Mother.MaxRuntime != 2*time.Minute {
		t.Errorf("Mother.MaxRuntime = %v, want 2m", cfg.Mother.MaxRuntime)
	}
	if cfg.Mother.TurnDelay != 10*time.Millisecond {
		t.Errorf("Mother.TurnDelay = %v, want 10ms", cfg.Mother.TurnDelay)
	}
	if cfg.Scenario.MaxTurns != 7 {
		t.Errorf("Scenario.MaxTurns = %d, want 7", cfg.Scenario.MaxTurns)
	}
	if cfg.Scenario.MaxRuntime != 90*time.Second {
		t.Errorf("Scenario.MaxRuntime = %v, want 90s", cfg.Scenario.MaxRuntime)
	}
	// Scenario provider keeps its default when the file leaves it unset.
	if cfg.Scenario.Provider != ProviderOpenRouter {
		t.Errorf("Scenario.Provider = %q, want openrouter", cfg.Scenario.Provider)
	}

	argv, err := cfg.ScenarioArgv()
	if err != nil {
		t.Fatalf("ScenarioArgv: %v", err)
	}
	if strings.Join(argv, " ") != "/usr/local/bin/deebo scenario" {
		t.Errorf("ScenarioArgv = %v", argv)
	}
}

func TestLoad_Errors(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad duration", "root: " + root + "\nmother:\n  max_runtime: soon\n", "max_runtime"},
		{"unknown provider", "root: " + root + "\nmother:\n  provider: llamafarm\n", "provider"},
		{"relative root", "root: relative/dir\n", "absolute"},
		{"bad yaml", "root: [unterminated\n", "parsing config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(writeConfig(t, tt.body), envFrom(nil))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), envFrom(nil))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

// --- Paths ---

func TestMemoryPaths(t *testing.T) {
	cfg := Config{Root: "/var/deebo"}
	if got := cfg.MemoryRoot(); got != filepath.Join("/var/deebo", "memory-bank") {
		t.Errorf("MemoryRoot = %q", got)
	}
	if got := cfg.MemoryPath("abc123"); got != filepath.Join("/var/deebo", "memory-bank", "abc123") {
		t.Errorf("MemoryPath = %q", got)
	}
}

func TestScenarioArgv_DefaultsToSelf(t *testing.T) {
	cfg := Default()
	argv, err := cfg.ScenarioArgv()
	if err != nil {
		t.Fatalf("ScenarioArgv: %v", err)
	}
	if len(argv) != 2 || argv[1] != "scenario" {
		t.Errorf("ScenarioArgv = %v, want [<exe> scenario]", argv)
	}
}
