// Package config holds the deebo runtime configuration.
//
// A Config is a plain value loaded once at startup and threaded through
// constructors. Nothing in deebo reads the root path or provider settings
// from process-wide state after this package has produced a Config.
//
// Sources, lowest precedence first: built-in defaults, the YAML file
// (with ${VAR} expansion), then the DEEBO_* / provider environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported LLM hosts.
const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "DEEBO_CONFIG"

// Config is the complete deebo configuration.
type Config struct {
	// Root is the deebo data directory. Memory bank, session logs and the
	// default tool registry location all live below it.
	Root       string `yaml:"root"`
	LogLevel   string `yaml:"log_level"`
	MemoryBank bool   `yaml:"memory_bank"`

	// ToolsFile points at a tool registry. Empty means the built-in registry.
	ToolsFile string `yaml:"tools_file"`
	NpxPath   string `yaml:"npx_path"`
	UvxPath   string `yaml:"uvx_path"`

	// ScenarioCommand is the argv prefix used to start a scenario process.
	// The scenario flags are appended to it. Empty means "<own executable> scenario".
	ScenarioCommand []string `yaml:"scenario_command"`

	Mother   AgentConfig `yaml:"mother"`
	Scenario AgentConfig `yaml:"scenario"`
}

// AgentConfig configures the model and limits for one agent kind.
type AgentConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
	MaxTurns  int    `yaml:"max_turns"`

	MaxRuntime time.Duration `yaml:"-"`
	TurnDelay  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	MaxRuntimeRaw string `yaml:"max_runtime"`
	TurnDelayRaw  string `yaml:"turn_delay"`
}

// Default returns the built-in configuration rooted at ~/.deebo.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Root:       filepath.Join(home, ".deebo"),
		LogLevel:   "info",
		MemoryBank: false,
		Mother: AgentConfig{
			Provider:   ProviderOpenRouter,
			Model:      "anthropic/claude-3.5-sonnet",
			MaxTokens:  4096,
			MaxRuntime: 15 * time.Minute,
			TurnDelay:  time.Second,
		},
		Scenario: AgentConfig{
			Provider:   ProviderOpenRouter,
			Model:      "anthropic/claude-3.5-sonnet",
			MaxTokens:  4096,
			MaxTurns:   20,
			MaxRuntime: 5 * time.Minute,
			TurnDelay:  500 * time.Millisecond,
		},
	}
}

// Load reads the configuration file at path, applies environment overrides
// and validates the result. An empty path skips the file and yields
// defaults plus environment.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := expandEnvVars(string(data), getenv)
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyEnv(&cfg, getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to "".
func expandEnvVars(s string, getenv func(string) string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	for _, a := range []struct {
		name string
		ac   *AgentConfig
	}{{"mother", &cfg.Mother}, {"scenario", &cfg.Scenario}} {
		if a.ac.MaxRuntimeRaw != "" {
			d, err := time.ParseDuration(a.ac.MaxRuntimeRaw)
			if err != nil {
				return fmt.Errorf("parsing %s.max_runtime %q: %w", a.name, a.ac.MaxRuntimeRaw, err)
			}
			a.ac.MaxRuntime = d
		}
		if a.ac.TurnDelayRaw != "" {
			d, err := time.ParseDuration(a.ac.TurnDelayRaw)
			if err != nil {
				return fmt.Errorf("parsing %s.turn_delay %q: %w", a.name, a.ac.TurnDelayRaw, err)
			}
			a.ac.TurnDelay = d
		}
	}
	return nil
}

// applyEnv layers the environment variables the original installer writes
// into the MCP host config on top of the file configuration.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("DEEBO_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := getenv("USE_MEMORY_BANK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MemoryBank = b
		}
	}
	if v := getenv("DEEBO_NPX_PATH"); v != "" {
		cfg.NpxPath = v
	}
	if v := getenv("DEEBO_UVX_PATH"); v != "" {
		cfg.UvxPath = v
	}
	if v := getenv("MOTHER_HOST"); v != "" {
		cfg.Mother.Provider = v
	}
	if v := getenv("MOTHER_MODEL"); v != "" {
		cfg.Mother.Model = v
	}
	if v := getenv("SCENARIO_HOST"); v != "" {
		cfg.Scenario.Provider = v
	}
	if v := getenv("SCENARIO_MODEL"); v != "" {
		cfg.Scenario.Model = v
	}
	if cfg.Mother.APIKey == "" {
		cfg.Mother.APIKey = providerKey(cfg.Mother.Provider, getenv)
	}
	if cfg.Scenario.APIKey == "" {
		cfg.Scenario.APIKey = providerKey(cfg.Scenario.Provider, getenv)
	}
}

func providerKey(provider string, getenv func(string) string) string {
	switch provider {
	case ProviderOpenRouter:
		return getenv("OPENROUTER_API_KEY")
	case ProviderAnthropic:
		return getenv("ANTHROPIC_API_KEY")
	case ProviderGemini:
		return getenv("GEMINI_API_KEY")
	case ProviderOpenAI:
		return getenv("OPENAI_API_KEY")
	}
	return ""
}

// Validate checks that the configuration is usable.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("root is required")
	}
	if !filepath.IsAbs(c.Root) {
		return fmt.Errorf("root must be an absolute path, got %q", c.Root)
	}
	for name, a := range map[string]AgentConfig{"mother": c.Mother, "scenario": c.Scenario} {
		switch a.Provider {
		case ProviderOpenRouter, ProviderAnthropic, ProviderGemini, ProviderOpenAI:
		default:
			return fmt.Errorf("%s.provider %q is not one of openrouter, anthropic, gemini, openai", name, a.Provider)
		}
		if a.Model == "" {
			return fmt.Errorf("%s.model is required", name)
		}
		if a.MaxRuntime <= 0 {
			return fmt.Errorf("%s.max_runtime must be positive", name)
		}
		if a.TurnDelay < 0 {
			return fmt.Errorf("%s.turn_delay must not be negative", name)
		}
	}
	if c.Scenario.MaxTurns <= 0 {
		return errors.New("scenario.max_turns must be positive")
	}
	return nil
}

// MemoryRoot is the directory holding every project's memory bank.
func (c *Config) MemoryRoot() string {
	return filepath.Join(c.Root, "memory-bank")
}

// MemoryPath is the memory bank directory of one project.
func (c *Config) MemoryPath(projectID string) string {
	return filepath.Join(c.MemoryRoot(), projectID)
}

// ScenarioArgv returns the argv prefix for scenario processes, falling
// back to re-executing the running binary with the "scenario" subcommand.
func (c *Config) ScenarioArgv() ([]string, error) {
	if len(c.ScenarioCommand) > 0 && strings.TrimSpace(c.ScenarioCommand[0]) != "" {
		return append([]string(nil), c.ScenarioCommand...), nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolving own executable: %w", err)
	}
	return []string{exe, "scenario"}, nil
}
