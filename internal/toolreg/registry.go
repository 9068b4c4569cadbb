// Package toolreg is the declarative registry of external MCP tool servers.
//
// A registry maps a tool name to the command that starts its MCP server.
// It is closed: every name is validated when the registry is loaded, and
// lookups of names outside it fail with ErrUnknownTool instead of being
// dispatched dynamically.
//
// Resolution is an explicit two-step probe-then-select: the primary command
// is substituted and probed on the current platform, and when it is not
// runnable the configured fallback is selected. Callers receive a single
// Resolved value and never branch on which variant was chosen.
package toolreg

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Names of the tools every investigating agent needs.
const (
	Git        = "git-mcp"
	Filesystem = "desktop-commander"
)

// ErrUnknownTool is returned when a tool name is not in the registry.
var ErrUnknownTool = errors.New("unknown tool")

// Command is a command template plus its argument templates.
type Command struct {
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args"`
}

// Spec describes how to start one tool server.
type Spec struct {
	Command `yaml:",inline"`

	// Fallback is used when the primary executable is not available.
	Fallback *Command `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	// Legacy name used by older tools.json files.
	WindowsFallback *Command `yaml:"windowsFallback,omitempty" json:"windowsFallback,omitempty"`
}

// UnmarshalJSON accepts the flat {command, args, fallback} JSON shape.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw struct {
		Command         string   `json:"command"`
		Args            []string `json:"args"`
		Fallback        *Command `json:"fallback"`
		WindowsFallback *Command `json:"windowsFallback"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Command = Command{Command: raw.Command, Args: raw.Args}
	s.Fallback = raw.Fallback
	s.WindowsFallback = raw.WindowsFallback
	return nil
}

func (s Spec) fallback() *Command {
	if s.Fallback != nil {
		return s.Fallback
	}
	return s.WindowsFallback
}

// Vars are the run-time values substituted into command templates.
type Vars struct {
	RepoPath   string
	MemoryPath string
	MemoryRoot string
	NpxPath    string
	UvxPath    string
}

// Resolved is a fully substituted, platform-selected tool command.
type Resolved struct {
	Name         string
	Command      string
	Args         []string
	UsedFallback bool
}

// Registry is a validated, closed set of tool specs.
type Registry struct {
	tools    map[string]Spec
	lookPath func(string) (string, error)
}

// New validates specs and builds a Registry.
func New(tools map[string]Spec) (*Registry, error) {
	if len(tools) == 0 {
		return nil, errors.New("toolreg: registry is empty")
	}
	for name, spec := range tools {
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("toolreg: tool with empty name")
		}
		if strings.TrimSpace(spec.Command.Command) == "" {
			return nil, fmt.Errorf("toolreg: tool %q has no command", name)
		}
		if fb := spec.fallback(); fb != nil && strings.TrimSpace(fb.Command) == "" {
			return nil, fmt.Errorf("toolreg: tool %q has a fallback without command", name)
		}
		if err := checkPlaceholders(spec); err != nil {
			return nil, fmt.Errorf("toolreg: tool %q: %w", name, err)
		}
	}
	return &Registry{tools: tools, lookPath: exec.LookPath}, nil
}

// Load reads a registry file. Both the YAML form and the original
// tools.json shape ({"tools": {...}}) are accepted.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("toolreg: reading %s: %w", path, err)
	}
	var doc struct {
		Tools map[string]Spec `yaml:"tools" json:"tools"`
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("toolreg: parsing %s: %w", path, err)
	}
	return New(doc.Tools)
}

// Default returns the built-in registry: the git MCP server run through
// uvx (falling back to npx) and desktop-commander run through npx.
func Default() *Registry {
	r, err := New(map[string]Spec{
		Git: {
			Command: Command{
				Command: "{uvxPath}",
				Args:    []string{"mcp-server-git", "--repository", "{repoPath}"},
			},
			Fallback: &Command{
				Command: "{npxPath}",
				Args:    []string{"-y", "@cyanheads/git-mcp-server"},
			},
		},
		Filesystem: {
			Command: Command{
				Command: "{npxPath}",
				Args:    []string{"-y", "@wonderwhy-er/desktop-commander"},
			},
		},
	})
	if err != nil {
		panic(err) // built-in registry is static
	}
	return r
}

// SetLookPath replaces the executable probe. Tests use it to simulate
// platforms where the primary launcher is missing.
func (r *Registry) SetLookPath(fn func(string) (string, error)) {
	r.lookPath = fn
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a registered tool.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Resolve substitutes placeholders and selects between the primary command
// and the fallback.
func (r *Registry) Resolve(name string, v Vars) (Resolved, error) {
	spec, ok := r.tools[name]
	if !ok {
		return Resolved{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	primary := substitute(spec.Command, v)
	if r.available(primary.Command) {
		return Resolved{Name: name, Command: primary.Command, Args: primary.Args}, nil
	}

	if fb := spec.fallback(); fb != nil {
		alt := substitute(*fb, v)
		return Resolved{Name: name, Command: alt.Command, Args: alt.Args, UsedFallback: true}, nil
	}

	if primary.Command == "" {
		return Resolved{}, fmt.Errorf("toolreg: %s: launcher path is not configured", name)
	}
	// No fallback: hand the primary to the transport and let the spawn fail
	// with the real OS error.
	return Resolved{Name: name, Command: primary.Command, Args: primary.Args}, nil
}

func (r *Registry) available(command string) bool {
	if command == "" {
		return false
	}
	_, err := r.lookPath(command)
	return err == nil
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z]+)\}`)

var knownPlaceholders = map[string]bool{
	"repoPath":   true,
	"memoryPath": true,
	"memoryRoot": true,
	"npxPath":    true,
	"uvxPath":    true,
}

func checkPlaceholders(spec Spec) error {
	cmds := []Command{spec.Command}
	if fb := spec.fallback(); fb != nil {
		cmds = append(cmds, *fb)
	}
	for _, c := range cmds {
		for _, s := range append([]string{c.Command}, c.Args...) {
			for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
				if !knownPlaceholders[m[1]] {
					return fmt.Errorf("unknown placeholder {%s}", m[1])
				}
			}
		}
	}
	return nil
}

func substitute(c Command, v Vars) Command {
	repl := strings.NewReplacer(
		"{repoPath}", v.RepoPath,
		"{memoryPath}", v.MemoryPath,
		"{memoryRoot}", v.MemoryRoot,
		"{npxPath}", launcher(v.NpxPath, "npx"),
		"{uvxPath}", launcher(v.UvxPath, "uvx"),
	)
	out := Command{Command: repl.Replace(c.Command), Args: make([]string, len(c.Args))}
	for i, a := range c.Args {
		out.Args[i] = repl.Replace(a)
	}
	return out
}

// launcher defaults an unset auxiliary launcher to its bare name so it is
// looked up on PATH.
func launcher(configured, name string) string {
	if configured != "" {
		return configured
	}
	return name
}
