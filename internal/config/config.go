// Package config loads and hot-reloads Symposium's on-disk configuration:
// which agent to run, which proxy mods to chain in front of it, and the
// sandbox restrictions applied to each subprocess hop.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pragmatic-rustacean/symposium/internal/modsource"
	"gopkg.in/yaml.v3"
)

// DirEnvVar overrides the default config directory when set.
const DirEnvVar = "SYMPOSIUM_DIR"

// FileName is the name of the config file within the Symposium directory.
const FileName = "config.yaml"

// KnownAgent is a well-known downstream agent Symposium can wrap, offered
// as a shortcut in interactive setup.
type KnownAgent struct {
	Name    string
	Command string
}

// KnownAgents mirrors the shortcuts the original Symposium CLI offers so
// users don't have to hand-type an npx invocation.
var KnownAgents = []KnownAgent{
	{Name: "Claude Code", Command: "npx -y @zed-industries/claude-code-acp"},
	{Name: "Gemini CLI", Command: "npx -y -- @google/gemini-cli@latest --experimental-acp"},
	{Name: "Codex", Command: "npx -y @zed-industries/codex-acp"},
	{Name: "Kiro CLI", Command: "kiro-cli-chat acp"},
}

// KnownProxies lists the proxy mod names the "defaults" shortcut expands to.
var KnownProxies = []string{"sparkle", "ferris", "cargo"}

// ProxyEntry configures one proxy mod in the chain.
type ProxyEntry struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
}

// Config is Symposium's persisted configuration.
type Config struct {
	// Agent is the command string used to launch the downstream agent,
	// e.g. "npx -y @zed-industries/claude-code-acp". Empty means no agent
	// is configured yet and the configuration wizard should run.
	Agent string `yaml:"agent,omitempty"`

	// Proxies lists the proxy mods to chain in front of the agent, in order.
	Proxies []ProxyEntry `yaml:"proxies,omitempty"`

	// TraceDir, if set, enables JSONL tracing of every hop to this directory.
	TraceDir string `yaml:"trace_dir,omitempty"`

	// RestrictedRunners holds global per-runner-type sandbox configuration,
	// keyed by runner type ("exec", "sandbox-exec", "firejail", "docker").
	RestrictedRunners map[string]*WorkspaceRunnerConfig `yaml:"restricted_runners,omitempty"`

	// Agents holds per-proxy-name/per-agent overrides of RestrictedRunners.
	Agents map[string]*AgentConfig `yaml:"agents,omitempty"`
}

// AgentConfig holds per-mod configuration overrides.
type AgentConfig struct {
	RestrictedRunners map[string]*WorkspaceRunnerConfig `yaml:"restricted_runners,omitempty"`
}

// rawConfig is the type the file is decoded into before conversion to
// Config. It adds no leniency: a malformed section, optional or not, fails
// the whole parse.
type rawConfig Config

// Dir returns the directory Symposium reads its config and cache from.
// SYMPOSIUM_DIR overrides the default of ~/.symposium.
func Dir() (string, error) {
	if d := os.Getenv(DirEnvVar); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".symposium"), nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads and parses the config file at Path(). It returns
// (nil, nil) if no config file exists yet, matching the original
// implementation's "run the setup wizard" trigger.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads and parses the config file at the given path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg := Config(raw)
	return &cfg, nil
}

// Save writes the config to Path(), creating the Symposium directory if
// necessary.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// EnabledProxies returns the names of proxies marked enabled, in chain order.
func (c *Config) EnabledProxies() []string {
	if c == nil {
		return nil
	}
	var names []string
	for _, p := range c.Proxies {
		if p.Enabled {
			names = append(names, p.Name)
		}
	}
	return names
}

// knownProxyCrates maps a known proxy name to the crates.io binary that
// implements it, mirroring the original implementation's build_proxies
// match (sparkle installs the published "sparkle-mcp" crate; ferris and
// cargo install this project's own published binaries under that naming
// convention).
var knownProxyCrates = map[string]string{
	"sparkle": "sparkle-mcp",
	"ferris":  "symposium-ferris",
	"cargo":   "symposium-cargo",
}

// ProxySource resolves a known proxy name to its launchable mod descriptor.
// Returns an error for any name not in KnownProxies.
func ProxySource(name string) (modsource.Source, error) {
	crate, ok := knownProxyCrates[name]
	if !ok {
		return modsource.Source{}, fmt.Errorf("config: unknown proxy %q, known proxies: %s", name, strings.Join(KnownProxies, ", "))
	}
	return modsource.Source{
		Kind:  modsource.KindCargo,
		Cargo: &modsource.CargoSource{Crate: crate},
	}, nil
}

// ExpandProxyNames expands the special "defaults" entry to every
// KnownProxies name (in order, first occurrence wins) and rejects any name
// that is neither "defaults" nor a KnownProxies entry.
func ExpandProxyNames(names []string) ([]string, error) {
	var result []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			result = append(result, name)
		}
	}
	for _, name := range names {
		switch {
		case name == "defaults":
			for _, k := range KnownProxies {
				add(k)
			}
		case isKnownProxy(name):
			add(name)
		default:
			return nil, fmt.Errorf("config: unknown proxy name %q, known proxies: %s, defaults", name, strings.Join(KnownProxies, ", "))
		}
	}
	return result, nil
}

func isKnownProxy(name string) bool {
	for _, k := range KnownProxies {
		if k == name {
			return true
		}
	}
	return false
}

// WithDefaultProxies returns a Config for agent with every known proxy
// enabled, in KnownProxies order.
func WithDefaultProxies(agent string) *Config {
	cfg := &Config{Agent: agent}
	for _, name := range KnownProxies {
		cfg.Proxies = append(cfg.Proxies, ProxyEntry{Name: name, Enabled: true})
	}
	return cfg
}

// AgentSource parses the configured agent command into a modsource.Source
// describing a local subprocess launch.
func (c *Config) AgentSource() (modsource.Source, error) {
	if c == nil || c.Agent == "" {
		return modsource.Source{}, fmt.Errorf("config: no agent configured")
	}
	args, err := ParseCommand(c.Agent)
	if err != nil {
		return modsource.Source{}, err
	}
	return modsource.Source{
		Kind:  modsource.KindLocal,
		Local: &modsource.LocalSource{Command: args[0], Args: args[1:]},
	}, nil
}
