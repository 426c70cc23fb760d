// Package config loads the agent configuration: a YAML file in the swak
// home directory listing source chains and tag matches, with environment
// variables (optionally from a .env file next to it) expanded before
// parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/haje01/swak/errors"
	"github.com/haje01/swak/tag"
)

const (
	// HomeEnv names the environment variable holding the home directory.
	HomeEnv = "SWAK_HOME"
	// FileName is the config file looked up in the home directory.
	FileName = "config.yml"
	// EnvFileName is the optional dotenv file in the home directory.
	EnvFileName = ".env"

	maxConfigSize = 10 << 20
)

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// ProxyConfig sizes the queues between source and sink pods.
type ProxyConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Match is one entry of the matches section: a tag pattern and the chain
// that handles matching streams.
type Match struct {
	Pattern string
	Chain   string
}

// Matches keeps the matches section in file order.
type Matches []Match

// UnmarshalYAML decodes a mapping while keeping key order.
func (m *Matches) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: matches must be a mapping, line %d", errors.ErrInvalidConfig, value.Line)
	}

	out := make(Matches, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i], value.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("%w: match %q must be a chain string, line %d", errors.ErrInvalidConfig, k.Value, v.Line)
		}
		out = append(out, Match{Pattern: k.Value, Chain: v.Value})
	}
	*m = out
	return nil
}

// Config is the whole agent configuration.
type Config struct {
	SvcName         string        `yaml:"svc_name"`
	Debug           bool          `yaml:"debug"`
	Log             LogConfig     `yaml:"log"`
	Metrics         MetricsConfig `yaml:"metrics"`
	Proxy           ProxyConfig   `yaml:"proxy"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Sources         []string      `yaml:"sources"`
	Matches         Matches       `yaml:"matches"`

	// Home is the directory the file was loaded from.
	Home string `yaml:"-"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		SvcName: "swak",
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Port: 9090, Path: "/metrics"},
		Proxy: ProxyConfig{
			QueueSize:    1000,
			PollInterval: 50 * time.Millisecond,
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks value ranges and parses every chain.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return invalid("Validate", "at least one source is required")
	}
	if c.Proxy.QueueSize <= 0 {
		return invalid("Validate", "proxy.queue_size must be positive")
	}
	if c.Proxy.PollInterval <= 0 {
		return invalid("Validate", "proxy.poll_interval must be positive")
	}
	if c.ShutdownTimeout < 0 {
		return invalid("Validate", "shutdown_timeout must not be negative")
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return invalid("Validate", fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
	}

	for _, src := range c.Sources {
		if _, err := ParseSourceChain(src); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(c.Matches))
	for _, m := range c.Matches {
		if seen[m.Pattern] {
			return invalid("Validate", fmt.Sprintf("duplicate match %q", m.Pattern))
		}
		seen[m.Pattern] = true
		if _, err := tag.Compile(m.Pattern); err != nil {
			return err
		}
		if _, err := ParseMatchChain(m.Chain); err != nil {
			return err
		}
	}
	return nil
}

// SelectHome picks the home directory: explicit home first, then
// $SWAK_HOME, then the executable's directory. The chosen directory must
// hold a config file.
func SelectHome(home string) (string, error) {
	missing := func(dir string) error {
		return errors.WrapInvalid(fmt.Errorf("%w: %s has no %s", errors.ErrMissingConfig, dir, FileName),
			"Config", "SelectHome", "config file lookup")
	}

	if home != "" {
		if !fileExists(filepath.Join(home, FileName)) {
			return "", missing(home)
		}
		return home, nil
	}
	if env := os.Getenv(HomeEnv); env != "" {
		if !fileExists(filepath.Join(env, FileName)) {
			return "", missing(env)
		}
		return env, nil
	}
	if exe, err := os.Executable(); err == nil {
		if dir := filepath.Dir(exe); fileExists(filepath.Join(dir, FileName)) {
			return dir, nil
		}
	}
	return "", errors.WrapInvalid(fmt.Errorf("%w: home directory can't be decided", errors.ErrMissingConfig),
		"Config", "SelectHome", "home lookup")
}

// Load selects the home directory and loads its config file.
func Load(home string) (*Config, error) {
	dir, err := SelectHome(home)
	if err != nil {
		return nil, err
	}
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile loads, expands and validates one config file. A .env file in
// the same directory is loaded first; variables already set win.
func LoadFile(path string) (*Config, error) {
	dir := filepath.Dir(path)
	if envPath := filepath.Join(dir, EnvFileName); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "LoadFile", "load "+EnvFileName)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrMissingConfig, err), "Config", "LoadFile", "stat")
	}
	if info.Size() > maxConfigSize {
		return nil, invalid("LoadFile", fmt.Sprintf("config file too large: %d > %d", info.Size(), maxConfigSize))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "LoadFile", "read")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	cfg, err := Parse(raw, abs)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRe = regexp.MustCompile(`\$(?:\{([A-Za-z_][A-Za-z0-9_]*)\}|([A-Za-z_][A-Za-z0-9_]*))`)

// expandEnv replaces $VAR and ${VAR} with set environment variables. Unset
// names stay as written so plugin placeholders such as ${hostname} or
// ${tag_parts[0]} reach their plugins.
func expandEnv(raw, home string) string {
	return envRe.ReplaceAllStringFunc(raw, func(m string) string {
		sub := envRe.FindStringSubmatch(m)
		key := sub[1] + sub[2]
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		if key == HomeEnv {
			return home
		}
		return m
	})
}

// Parse decodes raw YAML over the defaults after expanding environment
// variables. SWAK_HOME expands to home when it is not set.
func Parse(raw []byte, home string) (*Config, error) {
	expanded := expandEnv(string(raw), home)

	cfg := Default()
	if strings.TrimSpace(expanded) == "" {
		return nil, invalid("Parse", "empty config")
	}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "Config", "Parse", "decode yaml")
	}
	cfg.Home = home

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func invalid(method, msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg), "Config", method, "validation")
}
