// Package config loads the runtime configuration from YAML or JSON5 files.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"go.mau.fi/util/ptr"
	"gopkg.in/yaml.v3"

	"github.com/beeper/chatgate/pkg/action"
	"github.com/beeper/chatgate/pkg/command"
	"github.com/beeper/chatgate/pkg/shared/stringutil"
	"github.com/beeper/chatgate/pkg/transport"
)

//go:embed example-config.yaml
var ExampleConfig string

// Environment variables that override file values.
const (
	EnvToken    = "CHATGATE_TOKEN"
	EnvLogLevel = "CHATGATE_LOG_LEVEL"
)

// Config is the full runtime configuration.
type Config struct {
	Platform    string        `yaml:"platform" json:"platform"`
	Connections []Connection  `yaml:"connections" json:"connections"`
	Command     CommandConfig `yaml:"command" json:"command"`
	Superusers  []int64       `yaml:"superusers" json:"superusers"`
	Plugins     PluginsConfig `yaml:"plugins" json:"plugins"`
	Log         LogConfig     `yaml:"log" json:"log"`

	// ActionTimeout is a Go duration string bounding every pending action.
	ActionTimeout string `yaml:"action_timeout" json:"action_timeout"`
	// DirectoryRefresh is a cron expression re-priming every session's
	// directory. Empty disables the refresh.
	DirectoryRefresh string `yaml:"directory_refresh" json:"directory_refresh"`
	MetricsListen    string `yaml:"metrics_listen" json:"metrics_listen"`
}

// Connection describes one gateway endpoint.
type Connection struct {
	Type         transport.Kind `yaml:"type" json:"type"`
	Host         string         `yaml:"host" json:"host"`
	Port         int            `yaml:"port" json:"port"`
	Path         string         `yaml:"path" json:"path"`
	Token        string         `yaml:"token" json:"token"`
	Target       string         `yaml:"target" json:"target"`
	PushDisabled bool           `yaml:"push_disabled" json:"push_disabled"`
}

type CommandConfig struct {
	Prompts       string `yaml:"prompts" json:"prompts"`
	Separators    string `yaml:"separators" json:"separators"`
	TrimBlanks    *bool  `yaml:"trim_blanks" json:"trim_blanks"`
	CaseSensitive bool   `yaml:"case_sensitive" json:"case_sensitive"`
}

// Tokenizer returns the tokenizer settings.
func (c CommandConfig) Tokenizer() command.Config {
	return command.Config{
		Prompts:    c.Prompts,
		Separators: c.Separators,
		TrimBlanks: ptr.Val(c.TrimBlanks),
	}
}

type PluginsConfig struct {
	Disabled []string `yaml:"disabled" json:"disabled"`
}

// Enabled reports whether the named plugin may be loaded.
func (p PluginsConfig) Enabled(name string) bool {
	return !slices.Contains(p.Disabled, name)
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// Default returns a configuration with every default applied and a single
// reverse WebSocket listener on localhost.
func Default() *Config {
	cfg := &Config{
		Connections: []Connection{{Type: transport.KindWSReverse, Host: "127.0.0.1", Port: 8080}},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	c.Platform = stringutil.FirstNonEmpty(c.Platform, "chatgate")
	if c.Command.Prompts == "" {
		c.Command.Prompts = command.DefaultConfig.Prompts
	}
	if c.Command.Separators == "" {
		c.Command.Separators = command.DefaultConfig.Separators
	}
	if c.Command.TrimBlanks == nil {
		c.Command.TrimBlanks = ptr.Ptr(command.DefaultConfig.TrimBlanks)
	}
	c.ActionTimeout = stringutil.FirstNonEmpty(c.ActionTimeout, action.DefaultTimeout.String())
	c.Log.Level = stringutil.EnvOverride(EnvLogLevel, stringutil.FirstNonEmpty(c.Log.Level, "info"))
	token := stringutil.EnvOverride(EnvToken, "")
	for i := range c.Connections {
		conn := &c.Connections[i]
		conn.Type = transport.Kind(strings.ToLower(strings.TrimSpace(string(conn.Type))))
		if conn.Host == "" {
			conn.Host = "127.0.0.1"
		}
		if conn.Path == "" {
			conn.Path = "/"
		}
		conn.Token = stringutil.FirstNonEmpty(conn.Token, token)
	}
}

// Timeout returns the parsed action timeout, or the default when the value
// is invalid.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.ActionTimeout)
	if err != nil || d <= 0 {
		return action.DefaultTimeout
	}
	return d
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// RefreshParser parses directory_refresh expressions.
var RefreshParser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.Connections) == 0 {
		return errors.New("no connections configured")
	}
	for i, conn := range c.Connections {
		if err := conn.Validate(); err != nil {
			return fmt.Errorf("connections[%d]: %w", i, err)
		}
	}
	if d, err := time.ParseDuration(c.ActionTimeout); err != nil {
		return fmt.Errorf("action_timeout: %w", err)
	} else if d <= 0 {
		return fmt.Errorf("action_timeout must be positive, got %s", c.ActionTimeout)
	}
	if c.DirectoryRefresh != "" {
		if _, err := RefreshParser.Parse(c.DirectoryRefresh); err != nil {
			return fmt.Errorf("directory_refresh: %w", err)
		}
	}
	if strings.ContainsAny(c.Command.Prompts, " \t") {
		return errors.New("command.prompts must not contain blanks")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Validate checks one connection descriptor.
func (c Connection) Validate() error {
	switch c.Type {
	case transport.KindWSReverse:
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("ws-reverse needs a port in 1-65535, got %d", c.Port)
		}
	case transport.KindHTTP:
		if c.Target == "" {
			return errors.New("http needs a target")
		}
		if !c.PushDisabled && (c.Port < 0 || c.Port > 65535) {
			return fmt.Errorf("invalid push port %d", c.Port)
		}
	case "":
		return errors.New("missing type")
	default:
		return fmt.Errorf("unknown type %q", c.Type)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("path %q must start with /", c.Path)
	}
	return nil
}

// Parse decodes data as JSON5 when format is "json" or "json5", YAML
// otherwise, then applies defaults.
func Parse(data []byte, format string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "json", "json5":
		if err := json5.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decoding json5 config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decoding yaml config: %w", err)
		}
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Load reads, defaults and validates the config file at path. A leading
// "~" is expanded to the home directory.
func Load(path string) (*Config, error) {
	path = ResolvePath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ResolvePath expands a leading "~" and cleans path.
func ResolvePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if strings.HasPrefix(trimmed, "~") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
		}
	}
	return filepath.Clean(trimmed)
}
