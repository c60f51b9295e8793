// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the configuration shared by the overlay binaries.
type Config struct {
	// Homeserver is the base URL of the Matrix homeserver.
	Homeserver string `yaml:"homeserver"`

	// ServerName is the server part of generated room aliases. Empty
	// means the server part of the logged-in user ID.
	ServerName string `yaml:"server_name"`

	SSO       SSOConfig       `yaml:"sso"`
	Sync      SyncConfig      `yaml:"sync"`
	Rooms     RoomsConfig     `yaml:"rooms"`
	Paths     PathsConfig     `yaml:"paths"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Log       LogConfig       `yaml:"log"`
}

// SSOConfig configures browser sign-on.
type SSOConfig struct {
	// Enabled allows falling back to browser sign-on when no stored
	// credentials are usable. With it off, only password login works.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Port is the loopback port the sign-on callback listens on. The
	// homeserver must accept http://localhost:<port>/ as a redirect.
	// Default: 8080
	Port int `yaml:"port"`
}

// SyncConfig configures the background sync loop.
type SyncConfig struct {
	// Interval is the pause between sync requests.
	// Default: 1s
	Interval time.Duration `yaml:"interval"`

	// Timeout is the server-side long-poll duration.
	// Default: 1s
	Timeout time.Duration `yaml:"timeout"`

	// Filter is an inline JSON filter or filter ID passed to /sync.
	// JSON filters may carry comments and trailing commas; they are
	// compacted to plain JSON on load.
	Filter string `yaml:"filter"`

	// FilterFile names a file holding a JSON filter, as an alternative
	// to Filter. ${OVERLAY_STATE} and ${HOME} expand in it.
	FilterFile string `yaml:"filter_file"`
}

// RoomsConfig configures room entry.
type RoomsConfig struct {
	// JoinAttempts bounds the joins tried after creating a room.
	// Default: 20
	JoinAttempts int `yaml:"join_attempts"`

	// JoinInterval spaces those attempts.
	// Default: 500ms
	JoinInterval time.Duration `yaml:"join_interval"`

	// MaxPrompts bounds how many times the user is asked for a room.
	// Default: 5
	MaxPrompts int `yaml:"max_prompts"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// State holds stored credentials and the last room. ${OVERLAY_STATE}
	// expands to it in the other paths.
	// Default: $OVERLAY_HOME, else $XDG_CONFIG_HOME/overlay, else
	// ~/.config/overlay
	State string `yaml:"state"`

	// Log is the log file written while the terminal UI owns the
	// terminal.
	// Default: ${OVERLAY_STATE}/overlay.log
	Log string `yaml:"log"`
}

// WebSocketConfig configures the WebSocket build variant.
type WebSocketConfig struct {
	// Address is the host:port of the WebSocket server.
	// Default: localhost:8080
	Address string `yaml:"address"`

	// Path is the request path of the upgrade.
	// Default: /
	Path string `yaml:"path"`

	// HandshakeTimeout bounds connect plus upgrade.
	// Default: 10s
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is auto (text on a terminal, JSON otherwise), text, or json.
	// Default: auto
	Format string `yaml:"format"`
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"auto", "text", "json"}
)

// Default returns the configuration used when no file is given, and
// the base that a file is merged over.
func Default() *Config {
	return &Config{
		Homeserver: "https://matrix.org",
		SSO: SSOConfig{
			Enabled: true,
			Port:    8080,
		},
		Sync: SyncConfig{
			Interval: time.Second,
			Timeout:  time.Second,
		},
		Rooms: RoomsConfig{
			JoinAttempts: 20,
			JoinInterval: 500 * time.Millisecond,
			MaxPrompts:   5,
		},
		Paths: PathsConfig{
			State: defaultStateDirectory(),
			Log:   "${OVERLAY_STATE}/overlay.log",
		},
		WebSocket: WebSocketConfig{
			Address:          "localhost:8080",
			Path:             "/",
			HandshakeTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

func defaultStateDirectory() string {
	if home := os.Getenv("OVERLAY_HOME"); home != "" {
		return home
	}
	configDirectory := os.Getenv("XDG_CONFIG_HOME")
	if configDirectory == "" {
		homeDirectory, _ := os.UserHomeDir()
		configDirectory = filepath.Join(homeDirectory, ".config")
	}
	return filepath.Join(configDirectory, "overlay")
}

// Load loads the file named by OVERLAY_CONFIG, or returns the defaults
// when it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("OVERLAY_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, merged over Default. Keys
// the file does not mention keep their defaults; unknown keys are
// errors.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	if err := cfg.resolveFilter(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	// An empty file decodes to io.EOF and means "all defaults".
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["OVERLAY_STATE"] = c.Paths.State
	c.Paths.Log = expandVars(c.Paths.Log, vars)
	c.Sync.FilterFile = expandVars(c.Sync.FilterFile, vars)
}

// resolveFilter reads sync.filter_file into sync.filter and reduces a
// JSON filter to compact plain JSON. Anything not starting with "{" is
// a stored filter ID and passes through trimmed.
func (c *Config) resolveFilter() error {
	if c.Sync.FilterFile != "" {
		if c.Sync.Filter != "" {
			return fmt.Errorf("config: sync.filter and sync.filter_file cannot both be set")
		}
		data, err := os.ReadFile(c.Sync.FilterFile)
		if err != nil {
			return fmt.Errorf("config: reading sync filter: %w", err)
		}
		c.Sync.Filter = string(data)
	}

	filter := strings.TrimSpace(c.Sync.Filter)
	if !strings.HasPrefix(filter, "{") {
		c.Sync.Filter = filter
		return nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, jsonc.ToJSON([]byte(filter))); err != nil {
		return fmt.Errorf("config: sync filter is not valid JSON: %w", err)
	}
	c.Sync.Filter = compact.String()
	return nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, preferring vars over
// the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if homeserver, err := url.Parse(c.Homeserver); err != nil || homeserver.Host == "" ||
		(homeserver.Scheme != "http" && homeserver.Scheme != "https") {
		errs = append(errs, fmt.Errorf("homeserver must be an http or https URL, got %q", c.Homeserver))
	}
	if strings.ContainsAny(c.ServerName, "#@!/ ") {
		errs = append(errs, fmt.Errorf("server_name %q is not a server name", c.ServerName))
	}

	if c.SSO.Port < 1 || c.SSO.Port > 65535 {
		errs = append(errs, fmt.Errorf("sso.port must be 1-65535, got %d", c.SSO.Port))
	}

	if c.Sync.Interval <= 0 {
		errs = append(errs, fmt.Errorf("sync.interval must be positive"))
	}
	if c.Sync.Timeout < 0 {
		errs = append(errs, fmt.Errorf("sync.timeout must not be negative"))
	}

	if c.Rooms.JoinAttempts < 1 {
		errs = append(errs, fmt.Errorf("rooms.join_attempts must be at least 1"))
	}
	if c.Rooms.JoinInterval < 0 {
		errs = append(errs, fmt.Errorf("rooms.join_interval must not be negative"))
	}
	if c.Rooms.MaxPrompts < 1 {
		errs = append(errs, fmt.Errorf("rooms.max_prompts must be at least 1"))
	}

	if c.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required"))
	}

	if !validHostPort(c.WebSocket.Address) {
		errs = append(errs, fmt.Errorf("websocket.address must be host:port, got %q", c.WebSocket.Address))
	}
	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, fmt.Errorf("websocket.path must start with /, got %q", c.WebSocket.Path))
	}
	if c.WebSocket.HandshakeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("websocket.handshake_timeout must be positive"))
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", logFormats))
	}

	return errors.Join(errs...)
}

func validHostPort(address string) bool {
	host, port, err := net.SplitHostPort(address)
	return err == nil && host != "" && port != ""
}

// EnsurePaths creates the state directory and the log file's directory
// with owner-only permissions.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.State, filepath.Dir(c.Paths.Log)} {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("config: creating %s: %w", path, err)
		}
	}
	return nil
}
