package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/externos/hubd/internal/logger"
	"gopkg.in/yaml.v3"
)

// IconBackend selects how window icons are extracted
type IconBackend string

const (
	IconBackendCommand IconBackend = "command" // xprop + ffmpeg subprocesses
	IconBackendX11     IconBackend = "x11"     // direct _NET_WM_ICON read over xgb
)

// TrackerConfig configures the window poll loop
type TrackerConfig struct {
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	StartupDelay time.Duration `json:"startup_delay" yaml:"startup_delay"`
	// ShellTitle is the exact title of the desktop shell window, which is never tracked
	ShellTitle  string        `json:"shell_title" yaml:"shell_title"`
	PollTimeout time.Duration `json:"poll_timeout" yaml:"poll_timeout"`
}

// IconConfig configures icon extraction
type IconConfig struct {
	Enabled   bool        `json:"enabled" yaml:"enabled"`
	Backend   IconBackend `json:"backend" yaml:"backend"`
	Dir       string      `json:"dir" yaml:"dir"`
	Workers   int         `json:"workers" yaml:"workers"`
	QueueSize int         `json:"queue_size" yaml:"queue_size"`
	Size      int         `json:"size" yaml:"size"`
}

// NetworkConfig configures the Wi-Fi controller
type NetworkConfig struct {
	RevertDelay    time.Duration `json:"revert_delay" yaml:"revert_delay"`
	ScanOnStart    bool          `json:"scan_on_start" yaml:"scan_on_start"`
	StatusInterval time.Duration `json:"status_interval" yaml:"status_interval"`
	Notify         bool          `json:"notify" yaml:"notify"`
}

// DisplayConfig configures xrandr brightness control
type DisplayConfig struct {
	MinBrightness float64 `json:"min_brightness" yaml:"min_brightness"`
}

// Config represents the application configuration
type Config struct {
	ServerPort int           `json:"server_port" yaml:"server_port"`
	LogLevel   string        `json:"log_level" yaml:"log_level"`
	Tracker    TrackerConfig `json:"tracker" yaml:"tracker"`
	Icons      IconConfig    `json:"icons" yaml:"icons"`
	Network    NetworkConfig `json:"network" yaml:"network"`
	Display    DisplayConfig `json:"display" yaml:"display"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/hubd/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "hubd", "config.yaml"), nil
}

// NewManager creates a new configuration manager. An empty configFile
// means the default path. A missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		def, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = def
	}

	m := &Manager{configPath: path}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Dur("poll_interval", m.config.Tracker.PollInterval).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	iconDir := filepath.Join(os.TempDir(), "hubd", "ProccessIcons")
	if home, err := os.UserHomeDir(); err == nil {
		iconDir = filepath.Join(home, "Shared", "ProccessIcons")
	}

	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Tracker: TrackerConfig{
			PollInterval: 4 * time.Second,
			StartupDelay: 8 * time.Second,
			ShellTitle:   "eXtern OS Desktop",
			PollTimeout:  10 * time.Second,
		},
		Icons: IconConfig{
			Enabled:   true,
			Backend:   IconBackendCommand,
			Dir:       iconDir,
			Workers:   2,
			QueueSize: 16,
			Size:      48,
		},
		Network: NetworkConfig{
			RevertDelay:    3 * time.Second,
			ScanOnStart:    true,
			StatusInterval: 10 * time.Second,
			Notify:         true,
		},
		Display: DisplayConfig{
			MinBrightness: 0.1,
		},
	}
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	// Unset keys keep their defaults
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	return nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port out of range: %d", c.ServerPort)
	}
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}
	if c.Tracker.PollInterval <= 0 {
		return fmt.Errorf("tracker.poll_interval must be positive")
	}
	if c.Tracker.StartupDelay < 0 {
		return fmt.Errorf("tracker.startup_delay must not be negative")
	}
	if c.Icons.Workers < 1 {
		return fmt.Errorf("icons.workers must be at least 1")
	}
	if c.Icons.QueueSize < 1 {
		return fmt.Errorf("icons.queue_size must be at least 1")
	}
	switch c.Icons.Backend {
	case IconBackendCommand, IconBackendX11:
	default:
		return fmt.Errorf("unknown icons.backend: %q", c.Icons.Backend)
	}
	if c.Display.MinBrightness < 0 || c.Display.MinBrightness > 1 {
		return fmt.Errorf("display.min_brightness must be within [0, 1]")
	}
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	cfg := m.Get()

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update replaces the entire configuration and saves it
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c := *cfg
	m.mu.Lock()
	m.config = &c
	m.mu.Unlock()
	return m.Save()
}

// SetPort overrides the server port in memory
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.ServerPort = port
}

// SetLogLevel overrides the log level in memory
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}

// GetConfigPath returns the configuration file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Lookup returns the value at a dotted key such as "tracker.poll_interval"
func (m *Manager) Lookup(key string) (interface{}, bool) {
	tree, err := toTree(m.Get())
	if err != nil {
		return nil, false
	}
	parent, leaf, ok := walk(tree, key)
	if !ok {
		return nil, false
	}
	v, ok := parent[leaf]
	return v, ok
}

// Set assigns a value at a dotted key, validates and saves. The value is
// parsed as a YAML scalar so "9090", "true" and "5s" get sensible types.
func (m *Manager) Set(key, value string) error {
	tree, err := toTree(m.Get())
	if err != nil {
		return err
	}

	parent, leaf, ok := walk(tree, key)
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if _, exists := parent[leaf]; !exists {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	var parsed interface{}
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	parent[leaf] = parsed

	data, err := yaml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	return m.Update(cfg)
}

// toTree converts the config into nested maps keyed by yaml names
func toTree(cfg *Config) (map[string]interface{}, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	tree := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return tree, nil
}

func walk(tree map[string]interface{}, key string) (map[string]interface{}, string, bool) {
	parts := strings.Split(key, ".")
	node := tree
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]interface{})
		if !ok {
			return nil, "", false
		}
		node = child
	}
	return node, parts[len(parts)-1], true
}
