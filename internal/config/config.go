package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"gametools/internal/logger"
)

// LogFile configures one watched game log file.
type LogFile struct {
	Path string `json:"path" yaml:"path"`
	// StaleAfterSeconds discards pre-existing lines when the file was last
	// written longer ago than this, so stale game history is not replayed
	// as live events. Zero keeps history.
	StaleAfterSeconds int `json:"stale_after_seconds" yaml:"stale_after_seconds"`
	// Patterns are regular expressions; lines matching any of them become
	// generic log-line events.
	Patterns []string `json:"patterns" yaml:"patterns"`
}

// Overlay configures the overlay element layer.
type Overlay struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Reference resolution in which element positions are stored.
	RefWidth  int `json:"ref_width" yaml:"ref_width"`
	RefHeight int `json:"ref_height" yaml:"ref_height"`
}

// Config is the tool configuration.
type Config struct {
	// WindowTitle selects the game window. By default a window matches when
	// its title contains WindowTitle; MatchExact requires equality.
	WindowTitle string `json:"window_title" yaml:"window_title"`
	MatchExact  bool   `json:"match_exact" yaml:"match_exact"`

	TickIntervalMS int    `json:"tick_interval_ms" yaml:"tick_interval_ms"`
	ServerPort     int    `json:"server_port" yaml:"server_port"`
	LogLevel       string `json:"log_level" yaml:"log_level"`
	StatePath      string `json:"state_path" yaml:"state_path"`

	LogFiles []LogFile `json:"log_files" yaml:"log_files"`
	Overlay  Overlay   `json:"overlay" yaml:"overlay"`
}

// Manager handles configuration loading, access, and persistence.
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager loads the config at configFile, falling back to
// ~/.config/gametools/config.yaml. A missing file is created with defaults;
// a corrupt file is replaced by defaults with a warning (the loop must not
// fail on bad config).
func NewManager(configFile string) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "gametools")
	actualConfigPath := filepath.Join(configDir, "config.yaml")
	if configFile != "" {
		actualConfigPath = configFile
		configDir = filepath.Dir(configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{configPath: actualConfigPath}
	log := logger.WithComponent("config")

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			log.Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			log.Warn().
				Str("path", m.configPath).
				Err(err).
				Msg("Config file unreadable, using defaults")
			m.config = Defaults()
		}
	}

	log.Info().
		Str("path", m.configPath).
		Str("window_title", m.config.WindowTitle).
		Int("log_files", len(m.config.LogFiles)).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		WindowTitle:    "",
		MatchExact:     false,
		TickIntervalMS: 15,
		ServerPort:     8080,
		LogLevel:       "info",
		StatePath:      "",
		LogFiles:       []LogFile{},
		Overlay: Overlay{
			Enabled:   true,
			RefWidth:  1920,
			RefHeight: 1080,
		},
	}
}

func (m *Manager) load() error {
	raw, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Save persists the current configuration to disk.
func (m *Manager) Save() error {
	m.mu.RLock()
	raw, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(m.configPath, raw, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.config
}

// Update replaces the configuration and persists it.
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// GetConfigPath returns the path of the loaded config file.
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// SetPort overrides the API server port.
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	m.config.ServerPort = port
	m.mu.Unlock()
}

// SetLogLevel overrides the log level.
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	m.config.LogLevel = level
	m.mu.Unlock()
}

// SetWindowTitle overrides the target window title.
func (m *Manager) SetWindowTitle(title string) {
	m.mu.Lock()
	m.config.WindowTitle = title
	m.mu.Unlock()
}
