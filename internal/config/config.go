// Package config resolves the storage root and loads its settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"cowfs/internal/artifacts"
	"cowfs/internal/cache"
)

const (
	// EnvRoot overrides the default storage root.
	EnvRoot = "COWFS_ROOT"
	// DefaultRoot is used when neither --root nor COWFS_ROOT is set.
	DefaultRoot = "cow_filesystem"

	settingsFile = "settings.yaml"
	logFile      = "cowfs.log"
	lockFile     = ".lock"
)

// ResolveRoot returns the absolute storage root.
// Precedence: flag value, then COWFS_ROOT, then ./cow_filesystem.
func ResolveRoot(flag string) (string, error) {
	root := flag
	if root == "" {
		root = os.Getenv(EnvRoot)
	}
	if root == "" {
		root = DefaultRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	return abs, nil
}

// SettingsPath returns the settings file path
func SettingsPath(root string) string {
	return filepath.Join(root, settingsFile)
}

// LogPath returns the event log path
func LogPath(root string) string {
	return filepath.Join(root, logFile)
}

// LockPath returns the lock file path
func LockPath(root string) string {
	return filepath.Join(root, lockFile)
}

// InitRoot creates the root directory and writes default settings if absent.
func InitRoot(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create root directory: %w", err)
	}
	settingsPath := SettingsPath(root)
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, artifacts.GlobalSettings, 0o644); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}
	return nil
}

// Settings represents the per-root settings file
type Settings struct {
	LogLevel          string `yaml:"log_level"`           // trace, debug, info, warn, none (default: info)
	BlockCacheEntries *int   `yaml:"block_cache_entries"` // default: 1024, 0 disables (pointer to detect missing)
	Fsync             bool   `yaml:"fsync"`               // default: false
	LockTimeoutMs     int    `yaml:"lock_timeout_ms"`     // default: 2000
}

// ApplyDefaults fills zero-value fields with their defaults.
func (s *Settings) ApplyDefaults() {
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.BlockCacheEntries == nil {
		n := cache.DefaultBlockCacheEntries
		s.BlockCacheEntries = &n
	}
	if s.LockTimeoutMs <= 0 {
		s.LockTimeoutMs = 2000
	}
}

// CacheEntries returns the effective block cache size.
// COWFS_CACHE=0 disables the cache regardless of the settings file.
func (s *Settings) CacheEntries() int {
	if cache.Disabled || s.BlockCacheEntries == nil {
		return 0
	}
	return max(*s.BlockCacheEntries, 0)
}

// Level returns the normalized (lowercase) log level.
func (s *Settings) Level() string {
	return strings.ToLower(strings.TrimSpace(s.LogLevel))
}

// loadDefaultSettings parses default settings from embedded artifact.
func loadDefaultSettings() Settings {
	var settings Settings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &settings); err != nil {
		panic("failed to parse embedded settings: " + err.Error())
	}
	settings.ApplyDefaults()
	return settings
}

// LoadSettings loads <root>/settings.yaml.
// Falls back to embedded defaults if the file doesn't exist.
func LoadSettings(root string) (*Settings, error) {
	data, err := os.ReadFile(SettingsPath(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			settings := loadDefaultSettings()
			return &settings, nil
		}
		return nil, err
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", SettingsPath(root), err)
	}
	settings.ApplyDefaults()
	return &settings, nil
}

// SaveSettings writes settings to <root>/settings.yaml
func SaveSettings(root string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	header := []byte("# cowfs storage root settings\n# See: cowfs --help\n\n")
	return os.WriteFile(SettingsPath(root), append(header, data...), 0o644)
}
