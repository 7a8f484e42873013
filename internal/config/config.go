// Package config provides configuration management for discloud.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/ini.v1"

	"github.com/discloud/discloud/internal/constants"
	"github.com/discloud/discloud/internal/errs"
)

// AppConfig is the user-level configuration for the CLI.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\discloud\config
//   - Unix: ~/.config/discloud/config
//
// INI format:
//
//	[discloud]
//	catalog_path = /home/user/.config/discloud/catalog.db
//	default_backend = discord_default
//	log_level = info
//
//	[discloud.transfer]
//	chunk_size = 8388608
type AppConfig struct {
	// CatalogPath is the bbolt database holding files, chunks, and backends.
	CatalogPath string `ini:"catalog_path"`

	// DefaultBackend is used by upload when no backend flag is given.
	DefaultBackend string `ini:"default_backend"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `ini:"log_level"`

	// Transfer settings
	Transfer TransferConfig
}

// TransferConfig contains settings for the chunk pipeline.
type TransferConfig struct {
	// ChunkSize is the plaintext chunk size in bytes.
	// Minimum: 1024, Maximum: 10485760, Default: 8388608
	ChunkSize int64 `ini:"chunk_size"`
}

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// DefaultCatalogPath returns the default path for the catalog database.
func DefaultCatalogPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "catalog.db"), nil
}

func configDir() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("%w: USERPROFILE environment variable not set", errs.ErrUsage)
		}
		return filepath.Join(userProfile, ".config", "discloud"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "discloud"), nil
}

// New creates an AppConfig with default values.
func New() *AppConfig {
	return &AppConfig{
		DefaultBackend: "discord_default",
		LogLevel:       "info",
		Transfer: TransferConfig{
			ChunkSize: constants.DefaultChunkSize,
		},
	}
}

// Load loads configuration from an INI file. A missing file yields the
// defaults and no error; an unreadable or malformed file is an error.
func Load(path string) (*AppConfig, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	main := iniFile.Section("discloud")
	cfg.CatalogPath = main.Key("catalog_path").MustString(cfg.CatalogPath)
	cfg.DefaultBackend = main.Key("default_backend").MustString(cfg.DefaultBackend)
	cfg.LogLevel = main.Key("log_level").MustString(cfg.LogLevel)

	transfer := iniFile.Section("discloud.transfer")
	cfg.Transfer.ChunkSize = transfer.Key("chunk_size").MustInt64(cfg.Transfer.ChunkSize)

	if cfg.Transfer.ChunkSize < constants.MinChunkSize || cfg.Transfer.ChunkSize > constants.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk_size %d outside [%d, %d]",
			errs.ErrConfigInvalid, cfg.Transfer.ChunkSize, constants.MinChunkSize, constants.MaxChunkSize)
	}

	return cfg, nil
}

// Save writes the configuration to an INI file, creating parent directories
// as needed. Uses a temp file plus rename for atomicity.
func Save(cfg *AppConfig, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	main, err := iniFile.NewSection("discloud")
	if err != nil {
		return fmt.Errorf("failed to create discloud section: %w", err)
	}
	main.Key("catalog_path").SetValue(cfg.CatalogPath)
	main.Key("default_backend").SetValue(cfg.DefaultBackend)
	main.Key("log_level").SetValue(cfg.LogLevel)

	transfer, err := iniFile.NewSection("discloud.transfer")
	if err != nil {
		return fmt.Errorf("failed to create transfer section: %w", err)
	}
	transfer.Key("chunk_size").SetValue(fmt.Sprintf("%d", cfg.Transfer.ChunkSize))

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// ResolveCatalogPath returns the configured catalog path, falling back to
// the default location. The parent directory is created when missing.
func (c *AppConfig) ResolveCatalogPath() (string, error) {
	path := c.CatalogPath
	if path == "" {
		var err error
		path, err = DefaultCatalogPath()
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("failed to create catalog directory: %w", err)
	}
	return path, nil
}

// BootstrapEnv is the environment contract for the bootstrap command.
type BootstrapEnv struct {
	BotToken  string
	ServerID  string
	ChannelID string
}

// LoadBootstrapEnv reads BOT_TOKEN, SERVER_ID, and CHANNEL_ID. All three
// must be set.
func LoadBootstrapEnv() (*BootstrapEnv, error) {
	env := &BootstrapEnv{
		BotToken:  os.Getenv("BOT_TOKEN"),
		ServerID:  os.Getenv("SERVER_ID"),
		ChannelID: os.Getenv("CHANNEL_ID"),
	}

	var missing []string
	if env.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if env.ServerID == "" {
		missing = append(missing, "SERVER_ID")
	}
	if env.ChannelID == "" {
		missing = append(missing, "CHANNEL_ID")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing environment variables: %v", errs.ErrUsage, missing)
	}
	return env, nil
}
