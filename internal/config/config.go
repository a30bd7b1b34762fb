package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration.
type Config struct {
	General  GeneralConfig  `toml:"general"`
	Account  AccountConfig  `toml:"account"`
	Services ServicesConfig `toml:"services"`
	History  HistoryConfig  `toml:"history"`
	Logging  LoggingConfig  `toml:"logging"`
	Storage  StorageConfig  `toml:"storage"`
	Plugins  PluginsConfig  `toml:"plugins"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	DataDir     string `toml:"data_dir"`
	AutoConnect bool   `toml:"auto_connect"`
}

// AccountConfig contains the account settings.
type AccountConfig struct {
	JID      string `toml:"jid"`
	Password string `toml:"password"`
	Server   string `toml:"server"`
	Port     int    `toml:"port"`
	Resource string `toml:"resource"`
	Nickname string `toml:"nickname"`
}

// ServicesConfig overrides the well-known service domains derived from the
// account domain.
type ServicesConfig struct {
	// Conference is the group chat service domain. Defaults to
	// "conference." + account domain.
	Conference string `toml:"conference"`

	// Upload is the file upload service domain. Defaults to
	// "upload." + account domain.
	Upload string `toml:"upload"`
}

// HistoryConfig controls archived message retrieval.
type HistoryConfig struct {
	// PageSize is the number of messages requested per history page.
	PageSize int `toml:"page_size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level   string `toml:"level"`
	File    string `toml:"file"`
	Console bool   `toml:"console"`
}

// StorageConfig contains local cache settings.
type StorageConfig struct {
	// SaveMessages enables/disables the local message cache.
	SaveMessages bool `toml:"save_messages"`

	// MaxMessageSize is the maximum size of a message to cache (in bytes).
	MaxMessageSize int `toml:"max_message_size"`
}

// PluginsConfig contains notifier plugin settings.
type PluginsConfig struct {
	Enabled   bool   `toml:"enabled"`
	PluginDir string `toml:"plugin_dir"`
}

// Paths holds the XDG-compliant paths for the application.
type Paths struct {
	ConfigDir string
	DataDir   string
	CacheDir  string
}

const appDirName = "xmpp-chat"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			AutoConnect: true,
		},
		Account: AccountConfig{
			Port:     5222,
			Resource: "web",
		},
		History: HistoryConfig{
			PageSize: 50,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: false,
		},
		Storage: StorageConfig{
			SaveMessages:   true,
			MaxMessageSize: 1024 * 1024,
		},
	}
}

// GetPaths returns XDG-compliant paths for the application.
func GetPaths() (*Paths, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	configDir = filepath.Join(configDir, appDirName)

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	dataDir = filepath.Join(dataDir, appDirName)

	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	cacheDir = filepath.Join(cacheDir, appDirName)

	return &Paths{ConfigDir: configDir, DataDir: dataDir, CacheDir: cacheDir}, nil
}

// EnsureDirectories creates the necessary directories.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ConfigDir, p.DataDir, p.CacheDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Load loads the configuration from the config file, falling back to
// defaults when the file does not exist.
func Load() (*Config, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, err
	}

	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	configPath := filepath.Join(paths.ConfigDir, "config.toml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		applyPathDefaults(cfg, paths)
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.General.DataDir != "" {
		cfg.General.DataDir = expandPath(cfg.General.DataDir)
	}
	if cfg.Logging.File != "" {
		cfg.Logging.File = expandPath(cfg.Logging.File)
	}
	if cfg.Plugins.PluginDir != "" {
		cfg.Plugins.PluginDir = expandPath(cfg.Plugins.PluginDir)
	}
	applyPathDefaults(cfg, paths)

	return cfg, nil
}

func applyPathDefaults(cfg *Config, paths *Paths) {
	if cfg.General.DataDir == "" {
		cfg.General.DataDir = paths.DataDir
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.General.DataDir, "chat.log")
	}
	if cfg.Plugins.PluginDir == "" {
		cfg.Plugins.PluginDir = filepath.Join(cfg.General.DataDir, "plugins")
	}
}

// Save saves the configuration to the config file.
func Save(cfg *Config) error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}

	configPath := filepath.Join(paths.ConfigDir, "config.toml")
	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
