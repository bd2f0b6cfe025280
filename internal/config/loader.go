package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envPrefix:  "MIGRATOR",
	}
}

// Load reads configuration from file and environment.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()

	// Start with defaults
	defaults := DefaultConfig()
	l.setDefaults(v, defaults)

	// Environment overrides, e.g. MIGRATOR_LOG_LEVEL
	v.SetEnvPrefix(l.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		v.SetConfigName("migrator")
		for _, dir := range l.defaultPaths() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config file %s: %w", v.ConfigFileUsed(), err)
			}
		}
	}

	cfg := defaults
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	// Validate final config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ConfigFile returns the explicit config path, if any.
func (l *Loader) ConfigFile() string {
	return l.configPath
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(homeDir, ".config", "migrator"),
			filepath.Join(homeDir, ".migrator"),
		)
	}

	return paths
}

// setDefaults registers every scalar key so environment overrides apply.
func (l *Loader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("home", cfg.Home)
	v.SetDefault("product.version", cfg.Product.Version)
	v.SetDefault("product.version_file", cfg.Product.VersionFile)
	v.SetDefault("archive.dir", cfg.Archive.Dir)
	v.SetDefault("archive.prefix", cfg.Archive.Prefix)
	v.SetDefault("archive.encrypt", cfg.Archive.Encrypt)
	v.SetDefault("archive.key_suffix", cfg.Archive.KeySuffix)
	v.SetDefault("archive.checksum_suffix", cfg.Archive.ChecksumSuffix)
	v.SetDefault("properties.system_file", cfg.Properties.SystemFile)
	v.SetDefault("storage.max_file_size", cfg.Storage.MaxFileSize)
	v.SetDefault("storage.max_path_length", cfg.Storage.MaxPathLength)
	v.SetDefault("history.enabled", cfg.History.Enabled)
	v.SetDefault("history.backend", cfg.History.Backend)
	v.SetDefault("history.path", cfg.History.Path)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.color", cfg.Log.Color)
}

// SaveExample writes an example config file.
func SaveExample(path string) error {
	cfg := DefaultConfig()
	cfg.Migratables = []MigratableConfig{
		{
			ID:          "catalog-config",
			Version:     "1.0",
			Title:       "Catalog configuration",
			Description: "Exports catalog configuration files",
			Files:       []string{filepath.Join("etc", "catalog.config")},
			Directories: []DirectoryConfig{
				{Path: filepath.Join("etc", "catalog"), Include: []string{"*.xml"}},
			},
		},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := renameio.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
