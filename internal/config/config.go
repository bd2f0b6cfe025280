package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	// Installation home every migrated path is relative to
	Home string `mapstructure:"home" json:"home"`

	// Product identification
	Product ProductConfig `mapstructure:"product" json:"product"`

	// Archive layout and encryption
	Archive ArchiveConfig `mapstructure:"archive" json:"archive"`

	// Property sources
	Properties PropertiesConfig `mapstructure:"properties" json:"properties"`

	// Restore limits
	Storage StorageConfig `mapstructure:"storage" json:"storage"`

	// Run history
	History HistoryConfig `mapstructure:"history" json:"history"`

	// Logging
	Log LogConfig `mapstructure:"log" json:"log"`

	// Configured file migratables
	Migratables []MigratableConfig `mapstructure:"migratables" json:"migratables,omitempty"`
}

// ProductConfig identifies the running product.
type ProductConfig struct {
	Version     string `mapstructure:"version" json:"version,omitempty"`           // Overrides VersionFile
	VersionFile string `mapstructure:"version_file" json:"version_file,omitempty"` // Relative to home
}

// ArchiveConfig controls where and how archives are written.
type ArchiveConfig struct {
	Dir            string `mapstructure:"dir" json:"dir"`         // Relative to home unless absolute
	Prefix         string `mapstructure:"prefix" json:"prefix"`   // File name prefix
	Encrypt        bool   `mapstructure:"encrypt" json:"encrypt"` // Encrypt entries
	KeySuffix      string `mapstructure:"key_suffix" json:"key_suffix"`
	ChecksumSuffix string `mapstructure:"checksum_suffix" json:"checksum_suffix"`
}

// PropertiesConfig configures the system property source.
type PropertiesConfig struct {
	SystemFile string `mapstructure:"system_file" json:"system_file"` // Relative to home
}

// StorageConfig for restored files.
type StorageConfig struct {
	MaxFileSize   int64 `mapstructure:"max_file_size" json:"max_file_size"`     // Max file size in bytes
	MaxPathLength int   `mapstructure:"max_path_length" json:"max_path_length"` // Max absolute path length
}

// HistoryConfig for the run history store.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Backend string `mapstructure:"backend" json:"backend"` // json, sqlite
	Path    string `mapstructure:"path" json:"path"`       // Relative to home unless absolute
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // text, json
	File   string `mapstructure:"file" json:"file"`     // Log file path (empty = stderr)
	Color  bool   `mapstructure:"color" json:"color"`   // Enable colored output
}

// MigratableConfig declares a file based migratable.
type MigratableConfig struct {
	ID               string               `mapstructure:"id" json:"id"`
	Version          string               `mapstructure:"version" json:"version"`
	Title            string               `mapstructure:"title" json:"title"`
	Description      string               `mapstructure:"description" json:"description,omitempty"`
	Organization     string               `mapstructure:"organization" json:"organization,omitempty"`
	Files            []string             `mapstructure:"files" json:"files,omitempty"`
	OptionalFiles    []string             `mapstructure:"optional_files" json:"optional_files,omitempty"`
	Directories      []DirectoryConfig    `mapstructure:"directories" json:"directories,omitempty"`
	SystemProperties []string             `mapstructure:"system_properties" json:"system_properties,omitempty"`
	JavaProperties   []JavaPropertyConfig `mapstructure:"java_properties" json:"java_properties,omitempty"`
}

// DirectoryConfig declares an exported directory.
type DirectoryConfig struct {
	Path    string   `mapstructure:"path" json:"path"`
	Include []string `mapstructure:"include" json:"include,omitempty"` // Glob patterns, filtered when set
}

// JavaPropertyConfig declares a property in a properties file referencing a file.
type JavaPropertyConfig struct {
	File     string `mapstructure:"file" json:"file"`
	Property string `mapstructure:"property" json:"property"`
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Home: ".",
		Product: ProductConfig{
			VersionFile: "Version.txt",
		},
		Archive: ArchiveConfig{
			Dir:            "exported",
			Prefix:         "exported",
			Encrypt:        true,
			KeySuffix:      ".key",
			ChecksumSuffix: ".checksum",
		},
		Properties: PropertiesConfig{
			SystemFile: filepath.Join("etc", "custom.system.properties"),
		},
		Storage: StorageConfig{
			MaxFileSize:   1024 * 1024 * 1024, // 1GB
			MaxPathLength: 4096,
		},
		History: HistoryConfig{
			Enabled: true,
			Backend: "json",
			Path:    filepath.Join("data", "migration"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
			Color:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Home) == "" {
		return errors.New("home is required")
	}

	if c.Product.Version == "" && c.Product.VersionFile == "" {
		return errors.New("product.version or product.version_file is required")
	}

	if c.Archive.Dir == "" {
		return errors.New("archive.dir is required")
	}

	if c.Archive.KeySuffix == "" || c.Archive.ChecksumSuffix == "" {
		return errors.New("archive.key_suffix and archive.checksum_suffix are required")
	}

	if c.Archive.KeySuffix == c.Archive.ChecksumSuffix {
		return errors.New("archive.key_suffix and archive.checksum_suffix must differ")
	}

	if c.Storage.MaxFileSize <= 0 {
		return errors.New("storage.max_file_size must be positive")
	}

	validBackends := map[string]bool{"json": true, "sqlite": true}
	if c.History.Enabled && !validBackends[c.History.Backend] {
		return fmt.Errorf("invalid history backend: %s", c.History.Backend)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	seen := make(map[string]bool)
	for i, m := range c.Migratables {
		if m.ID == "" {
			return fmt.Errorf("migratables[%d].id is required", i)
		}
		if strings.ContainsAny(m.ID, `/\`) {
			return fmt.Errorf("migratable id must not contain a path separator: %s", m.ID)
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate migratable id: %s", m.ID)
		}
		seen[m.ID] = true
		if m.Version == "" {
			return fmt.Errorf("migratables[%d].version is required", i)
		}
	}

	return nil
}

// ResolvePath resolves p against the configured home unless absolute.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Home, p)
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.ResolvePath(c.Archive.Dir),
	}

	if c.History.Enabled {
		dirs = append(dirs, c.ResolvePath(c.History.Path))
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
