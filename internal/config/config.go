// Package config loads and validates quarry configuration.
//
// Configuration is layered, in order of increasing precedence: hardcoded
// defaults, the project file (.quarry.yaml in the corpus root), then
// QUARRY_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete quarry configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Vector    VectorConfig    `yaml:"vector" json:"vector"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// PathsConfig configures which paths to include and exclude.
type PathsConfig struct {
	// Include restricts indexing to these directories (empty = whole root).
	Include []string `yaml:"include" json:"include"`
	// Exclude patterns are merged with the built-in defaults.
	Exclude []string `yaml:"exclude" json:"exclude"`
	// DataDir is where quarry keeps its cache and indexes,
	// relative to the corpus root.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// IndexConfig configures the lexical index builder.
type IndexConfig struct {
	// MinTokenLength drops tokens shorter than this during tokenization.
	MinTokenLength int `yaml:"min_token_length" json:"min_token_length"`
	// LengthNormalize divides document scores by token count.
	LengthNormalize bool `yaml:"length_normalize" json:"length_normalize"`
	// SnippetLength is the stored result-snippet size in characters.
	SnippetLength int `yaml:"snippet_length" json:"snippet_length"`
	// HashWorkers bounds concurrent content hashing during change detection.
	HashWorkers int `yaml:"hash_workers" json:"hash_workers"`
	// MaxFileSizeKB skips documents larger than this.
	MaxFileSizeKB int `yaml:"max_file_size_kb" json:"max_file_size_kb"`
}

// VectorConfig configures the vector sub-index.
type VectorConfig struct {
	// Enabled turns the vector sub-index on.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Dimensions is the embedding dimensionality.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// CacheSize is the embedding LRU capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// SearchConfig configures query behavior.
type SearchConfig struct {
	// DefaultLimit applies when a query sets no limit.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	// MaxLimit caps any requested limit.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`
}

// WatchConfig configures the filesystem watcher.
type WatchConfig struct {
	// Enabled starts the watcher in serve mode.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Debounce is the event-coalescing window (e.g. "200ms").
	Debounce string `yaml:"debounce" json:"debounce"`
}

// TelemetryConfig configures query metrics recording.
type TelemetryConfig struct {
	// Enabled turns on the SQLite metrics store.
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/.quarry/**",
	"**/.quarry.yaml",
	"**/.quarry.yml",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// DefaultDataDir is the per-project data directory name.
const DefaultDataDir = ".quarry"

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
			DataDir: DefaultDataDir,
		},
		Index: IndexConfig{
			MinTokenLength:  2,
			LengthNormalize: false,
			SnippetLength:   160,
			HashWorkers:     runtime.NumCPU(),
			MaxFileSizeKB:   1024,
		},
		Vector: VectorConfig{
			Enabled:    true,
			Dimensions: 256,
			CacheSize:  1000,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxLimit:     100,
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: "200ms",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// Load loads configuration for the given corpus root.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. Project config (.quarry.yaml / .quarry.yml in root)
//  3. Environment variables (QUARRY_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .quarry.yaml or .quarry.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".quarry.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".quarry.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}

	if other.Index.MinTokenLength != 0 {
		c.Index.MinTokenLength = other.Index.MinTokenLength
	}
	if other.Index.LengthNormalize {
		c.Index.LengthNormalize = true
	}
	if other.Index.SnippetLength != 0 {
		c.Index.SnippetLength = other.Index.SnippetLength
	}
	if other.Index.HashWorkers != 0 {
		c.Index.HashWorkers = other.Index.HashWorkers
	}
	if other.Index.MaxFileSizeKB != 0 {
		c.Index.MaxFileSizeKB = other.Index.MaxFileSizeKB
	}

	// Vector.Enabled defaults true; a file that sets any vector field is
	// taken as authoritative for the flag too.
	if other.Vector.Dimensions != 0 || other.Vector.CacheSize != 0 || other.Vector.Enabled {
		c.Vector.Enabled = other.Vector.Enabled
	}
	if other.Vector.Dimensions != 0 {
		c.Vector.Dimensions = other.Vector.Dimensions
	}
	if other.Vector.CacheSize != 0 {
		c.Vector.CacheSize = other.Vector.CacheSize
	}

	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}

	if other.Watch.Enabled {
		c.Watch.Enabled = true
	}
	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}

	if other.Telemetry.Enabled {
		c.Telemetry.Enabled = true
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies QUARRY_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("QUARRY_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("QUARRY_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("QUARRY_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("QUARRY_VECTOR_ENABLED"); v != "" {
		c.Vector.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("QUARRY_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.DefaultLimit = n
		}
	}
	if v := os.Getenv("QUARRY_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Index.MinTokenLength < 1 {
		return fmt.Errorf("index.min_token_length must be at least 1, got %d", c.Index.MinTokenLength)
	}
	if c.Index.SnippetLength < 0 {
		return fmt.Errorf("index.snippet_length must be non-negative, got %d", c.Index.SnippetLength)
	}
	if c.Index.MaxFileSizeKB < 1 {
		return fmt.Errorf("index.max_file_size_kb must be positive, got %d", c.Index.MaxFileSizeKB)
	}

	if c.Vector.Enabled && c.Vector.Dimensions < 1 {
		return fmt.Errorf("vector.dimensions must be positive, got %d", c.Vector.Dimensions)
	}

	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit (%d) must be at least search.default_limit (%d)",
			c.Search.MaxLimit, c.Search.DefaultLimit)
	}

	if c.Server.Transport != "" && !strings.EqualFold(c.Server.Transport, "stdio") {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// DataDir returns the absolute data directory for a corpus root.
func (c *Config) DataDir(root string) string {
	if filepath.IsAbs(c.Paths.DataDir) {
		return c.Paths.DataDir
	}
	return filepath.Join(root, c.Paths.DataDir)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FindProjectRoot finds the corpus root directory.
// It looks for a .git directory or .quarry.yaml/.yml file by walking up
// the directory tree, falling back to the starting directory.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		if fileExists(filepath.Join(currentDir, ".quarry.yaml")) ||
			fileExists(filepath.Join(currentDir, ".quarry.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
