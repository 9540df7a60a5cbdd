// Package config provides configuration loading and structs for the Shiraberu server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Search     SearchConfig     `yaml:"search"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database, uploaded files, and indices.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	UploadDir        string `yaml:"upload_dir"`
	IndexPath        string `yaml:"index_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// EmbeddingConfig holds embedding provider settings.
// Provider is one of "gemini", "onnx", or "mock". ModelPath and MaxTokens
// apply to the onnx provider only.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
	ModelPath  string `yaml:"model_path"`
	MaxTokens  int    `yaml:"max_tokens"`
}

// GenerationConfig holds LLM text generation settings (summaries, explanations).
type GenerationConfig struct {
	Model string `yaml:"model"`
}

// IngestConfig holds upload validation and chunking settings.
type IngestConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	MaxFileSize  int64    `yaml:"max_file_size"`
	AllowedTypes []string `yaml:"allowed_types"`
}

// SearchConfig holds retrieval defaults.
type SearchConfig struct {
	DefaultK         int     `yaml:"default_k"`
	MaxK             int     `yaml:"max_k"`
	DefaultThreshold float64 `yaml:"default_threshold"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. A .env file in the working directory is loaded first so that
// GEMINI_API_KEY can live outside the YAML. Returns an error if the config
// file cannot be read or parsed.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Watch.Dir != "" {
		cfg.Watch.Dir = expandPath(cfg.Watch.Dir, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// GeminiAPIKey returns the Gemini API key from the environment.
// An empty string means no key is configured.
func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
