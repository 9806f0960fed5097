package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Default tuning values applied when the corresponding config field is
// zero.
const (
	// DefaultRetentionDays is how long low-value memories survive before
	// the retention sweep may remove them.
	DefaultRetentionDays = 90

	// DefaultProviderTimeout bounds individual embedding and index calls.
	DefaultProviderTimeout = 8 * time.Second
)

// Config contains the complete configuration for a tiermem client.
//
// It includes settings for:
//   - Embedding provider (for vector generation)
//   - Vector index (for semantic search)
//   - Record store (for durable entries, preferences, sessions, profiles)
//   - Retention policy (for sweeping stale low-value memories)
//
// Example:
//
//	config := &core.Config{
//	    Embedder: core.EmbedderConfig{
//	        Provider:   "openai",
//	        APIKey:     "sk-...",
//	        Model:      "text-embedding-3-small",
//	        Dimensions: 768,
//	    },
//	    Index: core.IndexConfig{
//	        Provider: "chromem",
//	        Path:     "./tiermem.index",
//	    },
//	    RecordStore: core.RecordStoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./tiermem.db",
//	        },
//	    },
//	}
type Config struct {
	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// Index contains vector index configuration.
	Index IndexConfig `json:"index"`

	// RecordStore contains record store configuration.
	RecordStore RecordStoreConfig `json:"record_store"`

	// Retention contains retention sweep configuration (optional).
	Retention RetentionConfig `json:"retention,omitempty"`

	// ProviderTimeout bounds individual embedding and index calls.
	// Defaults to DefaultProviderTimeout when zero.
	ProviderTimeout time.Duration `json:"provider_timeout,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai, mock
type EmbedderConfig struct {
	// Provider is the embedding provider name (openai, mock).
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key"`

	// Model is the embedding model name (e.g., "text-embedding-3-small").
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors (e.g., 768, 1536).
	Dimensions int `json:"dimensions,omitempty"`
}

// IndexConfig contains configuration for the vector index.
//
// Supported providers: chromem
type IndexConfig struct {
	// Provider is the vector index provider name (chromem).
	Provider string `json:"provider"`

	// Path enables on-disk persistence when non-empty.
	Path string `json:"path,omitempty"`

	// Compress gob-compresses persisted collections.
	Compress bool `json:"compress,omitempty"`
}

// RecordStoreConfig contains configuration for the record store.
//
// Supported providers: sqlite, postgres, mysql
type RecordStoreConfig struct {
	// Provider is the record store provider name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path
	// For PostgreSQL: host, port, user, password, db_name, ssl_mode
	// For MySQL: host, port, user, password, db_name
	Config map[string]interface{} `json:"config"`
}

// RetentionConfig controls the retention sweep. A memory is removed only
// when it is older than Days, its importance is below MinImportance and
// it was accessed fewer than MinAccessCount times.
type RetentionConfig struct {
	// Days is the minimum age before a memory is eligible for removal.
	// Defaults to DefaultRetentionDays when zero.
	Days int `json:"days,omitempty"`

	// MinImportance is the importance below which old memories may be
	// removed. Defaults to 0.3 when zero.
	MinImportance float64 `json:"min_importance,omitempty"`

	// MinAccessCount is the access count below which old memories may be
	// removed. Defaults to 2 when zero.
	MinAccessCount int `json:"min_access_count,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, mysql)
//   - SQLITE_PATH
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, etc.
//   - INDEX_PATH, INDEX_COMPRESS
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_BASE_URL
//   - RETENTION_DAYS
//
// Returns a Config instance, or an error if loading fails.
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	recordStoreConfig := make(map[string]interface{})

	switch provider {
	case "sqlite":
		recordStoreConfig = map[string]interface{}{
			"db_path": getEnvOrDefault("SQLITE_PATH", "./tiermem.db"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))

		recordStoreConfig = map[string]interface{}{
			"host":     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":     port,
			"user":     getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password": os.Getenv("POSTGRES_PASSWORD"),
			"db_name":  getEnvOrDefault("POSTGRES_DATABASE", "tiermem"),
			"ssl_mode": getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))

		recordStoreConfig = map[string]interface{}{
			"host":     getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":     port,
			"user":     getEnvOrDefault("MYSQL_USER", "root"),
			"password": os.Getenv("MYSQL_PASSWORD"),
			"db_name":  getEnvOrDefault("MYSQL_DATABASE", "tiermem"),
		}
	}

	embedderProvider := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
	embedderModel := os.Getenv("EMBEDDING_MODEL")

	var embedderBaseURL string
	switch embedderProvider {
	case "openai":
		embedderBaseURL = os.Getenv("OPENAI_EMBEDDING_BASE_URL")
		if embedderModel == "" {
			embedderModel = "text-embedding-3-small"
		}
	default:
		embedderBaseURL = os.Getenv("EMBEDDING_BASE_URL")
	}

	dims, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMENSIONS", "768"))
	retentionDays, _ := strconv.Atoi(getEnvOrDefault("RETENTION_DAYS", strconv.Itoa(DefaultRetentionDays)))

	config := &Config{
		Embedder: EmbedderConfig{
			Provider:   embedderProvider,
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      embedderModel,
			BaseURL:    embedderBaseURL,
			Dimensions: dims,
		},
		Index: IndexConfig{
			Provider: getEnvOrDefault("INDEX_PROVIDER", "chromem"),
			Path:     os.Getenv("INDEX_PATH"),
			Compress: os.Getenv("INDEX_COMPRESS") == "true",
		},
		RecordStore: RecordStoreConfig{
			Provider: provider,
			Config:   recordStoreConfig,
		},
		Retention: RetentionConfig{
			Days: retentionDays,
		},
	}

	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
//
// Parameters:
//   - envPath: Path to the .env file
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that all required provider fields are set. Returns an error if
// validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.Embedder.Provider == "" {
		return NewError("Validate", ErrInvalidConfig)
	}
	if c.Index.Provider == "" {
		return NewError("Validate", ErrInvalidConfig)
	}
	if c.RecordStore.Provider == "" {
		return NewError("Validate", ErrInvalidConfig)
	}
	return nil
}

// retentionDays returns the configured retention age with defaults applied.
func (c *Config) retentionDays() int {
	if c.Retention.Days > 0 {
		return c.Retention.Days
	}
	return DefaultRetentionDays
}

// providerTimeout returns the configured provider timeout with defaults
// applied.
func (c *Config) providerTimeout() time.Duration {
	if c.ProviderTimeout > 0 {
		return c.ProviderTimeout
	}
	return DefaultProviderTimeout
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
