package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tiermem "github.com/tiermem/tiermem-go/pkg/core"
)

func TestLoadConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
	}{
		{
			name: "sqlite with mock embedder",
			envVars: map[string]string{
				"DATABASE_PROVIDER":  "sqlite",
				"SQLITE_PATH":        "./test.db",
				"EMBEDDING_PROVIDER": "mock",
			},
		},
		{
			name: "postgres with openai embedder",
			envVars: map[string]string{
				"DATABASE_PROVIDER":  "postgres",
				"POSTGRES_HOST":      "localhost",
				"POSTGRES_USER":      "postgres",
				"POSTGRES_DATABASE":  "tiermem",
				"EMBEDDING_PROVIDER": "openai",
				"EMBEDDING_API_KEY":  "test-key",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				_ = os.Setenv(k, v)
			}
			defer func() {
				for k := range tt.envVars {
					_ = os.Unsetenv(k)
				}
			}()

			config, err := tiermem.LoadConfigFromEnv()
			require.NoError(t, err)
			require.NotNil(t, config)

			assert.Equal(t, tt.envVars["DATABASE_PROVIDER"], config.RecordStore.Provider)
			assert.Equal(t, tt.envVars["EMBEDDING_PROVIDER"], config.Embedder.Provider)
			assert.Equal(t, "chromem", config.Index.Provider)
		})
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	config, err := tiermem.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", config.RecordStore.Provider)
	assert.Equal(t, tiermem.DefaultRetentionDays, config.Retention.Days)
	assert.Equal(t, 768, config.Embedder.Dimensions)
}

func TestLoadConfigFromEnv_OpenAIModelDefault(t *testing.T) {
	_ = os.Setenv("EMBEDDING_PROVIDER", "openai")
	defer os.Unsetenv("EMBEDDING_PROVIDER")

	config, err := tiermem.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", config.Embedder.Model)
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"embedder": {"provider": "mock", "dimensions": 256},
		"index": {"provider": "chromem"},
		"record_store": {"provider": "sqlite", "config": {"db_path": "./test.db"}},
		"retention": {"days": 30}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config, err := tiermem.LoadConfigFromJSON(path)
	require.NoError(t, err)

	assert.Equal(t, "mock", config.Embedder.Provider)
	assert.Equal(t, 256, config.Embedder.Dimensions)
	assert.Equal(t, 30, config.Retention.Days)
	assert.Equal(t, "./test.db", config.RecordStore.Config["db_path"])
}

func TestLoadConfigFromJSON_Missing(t *testing.T) {
	_, err := tiermem.LoadConfigFromJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := &tiermem.Config{
		Embedder:    tiermem.EmbedderConfig{Provider: "mock"},
		Index:       tiermem.IndexConfig{Provider: "chromem"},
		RecordStore: tiermem.RecordStoreConfig{Provider: "sqlite"},
	}
	assert.NoError(t, valid.Validate())

	noEmbedder := &tiermem.Config{
		Index:       tiermem.IndexConfig{Provider: "chromem"},
		RecordStore: tiermem.RecordStoreConfig{Provider: "sqlite"},
	}
	assert.ErrorIs(t, noEmbedder.Validate(), tiermem.ErrInvalidConfig)
}
