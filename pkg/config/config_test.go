package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalEnv sets the fields that have no usable default.
func minimalEnv(t *testing.T) {
	t.Helper()
	t.Setenv(PathEnv, "")
	t.Setenv("EMBED_API_KEY", "sk-test")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stayhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	minimalEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "stayhub", cfg.Mongo.Database)
	assert.Equal(t, "openai", cfg.Embed.Provider)
	assert.Equal(t, BackendQdrant, cfg.Index.Backend)
	assert.Equal(t, 1536, cfg.Index.Dims)
	assert.Equal(t, 10*time.Minute, cfg.Index.ReindexInterval)
	assert.Equal(t, 5*time.Second, cfg.Search.EmbedTimeout)
	assert.Equal(t, 5*time.Second, cfg.Search.SearchTimeout)
	assert.False(t, cfg.Search.FallbackToBrowse)
	assert.Equal(t, "gpt-4o", cfg.Assistant.Model)
	assert.Equal(t, "sk-test", cfg.Embed.APIKey)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	minimalEnv(t)
	path := writeYAML(t, `
server:
  addr: ":9999"
index:
  backend: memory
search:
  embed_timeout: 2s
  fallback_to_browse: true
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Index.Backend)
	assert.Equal(t, 2*time.Second, cfg.Search.EmbedTimeout)
	assert.True(t, cfg.Search.FallbackToBrowse)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
	assert.Equal(t, 5*time.Second, cfg.Search.SearchTimeout, "unset keys keep defaults")
}

func TestLoadPathFromEnv(t *testing.T) {
	minimalEnv(t)
	path := writeYAML(t, "mongo:\n  database: from_file\n")
	t.Setenv(PathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from_file", cfg.Mongo.Database)
}

func TestEnvOverridesYAML(t *testing.T) {
	minimalEnv(t)
	path := writeYAML(t, "mongo:\n  uri: mongodb://file:27017\n")
	t.Setenv("MONGO_URI", "mongodb://env:27017")
	t.Setenv("SEARCH_EMBED_TIMEOUT", "750ms")
	t.Setenv("INDEX_QDRANT_ADDR", "qdrant:6334")
	t.Setenv("SEARCH_FALLBACK_TO_BROWSE", "true")
	t.Setenv("SERVER_RATE_LIMIT", "2.5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://env:27017", cfg.Mongo.URI)
	assert.Equal(t, 750*time.Millisecond, cfg.Search.EmbedTimeout)
	assert.Equal(t, "qdrant:6334", cfg.Index.QdrantAddr)
	assert.True(t, cfg.Search.FallbackToBrowse)
	assert.InDelta(t, 2.5, cfg.Server.RateLimit, 1e-9)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"MONGO_URI":            "mongo.uri",
		"SEARCH_EMBED_TIMEOUT": "search.embed_timeout",
		"AUTH_PUBLIC_KEY_PEM":  "auth.public_key_pem",
		"PATH":                 "",
		"HOME_DIR":             "",
		"STAYHUB_CONFIG":       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestLoadMissingFile(t *testing.T) {
	minimalEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	minimalEnv(t)
	_, err := Load(writeYAML(t, "server: [unterminated"))
	require.Error(t, err)
}

func TestLoadValidationFailure(t *testing.T) {
	minimalEnv(t)
	t.Setenv("EMBED_API_KEY", "")

	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "embed.api_key")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	minimalEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"ok", func(*Config) {}, ""},
		{"no addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"no mongo uri", func(c *Config) { c.Mongo.URI = "" }, "mongo.uri"},
		{"no database", func(c *Config) { c.Mongo.Database = "" }, "mongo.database"},
		{"bad provider", func(c *Config) { c.Embed.Provider = "cohere" }, "embed.provider"},
		{"ollama without url", func(c *Config) { c.Embed.Provider = "ollama"; c.Embed.BaseURL = "" }, "embed.base_url"},
		{"ollama ok", func(c *Config) { c.Embed.Provider = "ollama"; c.Embed.BaseURL = "http://ollama:11434" }, ""},
		{"bad backend", func(c *Config) { c.Index.Backend = "pinecone" }, "index.backend"},
		{"qdrant without addr", func(c *Config) { c.Index.QdrantAddr = "" }, "index.qdrant_addr"},
		{"qdrant zero dims", func(c *Config) { c.Index.Dims = 0 }, "index.dims"},
		{"atlas ignores qdrant", func(c *Config) { c.Index.Backend = BackendAtlas; c.Index.QdrantAddr = "" }, ""},
		{"zero timeout", func(c *Config) { c.Search.EmbedTimeout = 0 }, "search timeouts"},
		{"no auth", func(c *Config) { c.Auth.JWTSecret = "" }, "auth"},
		{"public key only", func(c *Config) { c.Auth.JWTSecret = ""; c.Auth.PublicKeyPEM = "pem" }, ""},
		{"negative rate", func(c *Config) { c.Server.RateLimit = -1 }, "rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSlogLevelFallback(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "loud"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "warn"}.SlogLevel())
}
