// Package config loads stayhub configuration from built-in defaults, an
// optional YAML file and the environment, in increasing precedence.
//
// Environment variables map to keys by splitting on the first underscore:
//
//	MONGO_URI            -> mongo.uri
//	SEARCH_EMBED_TIMEOUT -> search.embed_timeout
//	INDEX_QDRANT_ADDR    -> index.qdrant_addr
//
// Variables whose first segment is not a known section are ignored.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// PathEnv names the variable holding the YAML config file path.
const PathEnv = "STAYHUB_CONFIG"

const maxConfigFileSize = 1024 * 1024

// Index backends.
const (
	BackendQdrant = "qdrant"
	BackendAtlas  = "atlas"
	BackendMemory = "memory"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

const defaults = `
server:
  addr: ":8080"
  public_url: "http://localhost:3000"
  cors_origin: "*"
  shutdown_timeout: 10s
  rate_limit: 20
  rate_burst: 40
mongo:
  uri: "mongodb://localhost:27017"
  database: "stayhub"
embed:
  provider: "openai"
  model: ""
  cache_size: 1024
  breaker_threshold: 5
  breaker_timeout: 30s
index:
  backend: "qdrant"
  qdrant_addr: "localhost:6334"
  collection: "hotels"
  dims: 1536
  atlas_index: "vector_index"
  reindex_interval: 10m
  embed_rate: 5
  batch_size: 16
search:
  embed_timeout: 5s
  search_timeout: 5s
  fallback_to_browse: false
nats:
  url: "nats://localhost:4222"
auth:
  issuer: ""
assistant:
  model: "gpt-4o"
  timeout: 60s
metrics:
  addr: ":9090"
log:
  level: "info"
`

// Config is the full stayhub configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Mongo     MongoConfig     `koanf:"mongo"`
	Embed     EmbedConfig     `koanf:"embed"`
	Index     IndexConfig     `koanf:"index"`
	Search    SearchConfig    `koanf:"search"`
	NATS      NATSConfig      `koanf:"nats"`
	Auth      AuthConfig      `koanf:"auth"`
	Stripe    StripeConfig    `koanf:"stripe"`
	Assistant AssistantConfig `koanf:"assistant"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	PublicURL       string        `koanf:"public_url"`
	CORSOrigin      string        `koanf:"cors_origin"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// RateLimit is requests per second allowed per client IP. 0 disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// MongoConfig locates the document store.
type MongoConfig struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

// EmbedConfig selects the embedding provider.
type EmbedConfig struct {
	Provider         string        `koanf:"provider"`
	BaseURL          string        `koanf:"base_url"`
	Model            string        `koanf:"model"`
	APIKey           string        `koanf:"api_key"`
	CacheSize        int           `koanf:"cache_size"`
	BreakerThreshold int           `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// IndexConfig selects and tunes the vector index.
type IndexConfig struct {
	Backend         string        `koanf:"backend"`
	QdrantAddr      string        `koanf:"qdrant_addr"`
	Collection      string        `koanf:"collection"`
	Dims            int           `koanf:"dims"`
	AtlasIndex      string        `koanf:"atlas_index"`
	ReindexInterval time.Duration `koanf:"reindex_interval"`
	// EmbedRate is embedding requests per second during reindex.
	EmbedRate float64 `koanf:"embed_rate"`
	BatchSize int     `koanf:"batch_size"`
}

// SearchConfig tunes the search orchestrator.
type SearchConfig struct {
	EmbedTimeout     time.Duration `koanf:"embed_timeout"`
	SearchTimeout    time.Duration `koanf:"search_timeout"`
	FallbackToBrowse bool          `koanf:"fallback_to_browse"`
}

// NATSConfig locates the message bus. An empty URL disables events.
type NATSConfig struct {
	URL string `koanf:"url"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret    string `koanf:"jwt_secret"`
	PublicKeyPEM string `koanf:"public_key_pem"`
	Issuer       string `koanf:"issuer"`
}

// StripeConfig holds payment credentials. An empty key disables payments.
type StripeConfig struct {
	SecretKey string `koanf:"secret_key"`
}

// AssistantConfig configures the chat model. An empty key disables it.
type AssistantConfig struct {
	APIKey  string        `koanf:"api_key"`
	Model   string        `koanf:"model"`
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// MetricsConfig configures the standalone metrics listener.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `koanf:"level"`
}

// SlogLevel parses Level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

var sections = map[string]bool{
	"server": true, "mongo": true, "embed": true, "index": true, "search": true,
	"nats": true, "auth": true, "stripe": true, "assistant": true, "metrics": true, "log": true,
}

// envKey maps SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	parts := strings.SplitN(strings.ToLower(s), "_", 2)
	if len(parts) != 2 || !sections[parts[0]] {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// Load reads configuration. path names a YAML file; empty falls back to
// $STAYHUB_CONFIG, and no file at all is fine.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaults)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		content, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config: %s is larger than %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return content, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr is required")
	}
	if c.Mongo.URI == "" {
		return invalid("mongo.uri is required")
	}
	if c.Mongo.Database == "" {
		return invalid("mongo.database is required")
	}
	switch c.Embed.Provider {
	case "ollama":
		if c.Embed.BaseURL == "" {
			return invalid("embed.base_url is required for ollama")
		}
	case "openai":
		if c.Embed.APIKey == "" {
			return invalid("embed.api_key is required for openai")
		}
	default:
		return invalid("embed.provider %q is not one of ollama, openai", c.Embed.Provider)
	}
	switch c.Index.Backend {
	case BackendQdrant:
		if c.Index.QdrantAddr == "" {
			return invalid("index.qdrant_addr is required for qdrant")
		}
		if c.Index.Dims <= 0 {
			return invalid("index.dims must be positive")
		}
	case BackendAtlas, BackendMemory:
	default:
		return invalid("index.backend %q is not one of qdrant, atlas, memory", c.Index.Backend)
	}
	if c.Search.EmbedTimeout <= 0 || c.Search.SearchTimeout <= 0 {
		return invalid("search timeouts must be positive")
	}
	if c.Auth.JWTSecret == "" && c.Auth.PublicKeyPEM == "" {
		return invalid("auth.jwt_secret or auth.public_key_pem is required")
	}
	if c.Server.RateLimit < 0 {
		return invalid("server.rate_limit must not be negative")
	}
	return nil
}
