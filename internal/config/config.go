package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v2"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Vector     VectorConfig     `yaml:"vector"`
	Chain      ChainConfig      `yaml:"chain"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Classifier ClassifierConfig `yaml:"classifier"`
	IPFS       IPFSConfig       `yaml:"ipfs"`
	Queue      QueueConfig      `yaml:"queue"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	OAuth      OAuthConfig      `yaml:"oauth"`
	CORS       CORSConfig       `yaml:"cors"`
	Stream     StreamConfig     `yaml:"stream"`
}

type ServerConfig struct {
	Port         string   `yaml:"port"`
	Env          string   `yaml:"env"`
	Version      string   `yaml:"version"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
	BaseURL      string   `yaml:"base_url"`
	APIKeys      []string `yaml:"api_keys"`
}

type PostgresConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type VectorConfig struct {
	Host       string  `yaml:"host"`
	Port       int     `yaml:"port"`
	APIKey     string  `yaml:"api_key"`
	Collection string  `yaml:"collection"`
	TimeoutMs  int     `yaml:"timeout_ms"`
	MinScore   float64 `yaml:"min_score"`
}

type ChainConfig struct {
	IndexerURL string `yaml:"indexer_url"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

type EmbedderConfig struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type ClassifierConfig struct {
	PrimaryURL   string `yaml:"primary_url"`
	FallbackURL  string `yaml:"fallback_url"`
	APIKey       string `yaml:"api_key"`
	ModelVersion string `yaml:"model_version"`
}

type IPFSConfig struct {
	GatewayURL string `yaml:"gateway_url"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

type QueueConfig struct {
	URL string `yaml:"url"`
}

type RateLimitConfig struct {
	AnonymousPerMinute     int `yaml:"anonymous_per_minute"`
	AuthenticatedPerMinute int `yaml:"authenticated_per_minute"`
	MutationPerMinute      int `yaml:"mutation_per_minute"`
}

type OAuthConfig struct {
	Issuer          string `yaml:"issuer"`
	CodeTTLSeconds  int    `yaml:"code_ttl_seconds"`
	TokenTTLSeconds int    `yaml:"token_ttl_seconds"`
	RefreshTTLDays  int    `yaml:"refresh_ttl_days"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StreamConfig struct {
	HeartbeatSeconds   int `yaml:"heartbeat_seconds"`
	MaxDurationSeconds int `yaml:"max_duration_seconds"`
}

// LoadConfig reads the YAML file at path and applies environment overrides.
// A missing file is not an error; defaults plus environment apply.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			decoder := yaml.NewDecoder(f)
			err = decoder.Decode(cfg)
			f.Close()
			if err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		c.Vector.Host = v
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Vector.Port = p
		}
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		c.Vector.APIKey = v
	}
	if v := os.Getenv("CHAIN_INDEXER_URL"); v != "" {
		c.Chain.IndexerURL = v
	}
	if v := os.Getenv("EMBEDDER_URL"); v != "" {
		c.Embedder.URL = v
	}
	if v := os.Getenv("EMBEDDER_API_KEY"); v != "" {
		c.Embedder.APIKey = v
	}
	if v := os.Getenv("CLASSIFIER_PRIMARY_URL"); v != "" {
		c.Classifier.PrimaryURL = v
	}
	if v := os.Getenv("CLASSIFIER_FALLBACK_URL"); v != "" {
		c.Classifier.FallbackURL = v
	}
	if v := os.Getenv("IPFS_GATEWAY_URL"); v != "" {
		c.IPFS.GatewayURL = v
	}
	if v := os.Getenv("CLASSIFICATION_QUEUE_URL"); v != "" {
		c.Queue.URL = v
	}
	if v := os.Getenv("OAUTH_ISSUER"); v != "" {
		c.OAuth.Issuer = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		c.Server.APIKeys = strings.Split(v, ",")
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Version == "" {
		c.Server.Version = "dev"
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 100 * 1024
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:" + c.Server.Port
	}
	if c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = 20
	}
	if c.Postgres.MaxIdleConns == 0 {
		c.Postgres.MaxIdleConns = 5
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Vector.Host == "" {
		c.Vector.Host = "localhost"
	}
	if c.Vector.Port == 0 {
		c.Vector.Port = 6333
	}
	if c.Vector.Collection == "" {
		c.Vector.Collection = "agents"
	}
	if c.Vector.TimeoutMs == 0 {
		c.Vector.TimeoutMs = 5000
	}
	if c.Vector.MinScore == 0 {
		c.Vector.MinScore = 0.3
	}
	if c.Chain.TimeoutMs == 0 {
		c.Chain.TimeoutMs = 10000
	}
	if c.Embedder.Dimension == 0 {
		c.Embedder.Dimension = 1024
	}
	if c.IPFS.TimeoutMs == 0 {
		c.IPFS.TimeoutMs = 5000
	}
	if c.RateLimit.AnonymousPerMinute == 0 {
		c.RateLimit.AnonymousPerMinute = 60
	}
	if c.RateLimit.AuthenticatedPerMinute == 0 {
		c.RateLimit.AuthenticatedPerMinute = 300
	}
	if c.RateLimit.MutationPerMinute == 0 {
		c.RateLimit.MutationPerMinute = 10
	}
	if c.OAuth.CodeTTLSeconds == 0 {
		c.OAuth.CodeTTLSeconds = 600
	}
	if c.OAuth.TokenTTLSeconds == 0 {
		c.OAuth.TokenTTLSeconds = 3600
	}
	if c.OAuth.RefreshTTLDays == 0 {
		c.OAuth.RefreshTTLDays = 30
	}
	if c.OAuth.Issuer == "" {
		c.OAuth.Issuer = c.Server.BaseURL
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.Stream.HeartbeatSeconds == 0 {
		c.Stream.HeartbeatSeconds = 30
	}
	if c.Stream.HeartbeatSeconds < 5 {
		c.Stream.HeartbeatSeconds = 5
	}
	if c.Stream.HeartbeatSeconds > 60 {
		c.Stream.HeartbeatSeconds = 60
	}
	if c.Stream.MaxDurationSeconds == 0 {
		c.Stream.MaxDurationSeconds = 3600
	}
}

// VectorTimeout returns the vector search deadline as a duration.
func (c *Config) VectorTimeout() time.Duration {
	return time.Duration(c.Vector.TimeoutMs) * time.Millisecond
}

// IPFSTimeout returns the metadata fetch deadline as a duration.
func (c *Config) IPFSTimeout() time.Duration {
	return time.Duration(c.IPFS.TimeoutMs) * time.Millisecond
}
