// Package config loads PazPaz's process configuration from a YAML file
// with environment-variable overrides, the same two-layer pattern the
// teacher repo uses for its own Config struct.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Redis     RedisConfig      `yaml:"redis"`
	Crypto    CryptoConfig     `yaml:"crypto"`
	Auth      AuthConfig       `yaml:"auth"`
	Payments  PaymentsConfig   `yaml:"payments"`
	RAG       RAGConfig        `yaml:"rag"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Attach    AttachmentConfig `yaml:"attachments"`
}

// AuthConfig holds the HMAC secret material internal/identity uses to
// sign session cookies and verify magic-link-issued tokens. PrevSecret
// carries the previous secret through a rotation window so sessions
// issued before a rotation still verify (spec.md §6 — "signed session
// cookie").
type AuthConfig struct {
	SessionSecret     string `yaml:"session_secret"`
	SessionPrevSecret string `yaml:"session_prev_secret"`
	SessionTTLHours   int    `yaml:"session_ttl_hours"`
}

type ServerConfig struct {
	Port            string `yaml:"port"`
	Env             string `yaml:"env"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
}

type DatabaseConfig struct {
	DSN         string `yaml:"dsn"`
	MaxOpenConn int    `yaml:"max_open_conns"`
	MaxIdleConn int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KeyVersion identifies one generation of an envelope-encryption key.
type KeyVersion struct {
	Version string `yaml:"version"`
	KeyHex  string `yaml:"key_hex"` // 32 bytes hex-encoded, AES-256
}

type CryptoConfig struct {
	ActiveVersion string       `yaml:"active_version"`
	Keys          []KeyVersion `yaml:"keys"`
	GPGRecipient  string       `yaml:"gpg_backup_recipient"`
}

type PaymentsConfig struct {
	DefaultCurrency string `yaml:"default_currency"`
}

type RAGConfig struct {
	EmbeddingBaseURL   string              `yaml:"embedding_base_url"`
	EmbeddingAPIKey    string              `yaml:"embedding_api_key"`
	LLMBaseURL         string              `yaml:"llm_base_url"`
	LLMAPIKey          string              `yaml:"llm_api_key"`
	LLMModel           string              `yaml:"llm_model"`
	CacheTTLSeconds    int                 `yaml:"cache_ttl_seconds"`
	BreakerName        string              `yaml:"breaker_name"`
	BreakerThreshold   int                 `yaml:"breaker_failure_threshold"`
	BreakerCooldownSec int                 `yaml:"breaker_cooldown_sec"`
	QueryExpansion     map[string][]string `yaml:"query_expansion"`
}

type RateLimitConfig struct {
	MagicLinkPerHourPerIP int `yaml:"magic_link_per_hour_per_ip"`
	DraftAutosavePerMin   int `yaml:"draft_autosave_per_min"`
	AttachmentPerMin      int `yaml:"attachment_per_min"`
}

type AttachmentConfig struct {
	SupabaseURL        string `yaml:"supabase_url"`
	SupabaseServiceKey string `yaml:"supabase_service_key"`
	Bucket             string `yaml:"bucket"`
}

// Load reads path (if present), overlays PAZPAZ_* environment
// variables, and fills in defaults for anything still zero-valued.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort local .env for development

	cfg := &Config{}
	if path != "" {
		if f, err := os.Open(path); err == nil {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PAZPAZ_PORT", c.Server.Port)
	c.Server.Env = getEnv("PAZPAZ_ENV", c.Server.Env)
	c.Database.DSN = getEnv("PAZPAZ_DATABASE_DSN", c.Database.DSN)
	c.Redis.Addr = getEnv("PAZPAZ_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("PAZPAZ_REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("PAZPAZ_REDIS_DB", -1); v >= 0 {
		c.Redis.DB = v
	}
	c.Crypto.ActiveVersion = getEnv("PAZPAZ_CRYPTO_ACTIVE_VERSION", c.Crypto.ActiveVersion)
	if keyHex := getEnv("PAZPAZ_CRYPTO_KEY", ""); keyHex != "" && c.Crypto.ActiveVersion != "" {
		c.Crypto.Keys = append(c.Crypto.Keys, KeyVersion{Version: c.Crypto.ActiveVersion, KeyHex: keyHex})
	}
	c.Crypto.GPGRecipient = getEnv("PAZPAZ_GPG_BACKUP_RECIPIENT", c.Crypto.GPGRecipient)
	c.Auth.SessionSecret = getEnv("PAZPAZ_SESSION_SECRET", c.Auth.SessionSecret)
	c.Auth.SessionPrevSecret = getEnv("PAZPAZ_SESSION_PREV_SECRET", c.Auth.SessionPrevSecret)
	c.RAG.EmbeddingBaseURL = getEnv("PAZPAZ_EMBEDDING_BASE_URL", c.RAG.EmbeddingBaseURL)
	c.RAG.EmbeddingAPIKey = getEnv("PAZPAZ_EMBEDDING_API_KEY", c.RAG.EmbeddingAPIKey)
	c.RAG.LLMBaseURL = getEnv("PAZPAZ_LLM_BASE_URL", c.RAG.LLMBaseURL)
	c.RAG.LLMAPIKey = getEnv("PAZPAZ_LLM_API_KEY", c.RAG.LLMAPIKey)
	c.RAG.LLMModel = getEnv("PAZPAZ_LLM_MODEL", c.RAG.LLMModel)
	c.Attach.SupabaseURL = getEnv("PAZPAZ_ATTACHMENTS_SUPABASE_URL", c.Attach.SupabaseURL)
	c.Attach.SupabaseServiceKey = getEnv("PAZPAZ_ATTACHMENTS_SUPABASE_KEY", c.Attach.SupabaseServiceKey)
	c.Attach.Bucket = getEnv("PAZPAZ_ATTACHMENTS_BUCKET", c.Attach.Bucket)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 30
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Database.MaxOpenConn == 0 {
		c.Database.MaxOpenConn = 20
	}
	if c.Database.MaxIdleConn == 0 {
		c.Database.MaxIdleConn = 5
	}
	if c.Payments.DefaultCurrency == "" {
		c.Payments.DefaultCurrency = "ILS"
	}
	if c.RAG.CacheTTLSeconds == 0 {
		c.RAG.CacheTTLSeconds = 300
	}
	if c.RAG.BreakerName == "" {
		c.RAG.BreakerName = "cohere_chat"
	}
	if c.RAG.BreakerThreshold == 0 {
		c.RAG.BreakerThreshold = 5
	}
	if c.RAG.BreakerCooldownSec == 0 {
		c.RAG.BreakerCooldownSec = 60
	}
	if c.RateLimit.MagicLinkPerHourPerIP == 0 {
		c.RateLimit.MagicLinkPerHourPerIP = 3
	}
	if c.RateLimit.DraftAutosavePerMin == 0 {
		c.RateLimit.DraftAutosavePerMin = 60
	}
	if c.RateLimit.AttachmentPerMin == 0 {
		c.RateLimit.AttachmentPerMin = 10
	}
	if c.Attach.Bucket == "" {
		c.Attach.Bucket = "client-attachments"
	}
	if c.Auth.SessionTTLHours == 0 {
		c.Auth.SessionTTLHours = 24
	}
}

func (c *Config) IsProduction() bool  { return c.Server.Env == "production" }
func (c *Config) IsDevelopment() bool { return c.Server.Env != "production" }

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

