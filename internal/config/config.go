package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance from the default search paths
func New() (*Config, error) {
	return Load("")
}

// Load creates a configuration instance. When path is empty the default
// search paths are used and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/submission-guard/")
		v.AddConfigPath("$HOME/.submission-guard")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("GUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.listen_address", "0.0.0.0:8080")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_message_length", 5000)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.metrics_path", "/metrics")

	// Engine defaults
	v.SetDefault("engine.accept_threshold", 0.6)
	v.SetDefault("engine.reject_threshold", 0.8)
	v.SetDefault("engine.blacklist_floor", 0.8)
	v.SetDefault("engine.detector_timeout", "250ms")
	v.SetDefault("engine.side_effect_timeout", "500ms")
	v.SetDefault("engine.unavailable_outcome", "accept")
	v.SetDefault("engine.disabled_forms", []string{})
	v.SetDefault("engine.notify_on_reject", true)
	v.SetDefault("engine.notify_on_quarantine", true)
	v.SetDefault("engine.weights.content", 1.0)
	v.SetDefault("engine.weights.behavioral", 0.8)
	v.SetDefault("engine.weights.reputation", 0.6)
	v.SetDefault("engine.weights.ml", 1.0)
	v.SetDefault("engine.weights.llm", 0.8)

	// Honeypot defaults
	v.SetDefault("honeypot.fields", []string{"_honeypot", "_hp", "_bot_check", "_email_confirm"})

	// Rate limit defaults
	v.SetDefault("ratelimit.store", "memory")
	v.SetDefault("ratelimit.strategy", "fixed")
	v.SetDefault("ratelimit.fail_open", true)
	v.SetDefault("ratelimit.cleanup_frequency", "1m")
	v.SetDefault("ratelimit.rules", []map[string]interface{}{
		{"scope": "ip_form", "limit": 10, "window": "15m"},
	})
	v.SetDefault("ratelimit.redis.address", "localhost:6379")
	v.SetDefault("ratelimit.redis.password", "")
	v.SetDefault("ratelimit.redis.db", 0)
	v.SetDefault("ratelimit.redis.key_prefix", "guard:ratelimit")

	// Reputation defaults
	v.SetDefault("reputation.store", "memory")
	v.SetDefault("reputation.sqlite_path", "/data/reputation.db")
	v.SetDefault("reputation.mysql_dsn", "user:password@tcp(localhost:3306)/submission_guard")
	v.SetDefault("reputation.lookup_timeout", "50ms")
	v.SetDefault("reputation.ttl", "24h")
	v.SetDefault("reputation.penalty", 0.25)
	v.SetDefault("reputation.blacklist_after", 5)
	v.SetDefault("reputation.sweep_interval", "10m")
	v.SetDefault("reputation.allow_cidrs", []string{})
	v.SetDefault("reputation.deny_cidrs", []string{})

	// Content defaults
	v.SetDefault("content.lexicon_path", "")
	v.SetDefault("content.keyword_weight", 0.6)
	v.SetDefault("content.keyword_saturation", 2)
	v.SetDefault("content.url_weight", 0.5)
	v.SetDefault("content.url_threshold", 3)
	v.SetDefault("content.caps_weight", 0.2)
	v.SetDefault("content.caps_ratio", 0.7)
	v.SetDefault("content.caps_min_letters", 20)
	v.SetDefault("content.repeat_weight", 0.2)
	v.SetDefault("content.repeat_run_length", 4)
	v.SetDefault("content.blocked_domain_score", 0.7)
	v.SetDefault("content.fuzzy_min_length", 5)
	v.SetDefault("content.email_field", "email")
	v.SetDefault("content.custom_rules", []map[string]interface{}{})

	// Behavioral defaults
	v.SetDefault("behavioral.min_interaction_delay", 0.5)
	v.SetDefault("behavioral.no_mouse_min_keystrokes", 10)
	v.SetDefault("behavioral.min_rhythm_samples", 5)
	v.SetDefault("behavioral.min_rhythm_variation", 0.1)
	v.SetDefault("behavioral.max_typing_speed", 200)
	v.SetDefault("behavioral.max_copy_paste_ratio", 0.5)
	v.SetDefault("behavioral.min_time_on_page", 3)
	v.SetDefault("behavioral.max_chars_per_second", 15)
	v.SetDefault("behavioral.message_field", "message")

	// ML defaults
	v.SetDefault("ml.enabled", true)
	v.SetDefault("ml.model_path", "/data/model.json")
	v.SetDefault("ml.corpus_path", "/data/corpus.json")
	v.SetDefault("ml.seed_path", "")
	v.SetDefault("ml.min_training_samples", 20)
	v.SetDefault("ml.min_word_frequency", 2)
	v.SetDefault("ml.queue_size", 1024)
	v.SetDefault("ml.max_corpus", 50000)
	v.SetDefault("ml.retrain_schedule", "0 3 * * *")

	// LLM provider defaults
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.provider", "bedrock")
	v.SetDefault("llm.min_confidence", 0.5)
	v.SetDefault("llm.cache.enabled", true)
	v.SetDefault("llm.cache.ttl", "24h")
	v.SetDefault("llm.cache.cleanup_frequency", "10m")
	v.SetDefault("llm.cache.store", "memory")
	v.SetDefault("llm.cache.sqlite_path", "/data/llm_cache.db")
	v.SetDefault("llm.cache.mysql_dsn", "")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.max_tokens", 300)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 300)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// Quarantine defaults
	v.SetDefault("quarantine.store", "memory")
	v.SetDefault("quarantine.sqlite_path", "/data/quarantine.db")
	v.SetDefault("quarantine.mysql_dsn", "user:password@tcp(localhost:3306)/submission_guard")

	// Notification defaults
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.anonymize_key", "")
	v.SetDefault("notify.smtp.address", "")
	v.SetDefault("notify.smtp.from", "")
	v.SetDefault("notify.smtp.to", []string{})
	v.SetDefault("notify.smtp.timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}

// duration returns a duration setting, zero when it does not parse. Validate reports those.
func (c *Config) duration(key string) time.Duration {
	d, err := c.GetDuration(key)
	if err != nil {
		return 0
	}
	return d
}
