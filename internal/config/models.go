package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/detector"
	"github.com/mikey/submission-guard/internal/ml"
	"github.com/mikey/submission-guard/internal/ratelimit"
	"github.com/mikey/submission-guard/internal/reputation"
)

// ServerConfig represents the HTTP intake settings
type ServerConfig struct {
	ListenAddress    string
	AdminToken       string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	ShutdownTimeout  time.Duration
	MaxMessageLength int
	MaxBodyBytes     int64
	TrustedProxies   []string
	MetricsEnabled   bool
	MetricsPath      string
}

// StoreConfig selects a persistence backend
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// RateLimitStoreConfig selects the counter backend for the rate limiter
type RateLimitStoreConfig struct {
	Type             string
	CleanupFrequency time.Duration
	RedisAddress     string
	RedisPassword    string
	RedisDB          int
	RedisKeyPrefix   string
}

// IPListConfig holds the static allow and deny lists
type IPListConfig struct {
	Allow []string
	Deny  []string
}

// MLConfig represents the local classifier settings
type MLConfig struct {
	Enabled         bool
	ModelPath       string
	SeedPath        string
	RetrainSchedule string
	Trainer         ml.TrainerConfig
}

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Enabled       bool
	Provider      string
	MinConfidence float64
	Cache         VerdictCacheConfig
}

// VerdictCacheConfig controls reuse of model verdicts for repeated text
type VerdictCacheConfig struct {
	Enabled          bool
	TTL              time.Duration
	CleanupFrequency time.Duration
	Store            StoreConfig
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI and compatible endpoints
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// SMTPConfig represents the mail relay used for operator notifications
type SMTPConfig struct {
	Address string
	From    string
	To      []string
	Timeout time.Duration
}

// NotifyConfig represents the notification channels
type NotifyConfig struct {
	Enabled      bool
	URLs         []string
	AnonymizeKey string
	SMTP         SMTPConfig
}

// LoggingConfig represents the logger settings
type LoggingConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// GetServer returns the HTTP intake configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		ListenAddress:    c.GetString("server.listen_address"),
		AdminToken:       c.GetString("server.admin_token"),
		ReadTimeout:      c.duration("server.read_timeout"),
		WriteTimeout:     c.duration("server.write_timeout"),
		ShutdownTimeout:  c.duration("server.shutdown_timeout"),
		MaxMessageLength: c.GetInt("server.max_message_length"),
		MaxBodyBytes:     c.v.GetInt64("server.max_body_bytes"),
		TrustedProxies:   c.GetStringSlice("server.trusted_proxies"),
		MetricsEnabled:   c.GetBool("server.metrics_enabled"),
		MetricsPath:      c.GetString("server.metrics_path"),
	}
}

// GetEngine returns the decision engine configuration
func (c *Config) GetEngine() core.EngineConfig {
	weights := make(map[string]float64)
	for _, name := range []string{core.DetectorContent, core.DetectorBehavioral, core.DetectorReputation, core.DetectorML, core.DetectorLLM} {
		key := "engine.weights." + name
		if c.v.IsSet(key) {
			weights[name] = c.GetFloat64(key)
		}
	}
	outcome, ok := core.ParseOutcome(c.GetString("engine.unavailable_outcome"))
	if !ok {
		outcome = core.Outcome(c.GetString("engine.unavailable_outcome"))
	}
	return core.EngineConfig{
		AcceptThreshold:    c.GetFloat64("engine.accept_threshold"),
		RejectThreshold:    c.GetFloat64("engine.reject_threshold"),
		BlacklistFloor:     c.GetFloat64("engine.blacklist_floor"),
		DetectorTimeout:    c.duration("engine.detector_timeout"),
		SideEffectTimeout:  c.duration("engine.side_effect_timeout"),
		Weights:            weights,
		UnavailableOutcome: outcome,
		DisabledForms:      c.GetStringSlice("engine.disabled_forms"),
		NotifyOnReject:     c.GetBool("engine.notify_on_reject"),
		NotifyOnQuarantine: c.GetBool("engine.notify_on_quarantine"),
	}
}

// GetHoneypotFields returns the regular field names also treated as decoys
func (c *Config) GetHoneypotFields() []string {
	return c.GetStringSlice("honeypot.fields")
}

type ruleSetting struct {
	Scope  string `mapstructure:"scope"`
	Limit  int64  `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// GetRateLimit returns the limiter policy
func (c *Config) GetRateLimit() (ratelimit.Config, error) {
	var settings []ruleSetting
	if err := c.v.UnmarshalKey("ratelimit.rules", &settings); err != nil {
		return ratelimit.Config{}, &core.ConfigError{Key: "ratelimit.rules", Reason: err.Error()}
	}

	rules := make([]ratelimit.Rule, 0, len(settings))
	for i, s := range settings {
		scope, err := ratelimit.ParseScope(s.Scope)
		if err != nil {
			return ratelimit.Config{}, &core.ConfigError{Key: fmt.Sprintf("ratelimit.rules[%d].scope", i), Reason: err.Error()}
		}
		window, err := time.ParseDuration(s.Window)
		if err != nil {
			return ratelimit.Config{}, &core.ConfigError{Key: fmt.Sprintf("ratelimit.rules[%d].window", i), Reason: err.Error()}
		}
		rules = append(rules, ratelimit.Rule{Scope: scope, Limit: s.Limit, Window: window})
	}

	return ratelimit.Config{
		Strategy: ratelimit.Strategy(strings.ToLower(c.GetString("ratelimit.strategy"))),
		FailOpen: c.GetBool("ratelimit.fail_open"),
		Rules:    rules,
	}, nil
}

// GetRateLimitStore returns the counter backend configuration
func (c *Config) GetRateLimitStore() RateLimitStoreConfig {
	return RateLimitStoreConfig{
		Type:             c.GetString("ratelimit.store"),
		CleanupFrequency: c.duration("ratelimit.cleanup_frequency"),
		RedisAddress:     c.GetString("ratelimit.redis.address"),
		RedisPassword:    c.GetString("ratelimit.redis.password"),
		RedisDB:          c.GetInt("ratelimit.redis.db"),
		RedisKeyPrefix:   c.GetString("ratelimit.redis.key_prefix"),
	}
}

// GetReputation returns the reputation policy
func (c *Config) GetReputation() reputation.Config {
	return reputation.Config{
		LookupTimeout:  c.duration("reputation.lookup_timeout"),
		TTL:            c.duration("reputation.ttl"),
		Penalty:        c.GetFloat64("reputation.penalty"),
		BlacklistAfter: c.GetInt("reputation.blacklist_after"),
		SweepInterval:  c.duration("reputation.sweep_interval"),
	}
}

// GetReputationStore returns the reputation persistence backend
func (c *Config) GetReputationStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("reputation.store"),
		SQLitePath: c.GetString("reputation.sqlite_path"),
		MySQLDSN:   c.GetString("reputation.mysql_dsn"),
	}
}

// GetIPLists returns the static allow and deny lists
func (c *Config) GetIPLists() IPListConfig {
	return IPListConfig{
		Allow: c.GetStringSlice("reputation.allow_cidrs"),
		Deny:  c.GetStringSlice("reputation.deny_cidrs"),
	}
}

// GetQuarantineStore returns the quarantine persistence backend
func (c *Config) GetQuarantineStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("quarantine.store"),
		SQLitePath: c.GetString("quarantine.sqlite_path"),
		MySQLDSN:   c.GetString("quarantine.mysql_dsn"),
	}
}

// GetLexiconPath returns the optional lexicon file, empty for the built-in lists
func (c *Config) GetLexiconPath() string {
	return c.GetString("content.lexicon_path")
}

// GetContent returns the content heuristics configuration
func (c *Config) GetContent() detector.ContentConfig {
	return detector.ContentConfig{
		KeywordWeight:      c.GetFloat64("content.keyword_weight"),
		KeywordSaturation:  c.GetInt("content.keyword_saturation"),
		URLWeight:          c.GetFloat64("content.url_weight"),
		URLThreshold:       c.GetInt("content.url_threshold"),
		CapsWeight:         c.GetFloat64("content.caps_weight"),
		CapsRatio:          c.GetFloat64("content.caps_ratio"),
		CapsMinLetters:     c.GetInt("content.caps_min_letters"),
		RepeatWeight:       c.GetFloat64("content.repeat_weight"),
		RepeatRunLength:    c.GetInt("content.repeat_run_length"),
		BlockedDomainScore: c.GetFloat64("content.blocked_domain_score"),
		FuzzyMinLength:     c.GetInt("content.fuzzy_min_length"),
		EmailField:         c.GetString("content.email_field"),
	}
}

type customRuleSetting struct {
	Name    string   `mapstructure:"name"`
	Forms   []string `mapstructure:"forms"`
	Field   string   `mapstructure:"field"`
	Pattern string   `mapstructure:"pattern"`
	Action  string   `mapstructure:"action"`
	Score   float64  `mapstructure:"score"`
}

// GetCustomRules returns the operator defined content rules. Patterns are compiled
// by the content analyzer.
func (c *Config) GetCustomRules() ([]detector.CustomRule, error) {
	var settings []customRuleSetting
	if err := c.v.UnmarshalKey("content.custom_rules", &settings); err != nil {
		return nil, &core.ConfigError{Key: "content.custom_rules", Reason: err.Error()}
	}
	rules := make([]detector.CustomRule, 0, len(settings))
	for _, s := range settings {
		rules = append(rules, detector.CustomRule{
			Name:    s.Name,
			Forms:   s.Forms,
			Field:   s.Field,
			Pattern: s.Pattern,
			Action:  detector.RuleAction(s.Action),
			Score:   s.Score,
		})
	}
	return rules, nil
}

// GetBehavioral returns the telemetry heuristics configuration
func (c *Config) GetBehavioral() detector.BehavioralConfig {
	return detector.BehavioralConfig{
		MinInteractionDelay:  c.GetFloat64("behavioral.min_interaction_delay"),
		NoMouseMinKeystrokes: c.GetInt("behavioral.no_mouse_min_keystrokes"),
		MinRhythmSamples:     c.GetInt("behavioral.min_rhythm_samples"),
		MinRhythmVariation:   c.GetFloat64("behavioral.min_rhythm_variation"),
		MaxTypingSpeed:       c.GetFloat64("behavioral.max_typing_speed"),
		MaxCopyPasteRatio:    c.GetFloat64("behavioral.max_copy_paste_ratio"),
		MinTimeOnPage:        c.GetFloat64("behavioral.min_time_on_page"),
		MaxCharsPerSecond:    c.GetFloat64("behavioral.max_chars_per_second"),
		MessageField:         c.GetString("behavioral.message_field"),
	}
}

// GetML returns the local classifier configuration
func (c *Config) GetML() MLConfig {
	return MLConfig{
		Enabled:         c.GetBool("ml.enabled"),
		ModelPath:       c.GetString("ml.model_path"),
		SeedPath:        c.GetString("ml.seed_path"),
		RetrainSchedule: c.GetString("ml.retrain_schedule"),
		Trainer: ml.TrainerConfig{
			MinSamples:       c.GetInt("ml.min_training_samples"),
			MinWordFrequency: c.GetInt("ml.min_word_frequency"),
			QueueSize:        c.GetInt("ml.queue_size"),
			MaxCorpus:        c.GetInt("ml.max_corpus"),
			CorpusPath:       c.GetString("ml.corpus_path"),
		},
	}
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Enabled:       c.GetBool("llm.enabled"),
		Provider:      c.GetString("llm.provider"),
		MinConfidence: c.GetFloat64("llm.min_confidence"),
		Cache: VerdictCacheConfig{
			Enabled:          c.GetBool("llm.cache.enabled"),
			TTL:              c.duration("llm.cache.ttl"),
			CleanupFrequency: c.duration("llm.cache.cleanup_frequency"),
			Store: StoreConfig{
				Type:       c.GetString("llm.cache.store"),
				SQLitePath: c.GetString("llm.cache.sqlite_path"),
				MySQLDSN:   c.GetString("llm.cache.mysql_dsn"),
			},
		},
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetNotify returns the notification configuration
func (c *Config) GetNotify() NotifyConfig {
	return NotifyConfig{
		Enabled:      c.GetBool("notify.enabled"),
		URLs:         c.GetStringSlice("notify.urls"),
		AnonymizeKey: c.GetString("notify.anonymize_key"),
		SMTP: SMTPConfig{
			Address: c.GetString("notify.smtp.address"),
			From:    c.GetString("notify.smtp.from"),
			To:      c.GetStringSlice("notify.smtp.to"),
			Timeout: c.duration("notify.smtp.timeout"),
		},
	}
}

// GetLogging returns the logger configuration
func (c *Config) GetLogging() LoggingConfig {
	return LoggingConfig{
		Level:      c.GetString("logging.level"),
		Format:     c.GetString("logging.format"),
		File:       c.GetString("logging.file"),
		MaxSizeMB:  c.GetInt("logging.max_size_mb"),
		MaxBackups: c.GetInt("logging.max_backups"),
		MaxAgeDays: c.GetInt("logging.max_age_days"),
		Compress:   c.GetBool("logging.compress"),
	}
}

var durationKeys = []string{
	"server.read_timeout",
	"server.write_timeout",
	"server.shutdown_timeout",
	"engine.detector_timeout",
	"engine.side_effect_timeout",
	"ratelimit.cleanup_frequency",
	"reputation.lookup_timeout",
	"reputation.ttl",
	"reputation.sweep_interval",
	"notify.smtp.timeout",
	"llm.cache.ttl",
	"llm.cache.cleanup_frequency",
}

// Validate checks the whole configuration and returns the first problem found
// as a *core.ConfigError
func (c *Config) Validate() error {
	for _, key := range durationKeys {
		if _, err := c.GetDuration(key); err != nil {
			return &core.ConfigError{Key: key, Reason: err.Error()}
		}
	}

	if err := c.GetEngine().Validate(); err != nil {
		return err
	}

	rl, err := c.GetRateLimit()
	if err != nil {
		return err
	}
	if err := rl.Validate(); err != nil {
		return &core.ConfigError{Key: "ratelimit", Reason: err.Error()}
	}
	switch c.GetRateLimitStore().Type {
	case "memory", "redis":
	default:
		return &core.ConfigError{Key: "ratelimit.store", Reason: fmt.Sprintf("unsupported store %q", c.GetString("ratelimit.store"))}
	}

	rules, err := c.GetCustomRules()
	if err != nil {
		return err
	}
	if _, err := detector.NewRuleSet(rules); err != nil {
		return err
	}

	if err := c.GetReputation().Validate(); err != nil {
		return err
	}
	for _, key := range []string{"reputation.store", "quarantine.store", "llm.cache.store"} {
		switch c.GetString(key) {
		case "memory", "sqlite", "mysql":
		default:
			return &core.ConfigError{Key: key, Reason: fmt.Sprintf("unsupported store %q", c.GetString(key))}
		}
	}

	if c.GetServer().MaxMessageLength <= 0 {
		return &core.ConfigError{Key: "server.max_message_length", Reason: "must be positive"}
	}

	if llm := c.GetLLM(); llm.Enabled {
		switch llm.Provider {
		case "bedrock", "gemini", "openai":
		default:
			return &core.ConfigError{Key: "llm.provider", Reason: fmt.Sprintf("unsupported provider %q", llm.Provider)}
		}
		if llm.MinConfidence < 0 || llm.MinConfidence > 1 {
			return &core.ConfigError{Key: "llm.min_confidence", Reason: "must be in [0, 1]"}
		}
		if llm.Cache.Enabled && llm.Cache.TTL <= 0 {
			return &core.ConfigError{Key: "llm.cache.ttl", Reason: "must be positive"}
		}
	}

	if n := c.GetNotify(); n.Enabled && len(n.URLs) == 0 && n.SMTP.Address == "" {
		return &core.ConfigError{Key: "notify", Reason: "enabled without urls or smtp.address"}
	}

	return nil
}
