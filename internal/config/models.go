package config

import (
	"fmt"
	"time"

	"github.com/mikey/phishguard/internal/core"
)

// ServerConfig represents the configuration of the frontends
type ServerConfig struct {
	FilterType      string
	ListenAddress   string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	RateLimit       float64
	RateBurst       int

	BlockPhishing  bool
	StatusHeader   string
	ScoreHeader    string
	ReasonHeader   string
	PostfixAddress string
	PostfixPort    int
	PostfixEnabled bool
	SubjectPrefix  string
	ModifySubject  bool
}

// ScoringConfig represents the tunables of the scoring engine
type ScoringConfig struct {
	RuleThresholds     core.Thresholds
	HybridThresholds   core.Thresholds
	MaxRuleReasons     int
	MaxBodySize        int
	WhitelistedDomains []string
}

// CacheConfig represents the configuration of the result cache
type CacheConfig struct {
	Type             string
	Enabled          bool
	MaxEntries       int
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
}

// ModelConfig represents the location of the classifier artifact
type ModelConfig struct {
	Path string
}

// GetServer returns the server configuration
func (c *Config) GetServer() (ServerConfig, error) {
	shutdown, err := c.GetDuration("server.shutdown_timeout")
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{
		FilterType:      c.GetString("server.filter_type"),
		ListenAddress:   c.GetString("server.listen_address"),
		AllowedOrigins:  c.GetStringSlice("server.allowed_origins"),
		ShutdownTimeout: shutdown,
		RateLimit:       c.GetFloat64("server.rate_limit"),
		RateBurst:       c.GetInt("server.rate_burst"),
		BlockPhishing:   c.GetBool("server.block_phishing"),
		StatusHeader:    c.GetString("server.headers.status"),
		ScoreHeader:     c.GetString("server.headers.score"),
		ReasonHeader:    c.GetString("server.headers.reason"),
		PostfixAddress:  c.GetString("server.postfix.address"),
		PostfixPort:     c.GetInt("server.postfix.port"),
		PostfixEnabled:  c.GetBool("server.postfix.enabled"),
		SubjectPrefix:   c.GetString("server.subject_prefix"),
		ModifySubject:   c.GetBool("server.modify_subject"),
	}, nil
}

// GetScoring returns the scoring configuration. Thresholds must satisfy
// 0 <= low <= high <= 1. Rule thresholds are strict, hybrid ones inclusive.
func (c *Config) GetScoring() (ScoringConfig, error) {
	rule := core.Thresholds{
		High:   c.GetFloat64("scoring.rule_thresholds.high"),
		Low:    c.GetFloat64("scoring.rule_thresholds.low"),
		Strict: true,
	}
	if err := checkThresholds("scoring.rule_thresholds", rule); err != nil {
		return ScoringConfig{}, err
	}
	hybrid := core.Thresholds{
		High: c.GetFloat64("scoring.hybrid_thresholds.high"),
		Low:  c.GetFloat64("scoring.hybrid_thresholds.low"),
	}
	if err := checkThresholds("scoring.hybrid_thresholds", hybrid); err != nil {
		return ScoringConfig{}, err
	}

	return ScoringConfig{
		RuleThresholds:     rule,
		HybridThresholds:   hybrid,
		MaxRuleReasons:     c.GetInt("scoring.max_rule_reasons"),
		MaxBodySize:        c.GetInt("scoring.max_body_size"),
		WhitelistedDomains: c.GetStringSlice("scoring.whitelisted_domains"),
	}, nil
}

func checkThresholds(key string, t core.Thresholds) error {
	if t.Low < 0 || t.High > 1 || t.Low > t.High {
		return fmt.Errorf("invalid %s: low=%v high=%v", key, t.Low, t.High)
	}
	return nil
}

// GetCache returns the cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	ttl, err := c.GetDuration("cache.ttl")
	if err != nil {
		return CacheConfig{}, err
	}
	cleanup, err := c.GetDuration("cache.cleanup_frequency")
	if err != nil {
		return CacheConfig{}, err
	}
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		Enabled:          c.GetBool("cache.enabled"),
		MaxEntries:       c.GetInt("cache.max_entries"),
		TTL:              ttl,
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
	}, nil
}

// GetModel returns the model configuration
func (c *Config) GetModel() ModelConfig {
	return ModelConfig{
		Path: c.GetString("model.path"),
	}
}

// GetBrands returns the ordered list of trusted brands
func (c *Config) GetBrands() ([]core.TrustedBrand, error) {
	var brands []core.TrustedBrand
	if err := c.v.UnmarshalKey("brands", &brands); err != nil {
		return nil, fmt.Errorf("invalid brands: %w", err)
	}
	for i, b := range brands {
		if b.Name == "" || b.Domain == "" {
			return nil, fmt.Errorf("invalid brands: entry %d needs both name and domain", i)
		}
	}
	return brands, nil
}
