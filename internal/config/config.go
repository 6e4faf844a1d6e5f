// Package config builds the immutable process configuration.
//
// Configuration is read once at startup from environment variables plus an
// optional YAML policy file, then passed by value into every component.
// Business logic never does ambient lookups.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvGitHubToken     = "TRIAGEKIT_GITHUB_TOKEN"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvModel           = "TRIAGEKIT_MODEL"
	EnvBotName         = "TRIAGEKIT_BOT_NAME"
	EnvAutoFix         = "TRIAGEKIT_AUTO_FIX"
	EnvDBPath          = "TRIAGEKIT_DB_PATH"
	EnvListenAddr      = "TRIAGEKIT_LISTEN_ADDR"
	EnvWebhookSecret   = "TRIAGEKIT_WEBHOOK_SECRET"
)

// DefaultModel is the Anthropic model used when none is configured.
const DefaultModel = "claude-sonnet-4-5-20250929"

// Config is the complete, immutable runtime configuration.
type Config struct {
	GitHubToken     string
	AnthropicAPIKey string
	Model           string

	// BotName is the mention handle for issue commands ("@<BotName> fix").
	// It is also the comment author the bot ignores on inbound events.
	BotName string

	AutoFixEnabled bool

	DBPath        string
	ListenAddr    string
	WebhookSecret string

	// Safety gate policy.
	ConfidenceThreshold  float64
	MaxAutoFixComplexity int
	CriticalPaths        []string
	DeniedContent        []string

	// Admission filter labels.
	DenyLabels      []string
	ProcessedLabel  string
	ProcessingLabel string

	// Per-repository token bucket.
	RateLimitInterval time.Duration
	RateLimitBurst    int
}

// policyFile is the YAML shape of an optional policy override file.
type policyFile struct {
	ConfidenceThreshold  *float64 `yaml:"confidence_threshold,omitempty"`
	MaxAutoFixComplexity *int     `yaml:"max_auto_fix_complexity,omitempty"`
	CriticalPaths        []string `yaml:"critical_paths,omitempty"`
	DeniedContent        []string `yaml:"denied_content,omitempty"`
	DenyLabels           []string `yaml:"deny_labels,omitempty"`
	RateLimitPerMinute   *int     `yaml:"rate_limit_per_minute,omitempty"`
	RateLimitBurst       *int     `yaml:"rate_limit_burst,omitempty"`
}

// Default returns the configuration defaults before env and file overrides.
func Default() Config {
	return Config{
		Model:                DefaultModel,
		BotName:              "triagekit",
		DBPath:               ".triagekit/triagekit.db",
		ListenAddr:           ":8470",
		ConfidenceThreshold:  0.8,
		MaxAutoFixComplexity: 3,
		CriticalPaths:        DefaultCriticalPaths(),
		DeniedContent:        DefaultDeniedContent(),
		DenyLabels:           []string{"wontfix", "duplicate", "invalid", "no-bot"},
		ProcessedLabel:       "triaged",
		ProcessingLabel:      "triaging",
		RateLimitInterval:    6 * time.Second, // 10 events/min per repository
		RateLimitBurst:       5,
	}
}

// DefaultCriticalPaths lists path fragments that are never auto-edited
// unless the edit set is explicitly low risk: build manifests, lockfiles,
// container and orchestration manifests, secret files, proxy configs.
func DefaultCriticalPaths() []string {
	return []string{
		"package.json",
		"package-lock.json",
		"yarn.lock",
		"go.mod",
		"go.sum",
		"Cargo.toml",
		"Cargo.lock",
		"requirements.txt",
		"Dockerfile",
		"docker-compose",
		".github/workflows",
		"Makefile",
		".env",
		"secrets",
		"credentials",
		"nginx.conf",
		"k8s",
		"kubernetes",
		"helm",
	}
}

// DefaultDeniedContent lists substrings that make a proposed file content
// unsafe to apply automatically regardless of risk level.
func DefaultDeniedContent() []string {
	return []string{
		"rm -rf",
		"sudo ",
		"chmod 777",
		"password",
		"secret",
		"api_key",
		"apikey",
		"private_key",
	}
}

// Load builds the Config from defaults, an optional YAML policy file, and
// environment variables, in that precedence order (env wins).
func Load(policyPath string) (Config, error) {
	cfg := Default()

	if policyPath != "" {
		if err := cfg.applyPolicyFile(policyPath); err != nil {
			return Config{}, err
		}
	}

	cfg.GitHubToken = os.Getenv(EnvGitHubToken)
	cfg.AnthropicAPIKey = os.Getenv(EnvAnthropicAPIKey)
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv(EnvBotName); v != "" {
		cfg.BotName = v
	}
	if v := os.Getenv(EnvAutoFix); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s value %q: %w", EnvAutoFix, v, err)
		}
		cfg.AutoFixEnabled = enabled
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	cfg.WebhookSecret = os.Getenv(EnvWebhookSecret)

	return cfg, cfg.validate()
}

func (c *Config) applyPolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parsing policy YAML: %w", err)
	}

	if pf.ConfidenceThreshold != nil {
		c.ConfidenceThreshold = *pf.ConfidenceThreshold
	}
	if pf.MaxAutoFixComplexity != nil {
		c.MaxAutoFixComplexity = *pf.MaxAutoFixComplexity
	}
	if len(pf.CriticalPaths) > 0 {
		c.CriticalPaths = pf.CriticalPaths
	}
	if len(pf.DeniedContent) > 0 {
		c.DeniedContent = pf.DeniedContent
	}
	if len(pf.DenyLabels) > 0 {
		c.DenyLabels = pf.DenyLabels
	}
	if pf.RateLimitPerMinute != nil {
		if *pf.RateLimitPerMinute <= 0 {
			return fmt.Errorf("rate_limit_per_minute must be positive (got %d)", *pf.RateLimitPerMinute)
		}
		c.RateLimitInterval = time.Minute / time.Duration(*pf.RateLimitPerMinute)
	}
	if pf.RateLimitBurst != nil {
		if *pf.RateLimitBurst <= 0 {
			return fmt.Errorf("rate_limit_burst must be positive (got %d)", *pf.RateLimitBurst)
		}
		c.RateLimitBurst = *pf.RateLimitBurst
	}

	return nil
}

func (c *Config) validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1] (got %f)", c.ConfidenceThreshold)
	}
	if c.MaxAutoFixComplexity <= 0 {
		return fmt.Errorf("max auto-fix complexity must be positive (got %d)", c.MaxAutoFixComplexity)
	}
	if c.BotName == "" {
		return fmt.Errorf("bot name is required")
	}
	return nil
}
