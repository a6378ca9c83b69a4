package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file.
func Load(configPath string) (*Config, error) {
	// Resolve to absolute path for consistent relative path resolution
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		// Directory provided - look for config.yaml inside
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := interpolateEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", absPath, err)
	}

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyConfigDefaults fills in defaults for unset fields.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.Listen == "" {
		cfg.Listen = defaults.Listen
	}
	if cfg.StorePath == "" {
		cfg.StorePath = defaults.StorePath
	}
	if cfg.EventsDBPath == "" {
		cfg.EventsDBPath = defaults.EventsDBPath
	}
	if cfg.Notion.APIBase == "" {
		cfg.Notion.APIBase = defaults.Notion.APIBase
	}
	if cfg.Notion.Version == "" {
		cfg.Notion.Version = defaults.Notion.Version
	}
	if cfg.Webhook.Policy == "" {
		cfg.Webhook.Policy = defaults.Webhook.Policy
	}
	if cfg.Webhook.MaxBodySize == "" {
		cfg.Webhook.MaxBodySize = defaults.Webhook.MaxBodySize
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaults.LLM.Model
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error (got %q)", cfg.LogLevel)
	}

	if cfg.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if cfg.StorePath == "" {
		return fmt.Errorf("store_path is required")
	}

	switch cfg.Webhook.Policy {
	case "signature_only", "signature_or_automation_secret":
	default:
		return fmt.Errorf("webhook.policy must be signature_only or signature_or_automation_secret (got %q)", cfg.Webhook.Policy)
	}

	if _, err := ParseMaxBodySize(cfg.Webhook.MaxBodySize); err != nil {
		return fmt.Errorf("webhook.max_body_size %q: %w", cfg.Webhook.MaxBodySize, err)
	}

	// Admin auth validation. api_key remains supported for back-compat.
	if envVarPattern.MatchString(cfg.API.APIKey) {
		matches := envVarPattern.FindStringSubmatch(cfg.API.APIKey)
		if len(matches) > 1 {
			return fmt.Errorf("api.api_key: environment variable ${%s} is not set", matches[1])
		}
		return fmt.Errorf("api.api_key: unresolved environment variable")
	}
	for i, tok := range cfg.API.Tokens {
		if tok.Token == "" {
			return fmt.Errorf("api.tokens[%d].token is required", i)
		}
		if envVarPattern.MatchString(tok.Token) {
			matches := envVarPattern.FindStringSubmatch(tok.Token)
			if len(matches) > 1 {
				return fmt.Errorf("api.tokens[%d].token: environment variable ${%s} is not set", i, matches[1])
			}
			return fmt.Errorf("api.tokens[%d].token: unresolved environment variable", i)
		}
		if len(tok.Scopes) == 0 {
			return fmt.Errorf("api.tokens[%d].scopes must be non-empty", i)
		}
	}

	return nil
}

// MissingNotionVars lists required platform settings that are unset or carry
// an unexpanded ${VAR} placeholder. The OAuth handlers call this per-request
// (lazy validation); `config check` reports it ahead of time.
func MissingNotionVars(nc NotionConfig) []string {
	required := []struct {
		name  string
		value string
	}{
		{"NOTION_CLIENT_ID", nc.ClientID},
		{"NOTION_CLIENT_SECRET", nc.ClientSecret},
		{"NOTION_REDIRECT_URI", nc.RedirectURI},
		{"NOTION_WEBHOOK_CALLBACK_URL", nc.CallbackURL},
	}

	var missing []string
	for _, r := range required {
		if r.value == "" || envVarPattern.MatchString(r.value) {
			missing = append(missing, r.name)
		}
	}
	return missing
}

// ParseMaxBodySize parses size strings like "1MB", "512KB", "2048576" to bytes.
func ParseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return 0, nil
	}

	upper := strings.ToUpper(size)
	multiplier := int64(1)

	if strings.HasSuffix(upper, "KB") {
		multiplier = 1024
		size = strings.TrimSuffix(upper, "KB")
	} else if strings.HasSuffix(upper, "MB") {
		multiplier = 1024 * 1024
		size = strings.TrimSuffix(upper, "MB")
	} else if strings.HasSuffix(upper, "GB") {
		multiplier = 1024 * 1024 * 1024
		size = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result < 0 { // Check for overflow
		return 0, fmt.Errorf("size too large")
	}

	return result, nil
}
