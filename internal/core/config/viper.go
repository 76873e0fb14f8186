package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/solatis/wafscope/internal/types"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*DebuggerAPIConfig, error) {
	return LoadConfigWith(viper.New(), configPath)
}

// LoadConfigWith loads configuration into v, which may already carry bound
// CLI flags (cobra persistent flags bound with v.BindPFlag).
func LoadConfigWith(v *viper.Viper, configPath string) (*DebuggerAPIConfig, error) {
	def := DefaultDebuggerAPIConfig()

	// Set defaults matching DefaultDebuggerAPIConfig
	v.SetDefault("debugger_api.host", def.Host)
	v.SetDefault("debugger_api.port", def.Port)
	v.SetDefault("debugger_api.request_timeout", def.RequestTimeout.String())
	v.SetDefault("debugger_api.max_sessions", def.MaxSessions)
	v.SetDefault("debugger_api.session_ttl", def.SessionTTL.String())
	v.SetDefault("debugger_api.max_rules", def.MaxRules)
	v.SetDefault("debugger_api.regex_cache_size", def.RegexCacheSize)
	v.SetDefault("debugger_api.regex_timeout", def.RegexTimeout.String())
	v.SetDefault("debugger_api.data_dir", def.DataDir)

	// Bind environment variables with WS_ prefix
	v.SetEnvPrefix("WS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Security check: reject secrets in config files
	// Secrets must be environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &DebuggerAPIConfig{
		Host:           v.GetString("debugger_api.host"),
		Port:           v.GetInt("debugger_api.port"),
		RequestTimeout: v.GetDuration("debugger_api.request_timeout"),
		MaxSessions:    v.GetInt("debugger_api.max_sessions"),
		SessionTTL:     v.GetDuration("debugger_api.session_ttl"),
		MaxRules:       v.GetInt("debugger_api.max_rules"),
		RegexCacheSize: v.GetInt("debugger_api.regex_cache_size"),
		RegexTimeout:   v.GetDuration("debugger_api.regex_timeout"),
		DataDir:        v.GetString("debugger_api.data_dir"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range and positive limits.
func validateConfig(cfg *DebuggerAPIConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive, got %d", cfg.MaxSessions)
	}
	if cfg.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %v", cfg.SessionTTL)
	}
	if cfg.MaxRules <= 0 || cfg.MaxRules > types.MaxRules {
		return fmt.Errorf("max_rules must be between 1 and %d, got %d", types.MaxRules, cfg.MaxRules)
	}
	if cfg.RegexCacheSize <= 0 {
		return fmt.Errorf("regex_cache_size must be positive, got %d", cfg.RegexCacheSize)
	}
	if cfg.RegexTimeout <= 0 {
		return fmt.Errorf("regex_timeout must be positive, got %v", cfg.RegexTimeout)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("debugger_api.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use WS_HMAC_SECRET environment variable)")
	}
	return nil
}
