package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/upb/askllm/internal/router"
)

const (
	// ConfigEnvVar lists the configured provider names, comma separated
	ConfigEnvVar = "ASKLLM_CONFIG"

	// ProvidersFileEnvVar points at an optional YAML provider list
	ProvidersFileEnvVar = "ASKLLM_PROVIDERS_FILE"

	defaultMaxPromptLength    = 100000
	defaultMaxAttachmentBytes = 20 << 20
)

var aliasPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Providers     []ProviderEntry
	Audit         AuditConfig
	Limits        LimitsConfig
	Observability ObservabilityConfig
	Environment   string

	// Warnings collects non-fatal problems found while loading (incomplete
	// provider entries). Callers log them once a logger exists.
	Warnings []string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	CORSOrigins     []string
}

// ProviderEntry is one configured provider as loaded from the environment or
// the providers file.
type ProviderEntry struct {
	Name    string // configuration key, e.g. GEMINI
	Alias   string // name callers use, e.g. gemini
	Model   string // litellm-style identifier, e.g. gemini/gemini-2.0-flash
	APIKey  string
	BaseURL string
	Source  string // "env" or the YAML file path
}

// AuditConfig holds the audit ledger connection string. Empty disables it.
type AuditConfig struct {
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// LimitsConfig bounds inbound requests
type LimitsConfig struct {
	MaxPromptLength    int
	MaxAttachmentBytes int
}

// ObservabilityConfig holds logging and metrics configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	LogFile        string // empty means stderr
	MetricsEnabled bool
}

// providersFile is the YAML layout of ASKLLM_PROVIDERS_FILE
type providersFile struct {
	Providers []struct {
		Name      string `yaml:"name"`
		Alias     string `yaml:"alias"`
		Model     string `yaml:"model"`
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
		BaseURL   string `yaml:"base_url"`
	} `yaml:"providers"`
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 180*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("ASKLLM_REQUEST_TIMEOUT", 120*time.Second),
			CORSOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Audit: AuditConfig{
			DSN:             getEnv("ASKLLM_AUDIT_DSN", ""),
			MaxOpenConns:    getEnvAsInt("ASKLLM_AUDIT_MAX_OPEN_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("ASKLLM_AUDIT_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Limits: LimitsConfig{
			MaxPromptLength:    getEnvAsInt("ASKLLM_MAX_PROMPT_LENGTH", defaultMaxPromptLength),
			MaxAttachmentBytes: getEnvAsInt("ASKLLM_MAX_ATTACHMENT_BYTES", defaultMaxAttachmentBytes),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			LogFile:        getEnv("LOG_FILE", ""),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if path := getEnv(ProvidersFileEnvVar, ""); path != "" {
		entries, warnings, err := loadProvidersFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Providers = entries
		cfg.Warnings = warnings
	}
	envEntries, warnings := loadEnvProviders()
	cfg.Providers = mergeProviders(cfg.Providers, envEntries)
	cfg.Warnings = append(cfg.Warnings, warnings...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the loaded configuration for values the router and
// dispatch layer cannot work with
func (c *Config) Validate() error {
	seen := make(map[string]string, len(c.Providers))
	for _, p := range c.Providers {
		if !aliasPattern.MatchString(p.Alias) {
			return fmt.Errorf("provider %s: alias %q must match %s", p.Name, p.Alias, aliasPattern)
		}
		if p.Model == "" {
			return fmt.Errorf("provider %s: model is required", p.Name)
		}
		key := strings.ToLower(p.Alias)
		if prev, exists := seen[key]; exists {
			return fmt.Errorf("provider %s: alias %q already used by %s", p.Name, p.Alias, prev)
		}
		seen[key] = p.Name
	}

	if c.Limits.MaxPromptLength <= 0 {
		return errors.New("max prompt length must be positive")
	}
	if c.Limits.MaxAttachmentBytes <= 0 {
		return errors.New("max attachment size must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}

	if c.Observability.LogLevel == "" {
		return errors.New("log level is required")
	}
	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q (want json or console)", c.Observability.LogFormat)
	}

	return nil
}

// ProviderConfigs converts the loaded entries into the router's table input
func (c *Config) ProviderConfigs() []router.ProviderConfig {
	configs := make([]router.ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		configs = append(configs, router.ProviderConfig{
			Alias:       p.Alias,
			Model:       p.Model,
			Credential:  p.APIKey,
			BaseURL:     p.BaseURL,
			DisplayName: p.Name,
		})
	}
	return configs
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// loadEnvProviders reads ASKLLM_CONFIG and the per-provider variables.
// Entries missing a model or key are skipped and reported as warnings.
func loadEnvProviders() ([]ProviderEntry, []string) {
	var (
		entries  []ProviderEntry
		warnings []string
		seen     = make(map[string]bool)
	)
	for _, raw := range strings.Split(os.Getenv(ConfigEnvVar), ",") {
		name := strings.ToUpper(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		prefix := "ASKLLM_" + name + "_"
		model := os.Getenv(prefix + "MODEL")
		apiKey := os.Getenv(prefix + "APIKEY")

		if missing := missingFields(model, apiKey); len(missing) > 0 {
			warnings = append(warnings, fmt.Sprintf("incomplete configuration for %s, missing: %s", name, strings.Join(missing, ", ")))
			continue
		}

		entries = append(entries, ProviderEntry{
			Name:    name,
			Alias:   getEnv(prefix+"NAME", strings.ToLower(name)),
			Model:   model,
			APIKey:  apiKey,
			BaseURL: os.Getenv(prefix + "BASE_URL"),
			Source:  "env",
		})
	}
	return entries, warnings
}

// loadProvidersFile parses the YAML provider list. api_key_env names an
// environment variable holding the key and wins over an inline api_key.
func loadProvidersFile(path string) ([]ProviderEntry, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse providers file %s: %w", path, err)
	}

	var warnings []string
	entries := make([]ProviderEntry, 0, len(file.Providers))
	for i, p := range file.Providers {
		if p.Name == "" && p.Alias == "" {
			return nil, nil, fmt.Errorf("providers file %s: entry %d needs a name or alias", path, i)
		}
		apiKey := p.APIKey
		if p.APIKeyEnv != "" {
			apiKey = os.Getenv(p.APIKeyEnv)
		}
		name := strings.ToUpper(p.Name)
		if name == "" {
			name = strings.ToUpper(p.Alias)
		}
		alias := p.Alias
		if alias == "" {
			alias = strings.ToLower(p.Name)
		}
		if missing := missingFields(p.Model, apiKey); len(missing) > 0 {
			warnings = append(warnings, fmt.Sprintf("incomplete configuration for %s in %s, missing: %s", name, path, strings.Join(missing, ", ")))
			continue
		}
		entries = append(entries, ProviderEntry{
			Name:    name,
			Alias:   alias,
			Model:   p.Model,
			APIKey:  apiKey,
			BaseURL: p.BaseURL,
			Source:  path,
		})
	}
	return entries, warnings, nil
}

func missingFields(model, apiKey string) []string {
	var missing []string
	if model == "" {
		missing = append(missing, "MODEL")
	}
	if apiKey == "" {
		missing = append(missing, "APIKEY")
	}
	return missing
}

// mergeProviders overlays env entries on file entries; an env entry replaces
// a file entry with the same alias (case-insensitive).
func mergeProviders(file, env []ProviderEntry) []ProviderEntry {
	overridden := make(map[string]bool, len(env))
	for _, e := range env {
		overridden[strings.ToLower(e.Alias)] = true
	}

	merged := make([]ProviderEntry, 0, len(file)+len(env))
	for _, f := range file {
		if !overridden[strings.ToLower(f.Alias)] {
			merged = append(merged, f)
		}
	}
	return append(merged, env...)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
