// Package config loads addonplan settings from defaults, an optional YAML file
// and ADDONPLAN_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load
const EnvPrefix = "ADDONPLAN"

// Decision engines
const (
	EngineDeterministic = "deterministic"
	EngineAssisted      = "assisted"
)

// Ledger backends
const (
	BackendConfigMap = "configmap"
	BackendSQLite    = "sqlite"
	BackendBolt      = "bolt"
	BackendMemory    = "memory"
)

// Capability sources
const (
	SourceConfigMaps = "configmaps"
	SourceNodes      = "nodes"
	SourceStore      = "store"
)

type Config struct {
	Registry     RegistryConfig     `mapstructure:"registry"`
	CacheDir     string             `mapstructure:"cache_dir"`
	Decision     DecisionConfig     `mapstructure:"decision"`
	AI           AIConfig           `mapstructure:"ai"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Kube         KubeConfig         `mapstructure:"kube"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
}

type RegistryConfig struct {
	URL            string `mapstructure:"url"`
	TTLSeconds     int    `mapstructure:"ttl_seconds"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// TTL is the cache lifetime as a duration
func (r RegistryConfig) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// Timeout is the fetch timeout as a duration
func (r RegistryConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

type DecisionConfig struct {
	Engine          string `mapstructure:"engine"`
	MaxReasonLength int    `mapstructure:"max_reason_length"`
}

type AIConfig struct {
	Provider        string  `mapstructure:"provider"`
	BaseURL         string  `mapstructure:"base_url"`
	Model           string  `mapstructure:"model"`
	APIKey          string  `mapstructure:"api_key"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxOutputTokens int64   `mapstructure:"max_output_tokens"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
}

// Timeout bounds one inference call
func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

type LedgerConfig struct {
	Backend   string `mapstructure:"backend"`
	Namespace string `mapstructure:"namespace"`
	Name      string `mapstructure:"name"`
	Field     string `mapstructure:"field"`
	// Path is the database file of the sqlite and bolt backends
	Path string `mapstructure:"path"`
}

type KubeConfig struct {
	Config  string `mapstructure:"config"`
	Context string `mapstructure:"context"`
}

type CapabilitiesConfig struct {
	Source    string `mapstructure:"source"`
	Namespace string `mapstructure:"namespace"`
	Name      string `mapstructure:"name"`
	Field     string `mapstructure:"field"`
	// AgentNamespace holds the per-node ConfigMaps of the publishing agent
	AgentNamespace string `mapstructure:"agent_namespace"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	cacheDir := defaultCacheDir()

	v.SetDefault("registry.url", "")
	v.SetDefault("registry.ttl_seconds", 86400)
	v.SetDefault("registry.timeout_seconds", 5)
	v.SetDefault("cache_dir", cacheDir)
	v.SetDefault("decision.engine", EngineDeterministic)
	v.SetDefault("decision.max_reason_length", 300)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.temperature", 0.2)
	v.SetDefault("ai.max_output_tokens", 512)
	v.SetDefault("ai.timeout_seconds", 15)
	v.SetDefault("ledger.backend", BackendConfigMap)
	v.SetDefault("ledger.namespace", "kube-system")
	v.SetDefault("ledger.name", "addonplan-ledger")
	v.SetDefault("ledger.field", "ledger.json")
	v.SetDefault("ledger.path", filepath.Join(cacheDir, "ledger.db"))
	v.SetDefault("kube.config", "")
	v.SetDefault("kube.context", "")
	v.SetDefault("capabilities.source", SourceConfigMaps)
	v.SetDefault("capabilities.agent_namespace", "addonplan")
	v.SetDefault("capabilities.namespace", "kube-system")
	v.SetDefault("capabilities.name", "addonplan-nodes")
	v.SetDefault("capabilities.field", "nodes.json")
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "addonplan")
	}
	return ".addonplan"
}

// Load reads configuration. path may be empty, in which case only defaults and
// the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown enum values and impossible numbers
func (c *Config) Validate() error {
	switch c.Decision.Engine {
	case EngineDeterministic, EngineAssisted:
	default:
		return fmt.Errorf("invalid decision engine %q", c.Decision.Engine)
	}

	switch c.Ledger.Backend {
	case BackendConfigMap, BackendSQLite, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("invalid ledger backend %q", c.Ledger.Backend)
	}

	switch c.Capabilities.Source {
	case SourceConfigMaps, SourceNodes, SourceStore:
	default:
		return fmt.Errorf("invalid capabilities source %q", c.Capabilities.Source)
	}

	if c.Registry.TTLSeconds < 0 {
		return fmt.Errorf("registry ttl must not be negative, got %d", c.Registry.TTLSeconds)
	}
	if c.Registry.TimeoutSeconds <= 0 {
		return fmt.Errorf("registry timeout must be positive, got %d", c.Registry.TimeoutSeconds)
	}
	if c.Capabilities.Source == SourceConfigMaps && c.Capabilities.AgentNamespace == "" {
		return fmt.Errorf("capabilities agent namespace must be set for the %s source", SourceConfigMaps)
	}
	if c.AI.TimeoutSeconds <= 0 {
		return fmt.Errorf("ai timeout must be positive, got %d", c.AI.TimeoutSeconds)
	}
	return nil
}
