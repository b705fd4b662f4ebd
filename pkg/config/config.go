package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/switchboard/pkg/dotdir"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .switchboard/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the sorted list of all supported configuration key names.
func ValidConfigKeys() []string {
	// Stable, logical order matching the TOML section layout.
	ordered := []string{
		"proxy.listen",
		"proxy.timeout",
		"proxy.default_max_tokens",
		"providers.anthropic.base_url",
		"providers.anthropic.api_key",
		"providers.anthropic.version",
		"providers.openai.base_url",
		"providers.openai.api_key",
		"routing.default_family",
		"storage.driver",
		"storage.sqlite_path",
		"storage.postgres_dsn",
		"eventstream.kafka_brokers",
		"eventstream.kafka_topic",
		"worker.num_workers",
		"worker.queue_size",
		"log.debug",
		"log.file",
	}

	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}
	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target
// .switchboard/ directory. If the file does not exist, returns
// NewDefaultConfig() so callers always receive a fully-populated Config.
// Fields explicitly set in the file override the defaults, and whole-value
// "${VAR}" strings are replaced from the environment.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	ExpandEnv(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Proxy.Listen == "" {
		cfg.Proxy.Listen = defaults.Proxy.Listen
	}
	if cfg.Proxy.Timeout == "" {
		cfg.Proxy.Timeout = defaults.Proxy.Timeout
	}
	if cfg.Proxy.DefaultMaxTokens == 0 {
		cfg.Proxy.DefaultMaxTokens = defaults.Proxy.DefaultMaxTokens
	}

	if cfg.Providers.Anthropic.BaseURL == "" {
		cfg.Providers.Anthropic.BaseURL = defaults.Providers.Anthropic.BaseURL
	}
	if cfg.Providers.Anthropic.Version == "" {
		cfg.Providers.Anthropic.Version = defaults.Providers.Anthropic.Version
	}
	if cfg.Providers.OpenAI.BaseURL == "" {
		cfg.Providers.OpenAI.BaseURL = defaults.Providers.OpenAI.BaseURL
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaults.Storage.Driver
	}

	if cfg.EventStream.KafkaTopic == "" {
		cfg.EventStream.KafkaTopic = defaults.EventStream.KafkaTopic
	}

	if cfg.Worker.NumWorkers == 0 {
		cfg.Worker.NumWorkers = defaults.Worker.NumWorkers
	}
	if cfg.Worker.QueueSize == 0 {
		cfg.Worker.QueueSize = defaults.Worker.QueueSize
	}
}

// ExpandEnv replaces every string value of the exact form "${VAR}" with the
// value of the environment variable VAR. Unset variables leave the value
// untouched. Partial references inside longer strings are not expanded.
func ExpandEnv(cfg *Config) {
	for _, key := range ValidConfigKeys() {
		info := configKeys[key]
		raw := info.get(cfg)
		if expanded, ok := expandValue(raw); ok {
			_ = info.set(cfg, expanded)
		}
	}

	for i := range cfg.EventStream.KafkaBrokers {
		if expanded, ok := expandValue(cfg.EventStream.KafkaBrokers[i]); ok {
			cfg.EventStream.KafkaBrokers[i] = expanded
		}
	}
	for i := range cfg.Routing.Models {
		m := &cfg.Routing.Models[i]
		m.Name, _ = expandOr(m.Name)
		m.Family, _ = expandOr(m.Family)
		m.UpstreamModel, _ = expandOr(m.UpstreamModel)
	}
	for i := range cfg.Routing.Prefixes {
		p := &cfg.Routing.Prefixes[i]
		p.Prefix, _ = expandOr(p.Prefix)
		p.Family, _ = expandOr(p.Family)
	}
}

func expandValue(s string) (string, bool) {
	name, ok := strings.CutPrefix(s, "${")
	if !ok {
		return "", false
	}
	name, ok = strings.CutSuffix(name, "}")
	if !ok || name == "" {
		return "", false
	}
	value, set := os.LookupEnv(name)
	if !set {
		return "", false
	}
	return value, true
}

func expandOr(s string) (string, bool) {
	if v, ok := expandValue(s); ok {
		return v, true
	}
	return s, false
}

// Validate checks cross-field constraints that a single key setter cannot.
func (cfg *Config) Validate() error {
	if _, err := cfg.Proxy.TimeoutDuration(); err != nil {
		return err
	}

	switch cfg.Storage.Driver {
	case StorageMemory, StorageNone:
	case StorageSQLite:
	case StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", cfg.Storage.Driver)
	}

	if cfg.Routing.DefaultFamily != "" {
		if _, err := dialect.ParseFamily(cfg.Routing.DefaultFamily); err != nil {
			return fmt.Errorf("routing.default_family: %w", err)
		}
	}
	for i, m := range cfg.Routing.Models {
		if m.Name == "" {
			return fmt.Errorf("routing.models[%d]: name is required", i)
		}
		if _, err := dialect.ParseFamily(m.Family); err != nil {
			return fmt.Errorf("routing.models[%d]: %w", i, err)
		}
	}
	for i, p := range cfg.Routing.Prefixes {
		if p.Prefix == "" {
			return fmt.Errorf("routing.prefixes[%d]: prefix is required", i)
		}
		if _, err := dialect.ParseFamily(p.Family); err != nil {
			return fmt.Errorf("routing.prefixes[%d]: %w", i, err)
		}
	}

	if _, err := cfg.FinishOverrides(); err != nil {
		return err
	}

	if len(cfg.EventStream.KafkaBrokers) > 0 && cfg.EventStream.KafkaTopic == "" {
		return errors.New("eventstream.kafka_topic is required when brokers are set")
	}
	return nil
}

// FinishOverrides returns the finish_reasons tables keyed by dialect.
func (cfg *Config) FinishOverrides() (map[dialect.Dialect]map[string]string, error) {
	if len(cfg.FinishReasons) == 0 {
		return nil, nil
	}
	out := make(map[dialect.Dialect]map[string]string, len(cfg.FinishReasons))
	for name, entries := range cfg.FinishReasons {
		d, err := dialect.ParseDialect(name)
		if err != nil {
			return nil, fmt.Errorf("finish_reasons: %w", err)
		}
		out[d] = entries
	}
	return out, nil
}

// SaveConfig persists the configuration to config.toml in the target .switchboard/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.loadRaw()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// loadRaw loads the file with defaults applied but "${VAR}" references left
// intact, so a set does not write secrets from the environment to disk.
func (c *Configer) loadRaw() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}
	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// PresetConfig returns a Config with sane defaults whose unmatched models
// fall through to the named provider family.
// Supported presets: "openai", "anthropic".
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()
	switch strings.ToLower(name) {
	case "openai":
		cfg.Routing.DefaultFamily = string(dialect.OpenAI)
		cfg.Providers.OpenAI.APIKey = "${OPENAI_API_KEY}"
	case "anthropic":
		cfg.Routing.DefaultFamily = string(dialect.Anthropic)
		cfg.Providers.Anthropic.APIKey = "${ANTHROPIC_API_KEY}"
	default:
		return nil, fmt.Errorf("unknown preset: %q (available: openai, anthropic)", name)
	}
	return cfg, nil
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"openai", "anthropic"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
