package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent switchboard configuration stored as
// config.toml in the .switchboard/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version       int                          `toml:"version"`
	Proxy         ProxyConfig                  `toml:"proxy"`
	Providers     ProvidersConfig              `toml:"providers"`
	Routing       RoutingConfig                `toml:"routing"`
	Storage       StorageConfig                `toml:"storage"`
	EventStream   EventStreamConfig            `toml:"eventstream"`
	Worker        WorkerConfig                 `toml:"worker"`
	Log           LogConfig                    `toml:"log"`
	FinishReasons map[string]map[string]string `toml:"finish_reasons,omitempty"`
}

// ProxyConfig holds proxy server settings.
type ProxyConfig struct {
	Listen string `toml:"listen,omitempty"`

	// Timeout bounds each provider call, as a Go duration string.
	Timeout string `toml:"timeout,omitempty"`

	// DefaultMaxTokens is applied when converting into the Messages dialect
	// without max_tokens.
	DefaultMaxTokens int `toml:"default_max_tokens,omitempty"`
}

// TimeoutDuration parses Timeout.
func (p ProxyConfig) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid proxy.timeout %q: %w", p.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("proxy.timeout must be positive, got %s", d)
	}
	return d, nil
}

// ProvidersConfig holds one endpoint per provider family.
type ProvidersConfig struct {
	Anthropic ProviderConfig `toml:"anthropic"`
	OpenAI    ProviderConfig `toml:"openai"`
}

// ProviderConfig is where one provider family is reached. An empty APIKey
// forwards the client's own credentials.
type ProviderConfig struct {
	BaseURL string `toml:"base_url,omitempty"`
	APIKey  string `toml:"api_key,omitempty"`
	Version string `toml:"version,omitempty"`
}

// RoutingConfig is the model routing table.
type RoutingConfig struct {
	DefaultFamily string         `toml:"default_family,omitempty"`
	Models        []ModelConfig  `toml:"models,omitempty"`
	Prefixes      []PrefixConfig `toml:"prefixes,omitempty"`
}

// ModelConfig is one exact model entry.
type ModelConfig struct {
	Name          string `toml:"name"`
	Family        string `toml:"family"`
	UpstreamModel string `toml:"upstream_model,omitempty"`
}

// PrefixConfig routes every model starting with Prefix to Family.
type PrefixConfig struct {
	Prefix string `toml:"prefix"`
	Family string `toml:"family"`
}

// StorageConfig selects the call-log storage backend.
type StorageConfig struct {
	// Driver is one of "memory", "sqlite", "postgres" or "none".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// EventStreamConfig configures call event publishing. Publishing is off
// unless brokers are set.
type EventStreamConfig struct {
	KafkaBrokers []string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `toml:"kafka_topic,omitempty"`
}

// WorkerConfig sizes the call-log worker pool.
type WorkerConfig struct {
	NumWorkers uint `toml:"num_workers,omitempty"`
	QueueSize  uint `toml:"queue_size,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Debug bool   `toml:"debug,omitempty"`
	File  string `toml:"file,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported scalar config keys.
// Keys use dotted notation matching the TOML section structure. The routing
// table and finish-reason overrides are edited in the file directly.
var configKeys = map[string]configKeyInfo{
	"proxy.listen":  stringKey(func(c *Config) *string { return &c.Proxy.Listen }),
	"proxy.timeout": {
		get: func(c *Config) string { return c.Proxy.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for proxy.timeout: %w", err)
			}
			c.Proxy.Timeout = v
			return nil
		},
	},
	"proxy.default_max_tokens": {
		get: func(c *Config) string {
			if c.Proxy.DefaultMaxTokens == 0 {
				return ""
			}
			return strconv.Itoa(c.Proxy.DefaultMaxTokens)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid value for proxy.default_max_tokens: %q", v)
			}
			c.Proxy.DefaultMaxTokens = n
			return nil
		},
	},
	"providers.anthropic.base_url": stringKey(func(c *Config) *string { return &c.Providers.Anthropic.BaseURL }),
	"providers.anthropic.api_key":  stringKey(func(c *Config) *string { return &c.Providers.Anthropic.APIKey }),
	"providers.anthropic.version":  stringKey(func(c *Config) *string { return &c.Providers.Anthropic.Version }),
	"providers.openai.base_url":    stringKey(func(c *Config) *string { return &c.Providers.OpenAI.BaseURL }),
	"providers.openai.api_key":     stringKey(func(c *Config) *string { return &c.Providers.OpenAI.APIKey }),
	"routing.default_family":       stringKey(func(c *Config) *string { return &c.Routing.DefaultFamily }),
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			switch v {
			case StorageMemory, StorageSQLite, StoragePostgres, StorageNone:
				c.Storage.Driver = v
				return nil
			}
			return fmt.Errorf("invalid value for storage.driver: %q (available: memory, sqlite, postgres, none)", v)
		},
	},
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"eventstream.kafka_brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.KafkaBrokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.KafkaBrokers = nil
			for b := range strings.SplitSeq(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.EventStream.KafkaBrokers = append(c.EventStream.KafkaBrokers, b)
				}
			}
			return nil
		},
	},
	"eventstream.kafka_topic": stringKey(func(c *Config) *string { return &c.EventStream.KafkaTopic }),
	"worker.num_workers":      uintKey("worker.num_workers", func(c *Config) *uint { return &c.Worker.NumWorkers }),
	"worker.queue_size":       uintKey("worker.queue_size", func(c *Config) *uint { return &c.Worker.QueueSize }),
	"log.debug": {
		get: func(c *Config) string { return strconv.FormatBool(c.Log.Debug) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for log.debug: %w", err)
			}
			c.Log.Debug = b
			return nil
		},
	},
	"log.file": stringKey(func(c *Config) *string { return &c.Log.File }),
}
