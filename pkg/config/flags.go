package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline.
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "proxy.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagListen        = "listen"
	FlagTimeout       = "timeout"
	FlagMaxTokens     = "default-max-tokens"
	FlagAnthropicURL  = "anthropic-url"
	FlagOpenAIURL     = "openai-url"
	FlagDefaultFamily = "default-family"
	FlagStorage       = "storage"
	FlagSQLite        = "sqlite"
	FlagPostgres      = "postgres"
	FlagKafkaBrokers  = "kafka-brokers"
	FlagKafkaTopic    = "kafka-topic"
	FlagWorkers       = "workers"
	FlagQueueSize     = "queue-size"
	FlagLogFile       = "log-file"
)

// ServeFlags are the flags accepted by "switchboard serve".
var ServeFlags = FlagSet{
	FlagListen:        {Name: "listen", Shorthand: "l", ViperKey: "proxy.listen", Description: "Address for the proxy to listen on"},
	FlagTimeout:       {Name: "timeout", Shorthand: "t", ViperKey: "proxy.timeout", Description: "Timeout for each provider call"},
	FlagMaxTokens:     {Name: "default-max-tokens", ViperKey: "proxy.default_max_tokens", Description: "max_tokens applied when converting into the messages dialect"},
	FlagAnthropicURL:  {Name: "anthropic-url", ViperKey: "providers.anthropic.base_url", Description: "Base URL of the anthropic provider"},
	FlagOpenAIURL:     {Name: "openai-url", ViperKey: "providers.openai.base_url", Description: "Base URL of the openai provider"},
	FlagDefaultFamily: {Name: "default-family", ViperKey: "routing.default_family", Description: "Provider family for models no rule matches (anthropic, openai)"},
	FlagStorage:       {Name: "storage", ViperKey: "storage.driver", Description: "Call log storage driver (memory, sqlite, postgres, none)"},
	FlagSQLite:        {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite database"},
	FlagPostgres:      {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagKafkaBrokers:  {Name: "kafka-brokers", ViperKey: "eventstream.kafka_brokers", Description: "Comma-separated Kafka brokers for call events"},
	FlagKafkaTopic:    {Name: "kafka-topic", ViperKey: "eventstream.kafka_topic", Description: "Kafka topic for call events"},
	FlagWorkers:       {Name: "workers", ViperKey: "worker.num_workers", Description: "Number of call log workers"},
	FlagQueueSize:     {Name: "queue-size", ViperKey: "worker.queue_size", Description: "Call log queue capacity"},
	FlagLogFile:       {Name: "log-file", ViperKey: "log.file", Description: "Also write logs to this rotated file"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
