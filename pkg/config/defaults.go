package config

// Storage driver names.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageNone     = "none"
)

const (
	defaultProxyListen      = ":8080"
	defaultProxyTimeout     = "30s"
	defaultMaxTokens        = 1000
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicVersion = "2023-06-01"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultStorageDriver    = StorageSQLite
	defaultKafkaTopic       = "switchboard.calls"
	defaultNumWorkers       = 3
	defaultQueueSize        = 256
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Proxy: ProxyConfig{
			Listen:           defaultProxyListen,
			Timeout:          defaultProxyTimeout,
			DefaultMaxTokens: defaultMaxTokens,
		},
		Providers: ProvidersConfig{
			Anthropic: ProviderConfig{
				BaseURL: defaultAnthropicBaseURL,
				Version: defaultAnthropicVersion,
			},
			OpenAI: ProviderConfig{
				BaseURL: defaultOpenAIBaseURL,
			},
		},
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		EventStream: EventStreamConfig{
			KafkaTopic: defaultKafkaTopic,
		},
		Worker: WorkerConfig{
			NumWorkers: defaultNumWorkers,
			QueueSize:  defaultQueueSize,
		},
	}
}
