// Package servecmder provides the serve command that runs the routing proxy.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/papercomputeco/switchboard/pkg/config"
	"github.com/papercomputeco/switchboard/pkg/convert"
	"github.com/papercomputeco/switchboard/pkg/dotdir"
	"github.com/papercomputeco/switchboard/pkg/eventstream"
	"github.com/papercomputeco/switchboard/pkg/eventstream/kafka"
	"github.com/papercomputeco/switchboard/pkg/eventstream/nop"
	"github.com/papercomputeco/switchboard/pkg/llm/dialect"
	"github.com/papercomputeco/switchboard/pkg/logger"
	"github.com/papercomputeco/switchboard/pkg/metrics"
	"github.com/papercomputeco/switchboard/pkg/routing"
	"github.com/papercomputeco/switchboard/pkg/storage"
	"github.com/papercomputeco/switchboard/pkg/storage/inmemory"
	"github.com/papercomputeco/switchboard/pkg/storage/postgres"
	"github.com/papercomputeco/switchboard/pkg/storage/sqlite"
	"github.com/papercomputeco/switchboard/pkg/upstream"
	"github.com/papercomputeco/switchboard/proxy"
)

type serveCommander struct {
	configDir string
	debug     bool
	cfg       *config.Config

	// Flag targets. Their resolved values are read back from viper.
	listen        string
	timeout       string
	maxTokens     uint
	anthropicURL  string
	openaiURL     string
	defaultFamily string
	storageDriver string
	sqlitePath    string
	postgresDSN   string
	kafkaBrokers  string
	kafkaTopic    string
	workers       uint
	queueSize     uint
	logFile       string

	logger *slog.Logger
}

var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagTimeout,
	config.FlagMaxTokens,
	config.FlagAnthropicURL,
	config.FlagOpenAIURL,
	config.FlagDefaultFamily,
	config.FlagStorage,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagWorkers,
	config.FlagQueueSize,
	config.FlagLogFile,
}

const serveLongDesc string = `Run the switchboard proxy.

The proxy serves POST /v1/messages and POST /v1/chat/completions. Each call
is routed by model to the anthropic or openai provider family and converted
between dialects when the client and the provider speak different ones.
Streaming calls are converted chunk by chunk.

Every call is logged asynchronously to the configured storage driver
(memory, sqlite, postgres or none), counted in Prometheus metrics on
/metrics, and optionally published to Kafka.

Configuration precedence: flags, SWITCHBOARD_* environment variables
(also read from .env), config.toml, defaults.`

const serveShortDesc string = "Run the switchboard proxy"

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			debug, _ := cmd.Flags().GetBool("debug")

			cfg, err := cmder.loadConfig(cmd)
			if err != nil {
				return err
			}
			cmder.cfg = cfg
			cmder.debug = debug || cfg.Log.Debug
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return cmder.run(ctx)
		},
	}

	fs := config.ServeFlags
	config.AddStringFlag(cmd, fs, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, fs, config.FlagTimeout, &cmder.timeout)
	config.AddUintFlag(cmd, fs, config.FlagMaxTokens, &cmder.maxTokens)
	config.AddStringFlag(cmd, fs, config.FlagAnthropicURL, &cmder.anthropicURL)
	config.AddStringFlag(cmd, fs, config.FlagOpenAIURL, &cmder.openaiURL)
	config.AddStringFlag(cmd, fs, config.FlagDefaultFamily, &cmder.defaultFamily)
	config.AddStringFlag(cmd, fs, config.FlagStorage, &cmder.storageDriver)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, fs, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, fs, config.FlagKafkaTopic, &cmder.kafkaTopic)
	config.AddUintFlag(cmd, fs, config.FlagWorkers, &cmder.workers)
	config.AddUintFlag(cmd, fs, config.FlagQueueSize, &cmder.queueSize)
	config.AddStringFlag(cmd, fs, config.FlagLogFile, &cmder.logFile)

	return cmd
}

// loadConfig layers flags and environment over config.toml.
func (c *serveCommander) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.InitViper(c.configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)

	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := config.Resolve(v, cfg); err != nil {
		return nil, fmt.Errorf("resolving config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *serveCommander) run(ctx context.Context) error {
	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(interactive),
		logger.WithJSON(!interactive),
		logger.WithFile(c.cfg.Log.File),
	)

	proxyConfig, err := c.proxyConfig()
	if err != nil {
		return err
	}

	driver, err := c.newStorageDriver(ctx)
	if err != nil {
		return err
	}
	if driver != nil {
		defer driver.Close()
	}

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()
	proxyConfig.Publisher = publisher

	p, err := proxy.New(proxyConfig, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}

	c.logger.Info("starting switchboard",
		"listen", proxyConfig.ListenAddr,
		"families", proxyConfig.Routing.Families(),
		"storage", c.cfg.Storage.Driver,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.Run(); err != nil {
			return fmt.Errorf("proxy error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("shutting down")
		// Close drains the worker pool, so it must finish before the driver
		// and publisher are closed by the deferred calls above.
		return p.Close()
	})

	return g.Wait()
}

// proxyConfig builds everything the proxy needs apart from storage and
// publishing.
func (c *serveCommander) proxyConfig() (proxy.Config, error) {
	cfg := c.cfg

	timeout, err := cfg.Proxy.TimeoutDuration()
	if err != nil {
		return proxy.Config{}, err
	}

	table, err := newRoutingTable(cfg.Routing)
	if err != nil {
		return proxy.Config{}, fmt.Errorf("building routing table: %w", err)
	}

	overrides, err := cfg.FinishOverrides()
	if err != nil {
		return proxy.Config{}, err
	}
	finish, err := dialect.NewFinishTable(overrides)
	if err != nil {
		return proxy.Config{}, fmt.Errorf("building finish reason table: %w", err)
	}

	client, err := upstream.NewClient(map[dialect.Family]upstream.Endpoint{
		dialect.Anthropic: {
			BaseURL: cfg.Providers.Anthropic.BaseURL,
			APIKey:  cfg.Providers.Anthropic.APIKey,
			Version: cfg.Providers.Anthropic.Version,
		},
		dialect.OpenAI: {
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			APIKey:  cfg.Providers.OpenAI.APIKey,
		},
	}, upstream.WithLogger(c.logger))
	if err != nil {
		return proxy.Config{}, fmt.Errorf("creating upstream client: %w", err)
	}

	return proxy.Config{
		ListenAddr: cfg.Proxy.Listen,
		Timeout:    timeout,
		Routing:    table,
		Provider:   client,
		Converter: convert.New(convert.Config{
			Finish:           finish,
			DefaultMaxTokens: cfg.Proxy.DefaultMaxTokens,
		}),
		Metrics:    metrics.NewRecorder(),
		NumWorkers: cfg.Worker.NumWorkers,
		QueueSize:  cfg.Worker.QueueSize,
	}, nil
}

func newRoutingTable(rc config.RoutingConfig) (*routing.Table, error) {
	opts := make([]routing.Option, 0, 3)

	models := make([]routing.Model, 0, len(rc.Models))
	for _, m := range rc.Models {
		models = append(models, routing.Model{
			Name:          m.Name,
			Family:        dialect.Family(m.Family),
			UpstreamModel: m.UpstreamModel,
		})
	}
	opts = append(opts, routing.WithModels(models...))

	if len(rc.Prefixes) > 0 {
		prefixes := make([]routing.Prefix, 0, len(rc.Prefixes))
		for _, p := range rc.Prefixes {
			prefixes = append(prefixes, routing.Prefix{Prefix: p.Prefix, Family: dialect.Family(p.Family)})
		}
		opts = append(opts, routing.WithPrefixes(prefixes...))
	}

	if rc.DefaultFamily != "" {
		opts = append(opts, routing.WithDefaultFamily(dialect.Family(rc.DefaultFamily)))
	}

	return routing.NewTable(opts...)
}

// newStorageDriver returns nil when call logging is disabled.
func (c *serveCommander) newStorageDriver(ctx context.Context) (storage.Driver, error) {
	sc := c.cfg.Storage

	switch sc.Driver {
	case config.StorageNone:
		c.logger.Info("call log storage disabled")
		return nil, nil

	case config.StorageMemory:
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case config.StorageSQLite:
		path, err := dotdir.NewManager().SQLitePath(c.configDir, sc.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("resolving SQLite path: %w", err)
		}
		driver, err := sqlite.NewSQLiteDriver(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", path)
		return driver, nil

	case config.StoragePostgres:
		driver, err := postgres.NewDriver(ctx, sc.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return driver, nil
	}

	return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	ec := c.cfg.EventStream
	if len(ec.KafkaBrokers) == 0 {
		return nop.NewPublisher(), nil
	}

	publisher, err := kafka.NewPublisher(kafka.Config{
		Brokers: ec.KafkaBrokers,
		Topic:   ec.KafkaTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	c.logger.Info("publishing call events to kafka",
		"brokers", ec.KafkaBrokers,
		"topic", ec.KafkaTopic,
	)
	return publisher, nil
}
