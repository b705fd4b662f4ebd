// Package configcmder provides the config command for managing persistent
// switchboard configuration stored in the .switchboard/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent switchboard configuration.

Configuration is stored as config.toml in the .switchboard/ directory and
provides default values for command flags. CLI flags and SWITCHBOARD_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  proxy.listen, proxy.timeout, proxy.default_max_tokens,
  providers.anthropic.base_url, providers.anthropic.api_key,
  providers.anthropic.version, providers.openai.base_url,
  providers.openai.api_key, routing.default_family,
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  eventstream.kafka_brokers, eventstream.kafka_topic,
  worker.num_workers, worker.queue_size, log.debug, log.file

Routing entries ([[routing.models]], [[routing.prefixes]]) and finish reason
overrides ([finish_reasons.<dialect>]) are edited in config.toml directly.

Examples:
  switchboard config set routing.default_family anthropic
  switchboard config set providers.openai.api_key '${OPENAI_API_KEY}'
  switchboard config get storage.driver
  switchboard config list`

const configShortDesc string = "Manage persistent switchboard configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
