// Package switchboardcmder
package switchboardcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/switchboard/cmd/switchboard/config"
	initcmder "github.com/papercomputeco/switchboard/cmd/switchboard/init"
	servecmder "github.com/papercomputeco/switchboard/cmd/switchboard/serve"
	versioncmder "github.com/papercomputeco/switchboard/cmd/version"
)

const switchboardLongDesc string = `Switchboard is a routing proxy for LLM APIs.

Clients speak either the messages dialect (POST /v1/messages) or the chat
completions dialect (POST /v1/chat/completions). Each call is routed by model
to the anthropic or openai provider family, converted between dialects when
the two sides differ, and logged with its latency.

  switchboard init       Create a local .switchboard/ directory
  switchboard serve      Run the proxy
  switchboard config     Manage persistent configuration`

const switchboardShortDesc string = "Switchboard - LLM routing proxy"

func NewSwitchboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "switchboard",
		Short:         switchboardShortDesc,
		Long:          switchboardLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.switchboard or ~/.switchboard)")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
