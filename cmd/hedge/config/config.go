// Package configcmder provides the config command for managing persistent
// hedge configuration stored in the .hedge/ directory.
package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/hedge/pkg/config"
)

const configLongDesc string = `Manage persistent hedge configuration.

Configuration is stored as config.toml in the .hedge/ directory and provides
default values for command flags. Environment variables (HEDGE_*) override
the file, and CLI flags always take precedence over both.

Keys use dotted notation matching the TOML section structure:
  storage.sqlite_path, storage.postgres_dsn,
  agent.target, agent.path, agent.timeout,
  proxy.listen, api.listen, client.proxy_target,
  stream.flush_interval_ms, stream.queue_size, stream.workers,
  eventstream.kafka_brokers, eventstream.kafka_topic,
  log.level

Use subcommands to get, set, or list configuration values:
  hedge config set <key> <value>    Set a configuration value
  hedge config get <key>            Get a configuration value
  hedge config list                 List all configuration values

Examples:
  hedge config set agent.target http://localhost:8000
  hedge config set stream.workers 4
  hedge config get agent.target
  hedge config list`

const configShortDesc string = "Manage persistent hedge configuration"

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

func validKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
