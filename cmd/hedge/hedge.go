// Package hedgecmder
package hedgecmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/hedge/cmd/hedge/chat"
	configcmder "github.com/papercomputeco/hedge/cmd/hedge/config"
	servecmder "github.com/papercomputeco/hedge/cmd/hedge/serve"
	versioncmder "github.com/papercomputeco/hedge/cmd/version"
)

const hedgeLongDesc string = `Hedge relays agent chat streams and keeps replayable transcripts.

Run services using:
  hedge serve          Run the chat relay and the transcript API together

Talk to an agent using:
  hedge chat           Interactive chat through the relay (or --direct)`

const hedgeShortDesc string = "Hedge - Agent Chat Streams"

func NewHedgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hedge",
		Short:         hedgeShortDesc,
		Long:          hedgeLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .hedge/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
