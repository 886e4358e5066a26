// Package commands implements the atendebot CLI using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "atendebot",
		Short: "AtendeBot - WhatsApp concierge for venue rentals",
		Long: `AtendeBot answers WhatsApp messages for a venue-rental business:
menu-driven availability checks, amenity info, AI fallback for free-form
questions, and handoff to a human attendant.

Examples:
  atendebot serve
  atendebot serve --config ./config.yaml
  atendebot session clear`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSessionCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
