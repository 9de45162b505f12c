package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cargomarket",
	Short: "Cargo marketplace core connecting cargo owners and truck drivers",
	Long: `A service that matches cargo shipments with truck drivers, manages
bid applications through their lifecycle, and fans out notifications
and real-time dashboard updates.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			log.Error().Err(err).Msg("Failed to display help")
		}
	},
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize()
}
