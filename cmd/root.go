package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "coffee-finder",
	Short: "Find coffee shops near you and vote for your favourites",
	Long: `coffee-finder looks up coffee shops around a location, decorates them
with photos, and keeps a persisted vote count per shop.

Examples:
  coffee-finder serve
  coffee-finder nearby --lat-long "43.2490,-2.9401" --limit 3
  coffee-finder shop upvote 4b5a1d2cf964a520f2c322e3`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file (defaults to CONFIG_PATH or config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
