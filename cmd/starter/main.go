// Command starter is the operator CLI: it starts and nudges the expiry workflow, injects prompt
// events into running workflows, inspects them and migrates the store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"modbot/internal/config"
	"modbot/internal/logging"
)

var (
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "starter",
	Short: "Operate modbot workflows and storage",
	Long: `starter talks to the Temporal cluster and the store configured for modbot.

Examples:
  starter expiry start                      # Start the expiry sweeper if it is not running
  starter expiry sweep-now --reason backlog # Ask the sweeper for an immediate sweep
  starter signal ban-1001 --author 1001 --channel dm-1001 --content "see attached"
  starter status commission-1001            # Print the instance and audit log
  starter migrate                           # Create the store tables`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("MODBOT_CONFIG"), "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(expiryCmd)
	rootCmd.AddCommand(signalCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

// load reads the config and builds a console logger at the configured level.
func load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logCfg := cfg.Log
	logCfg.Format = "console"
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
