// =============================================================================
// Settlement Export - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every subcommand
// hangs off it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (settlement-export)
//   ├── processCmd  (settlement-export process)
//   ├── serveCmd    (settlement-export serve)
//   ├── validateCmd (settlement-export validate)
//   └── versionCmd  (settlement-export version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Loading a .env file so API keys can live outside config.yaml
//   3. Providing the shared config and logger loaders used by subcommands
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/settlement-export/internal/config"
	"github.com/ginjaninja78/settlement-export/internal/logger"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// envFile is loaded before any command runs. A missing file is ignored.
var envFile string

// verbose forces debug logging regardless of log_level.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "settlement-export",
	Short: "Settlement Export - Turn marketplace settlement reports into accounting documents",
	Long: `Settlement Export reads a marketplace date-range settlement report and
produces three CSV documents ready for import into an accounting system:
a Sales Order, an Invoice and a Credit Note file.

Key Features:
  - Per-organization locale mapping (usa, canada, mexico, or your own YAML)
  - Reconciliation checks that stop a bad report before anything is written
  - Daily exchange rates and state/country enrichment
  - Optional zip bundle and upload to a storage bucket
  - HTTP upload endpoint for form-based use

Example Usage:
  settlement-export process --file report.csv --org usa --start 2024-08-01 --end 2024-08-31
  settlement-export process                    # Every report in the input directory
  settlement-export serve                      # Start the upload endpoint
  settlement-export validate                   # Check organization configs`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		return nil
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().StringVar(
		&envFile,
		"env-file",
		".env",
		"Path to a .env file with API keys",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// =============================================================================
// SHARED LOADERS
// =============================================================================

// loadConfig loads the main config and every organization config, and builds
// the logger at the configured level.
func loadConfig() (*config.MainConfig, map[string]*config.OrganizationConfig, *logger.ZeroLogger, error) {
	mainConfig, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load main config: %w", err)
	}

	level := mainConfig.LogLevel
	if verbose {
		level = "debug"
	}
	log := logger.New(level)

	orgs, err := config.LoadOrganizationConfigs(mainConfig.OrganizationsDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load organization configs: %w", err)
	}

	return mainConfig, orgs, log, nil
}
