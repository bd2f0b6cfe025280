package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/migrator/internal/config"
	"github.com/TheMichaelB/migrator/internal/events"
	"github.com/TheMichaelB/migrator/internal/services/migration"
	"github.com/TheMichaelB/migrator/internal/state"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	verbose      bool

	cfg     *config.Config
	logger  *events.Logger
	history state.Store
)

var rootCmd = &cobra.Command{
	Use:   "migrator",
	Short: "Export and import the configuration of an installation",
	Long: `Migrator captures the configuration of an installation into a portable,
optionally encrypted archive and restores it onto another installation.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if history != nil {
			return history.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file (default: ./migrator.json, ~/.config/migrator/migrator.json)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "",
		"Installation home (overrides config)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "text",
		"Output format: text, json or yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// setup loads the configuration and the logger shared by every command.
func setup(cmd *cobra.Command, args []string) error {
	switch outputFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("invalid output format: %s", outputFormat)
	}

	if cmd.Annotations["skipSetup"] == "true" {
		logger = events.Nop()
		return nil
	}

	loaded, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}
	cfg = loaded

	if homeDir != "" {
		cfg.Home = homeDir
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	if logger, err = events.NewLogger(&cfg.Log); err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(logger)

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	if cfg.History.Enabled {
		history, err = state.Open(cfg.History.Backend, cfg.ResolvePath(cfg.History.Path), logger)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
	}

	return nil
}

func newService() (*migration.Service, error) {
	return migration.NewService(cfg, history, logger)
}
