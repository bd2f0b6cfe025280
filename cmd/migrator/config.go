package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/migrator/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the migrator configuration",
}

var configInitCmd = &cobra.Command{
	Use:         "init <path>",
	Short:       "Write an example configuration file",
	Example:     `  migrator config init migrator.json`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"skipSetup": "true"},
	RunE:        runConfigInit,
}

var configForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false,
		"Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := args[0]

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.SaveExample(path); err != nil {
		return fmt.Errorf("write example config: %w", err)
	}

	printSuccess("Wrote example configuration to %s", path)
	return nil
}
