package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/migrator/internal/services/migration"
)

var importCmd = &cobra.Command{
	Use:   "import <archive>",
	Short: "Restore an exported archive onto the installation",
	Long: `Import restores every migratable recorded in the archive onto the
installation home. The archive must have been exported by the same product
version. The import stops at the first migratable that fails.`,
	Example: `  migrator import exported/exported-2.13.0-20240301101500.dar
  migrator import backup.dar --product-version 2.13.0 --passphrase-prompt`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	importProductVersion   string
	importPassphrasePrompt bool
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importProductVersion, "product-version", "",
		"Installed product version (default from config)")
	importCmd.Flags().BoolVar(&importPassphrasePrompt, "passphrase-prompt", false,
		"Prompt for the passphrase sealing the key file")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	path := args[0]

	svc, err := newService()
	if err != nil {
		return err
	}

	if importPassphrasePrompt {
		passphrase, err := promptPassphrase("Passphrase: ")
		if err != nil {
			return fmt.Errorf("read passphrase: %w", err)
		}
		svc.SetPassphrase(passphrase)
	}

	res, err := svc.Import(ctx, path, migration.ImportOptions{
		ProductVersion: importProductVersion,
	})
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	return printResult(res, path)
}
