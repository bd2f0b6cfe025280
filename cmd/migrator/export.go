package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/migrator/internal/services/migration"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the installation configuration into an archive",
	Long: `Export runs every migratable against the installation home and writes
the result into a new archive named <prefix>-<version>-<timestamp>.dar.

Encrypted archives are accompanied by a key file and a checksum file.`,
	Example: `  migrator export
  migrator export --dir /backups --no-encrypt
  migrator export --passphrase-prompt`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var (
	exportDir              string
	exportNoEncrypt        bool
	exportPassphrasePrompt bool
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportDir, "dir", "d", "",
		"Archive directory (default from config)")
	exportCmd.Flags().BoolVar(&exportNoEncrypt, "no-encrypt", false,
		"Write a plain archive")
	exportCmd.Flags().BoolVar(&exportPassphrasePrompt, "passphrase-prompt", false,
		"Seal the key file with a passphrase")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	svc, err := newService()
	if err != nil {
		return err
	}

	if exportPassphrasePrompt && !exportNoEncrypt {
		passphrase, err := promptNewPassphrase()
		if err != nil {
			return err
		}
		svc.SetPassphrase(passphrase)
	}

	res, err := svc.Export(ctx, migration.ExportOptions{
		Dir:   exportDir,
		Plain: exportNoEncrypt,
	})
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	return printResult(res, res.Archive)
}
