package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt <archive>",
	Short: "Write a plain copy of an encrypted archive",
	Long: `Decrypt verifies an encrypted archive against its checksum file and
writes every entry, decrypted, into a plain zip file.`,
	Example: `  migrator decrypt exported/exported-2.13.0-20240301101500.dar
  migrator decrypt backup.dar -o backup.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runDecrypt,
}

var (
	decryptOutput           string
	decryptPassphrasePrompt bool
)

func init() {
	rootCmd.AddCommand(decryptCmd)

	decryptCmd.Flags().StringVarP(&decryptOutput, "out", "o", "",
		"Destination zip (default: archive name with .zip)")
	decryptCmd.Flags().BoolVar(&decryptPassphrasePrompt, "passphrase-prompt", false,
		"Prompt for the passphrase sealing the key file")
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	svc, err := newService()
	if err != nil {
		return err
	}

	if decryptPassphrasePrompt {
		passphrase, err := promptPassphrase("Passphrase: ")
		if err != nil {
			return fmt.Errorf("read passphrase: %w", err)
		}
		svc.SetPassphrase(passphrase)
	}

	res, err := svc.Decrypt(ctx, args[0], decryptOutput)
	if err != nil {
		return fmt.Errorf("decrypt: %w", err)
	}

	return printResult(res, res.Output)
}
