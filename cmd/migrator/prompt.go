package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read passphrase without echo
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}

	return string(passphrase), nil
}

// promptNewPassphrase asks twice for a passphrase that seals a new key.
func promptNewPassphrase() (string, error) {
	first, err := promptPassphrase("Passphrase: ")
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if first == "" {
		return "", errors.New("passphrase cannot be empty")
	}

	second, err := promptPassphrase("Confirm passphrase: ")
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}

	return first, nil
}
