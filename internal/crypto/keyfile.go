package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// LoadKey reads the archive key stored at path. Sealed key files need the
// passphrase they were sealed with.
func LoadKey(path, passphrase string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	content := string(data)
	if IsSealed(content) {
		return OpenKey(content, passphrase)
	}
	return DecodeKey(content)
}

// LoadOrCreateKey loads the key stored at path or, when the file does not
// exist yet, generates one and persists it. The file is created exclusively so
// two processes racing on the same archive end up sharing one key. A non
// empty passphrase seals newly created keys.
func LoadOrCreateKey(path, passphrase string) ([]byte, error) {
	key, err := LoadKey(path, passphrase)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return key, err
	}

	key, err = GenerateKey()
	if err != nil {
		return nil, err
	}

	content := EncodeKey(key)
	if passphrase != "" {
		if content, err = SealKey(key, passphrase); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, fs.ErrExist) {
		// Lost the race, use the winner's key.
		return LoadKey(path, passphrase)
	}
	if err != nil {
		return nil, fmt.Errorf("create key file: %w", err)
	}

	if _, err := file.WriteString(content); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write key file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close key file: %w", err)
	}

	return key, nil
}
