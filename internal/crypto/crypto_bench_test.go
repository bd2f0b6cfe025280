package crypto_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/TheMichaelB/migrator/internal/crypto"
)

func BenchmarkDeriveSealKey(b *testing.B) {
	salt := make([]byte, crypto.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		crypto.DeriveSealKey("password123", salt)
	}
}

func BenchmarkEncryptStream(b *testing.B) {
	key, err := crypto.GenerateKey()
	if err != nil {
		b.Fatal(err)
	}

	plaintext := make([]byte, 1024*1024) // 1MB
	if _, err := rand.Read(plaintext); err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(plaintext)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w, err := crypto.NewEncryptWriter(io.Discard, key)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := w.Write(plaintext); err != nil {
			b.Fatal(err)
		}
		if err := w.Close(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecryptStream(b *testing.B) {
	key, err := crypto.GenerateKey()
	if err != nil {
		b.Fatal(err)
	}

	plaintext := make([]byte, 1024*1024) // 1MB
	if _, err := rand.Read(plaintext); err != nil {
		b.Fatal(err)
	}

	var buf bytes.Buffer
	w, err := crypto.NewEncryptWriter(&buf, key)
	if err != nil {
		b.Fatal(err)
	}
	w.Write(plaintext)
	w.Close()
	ciphertext := buf.Bytes()

	b.SetBytes(int64(len(plaintext)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r, err := crypto.NewDecryptReader(bytes.NewReader(ciphertext), key)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := io.Copy(io.Discard, r); err != nil {
			b.Fatal(err)
		}
	}
}
