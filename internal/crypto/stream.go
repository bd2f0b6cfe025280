package crypto

import (
	"archive/zip"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// TrailerSize is the number of bytes each encrypted entry adds to its content.
const TrailerSize = crc32.Size

// IV is shared by the encrypting and decrypting side of every archive entry.
var IV = [BlockSize]byte{
	0x6d, 0x69, 0x67, 0x72, 0x61, 0x74, 0x69, 0x6f,
	0x6e, 0x2d, 0x61, 0x72, 0x63, 0x68, 0x69, 0x76,
}

// ErrStreamClosed is returned when writing to a closed encrypting stream.
var ErrStreamClosed = errors.New("encrypting stream is closed")

func newStream(key []byte) (cipher.Stream, error) {
	if err := ValidateKeySize(key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewCTR(block, IV[:]), nil
}

type encryptWriter struct {
	w      cipher.StreamWriter
	crc    hash.Hash32
	closed bool
}

// NewEncryptWriter wraps w so that everything written is encrypted with key.
// Close appends the encrypted CRC-32 of the plaintext; it does not close w.
func NewEncryptWriter(w io.Writer, key []byte) (io.WriteCloser, error) {
	stream, err := newStream(key)
	if err != nil {
		return nil, err
	}
	return &encryptWriter{
		w:   cipher.StreamWriter{S: stream, W: w},
		crc: crc32.NewIEEE(),
	}, nil
}

func (e *encryptWriter) Write(p []byte) (int, error) {
	if e.closed {
		return 0, ErrStreamClosed
	}
	n, err := e.w.Write(p)
	e.crc.Write(p[:n])
	return n, err
}

func (e *encryptWriter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var trailer [TrailerSize]byte
	binary.BigEndian.PutUint32(trailer[:], e.crc.Sum32())
	if _, err := e.w.Write(trailer[:]); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}
	return nil
}

type decryptReader struct {
	src     io.Reader
	crc     hash.Hash32
	pending []byte
	scratch []byte
	eof     bool
	err     error
}

// NewDecryptReader wraps r so that reads return the plaintext written through
// NewEncryptWriter. The trailer is verified once r is exhausted: a mismatch
// (wrong key, wrong algorithm or corrupted data) yields zip.ErrChecksum and
// a payload too short to carry a trailer yields zip.ErrFormat.
func NewDecryptReader(r io.Reader, key []byte) (io.Reader, error) {
	stream, err := newStream(key)
	if err != nil {
		return nil, err
	}
	return &decryptReader{
		src:     cipher.StreamReader{S: stream, R: r},
		crc:     crc32.NewIEEE(),
		scratch: make([]byte, 32*1024),
	}, nil
}

func (d *decryptReader) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	// Always hold back enough bytes for the trailer.
	for !d.eof && len(d.pending) <= TrailerSize {
		n, err := d.src.Read(d.scratch)
		d.pending = append(d.pending, d.scratch[:n]...)
		if errors.Is(err, io.EOF) {
			d.eof = true
		} else if err != nil {
			d.err = err
			return 0, err
		}
	}

	avail := len(d.pending) - TrailerSize
	if avail <= 0 {
		d.err = d.verify()
		return 0, d.err
	}

	n := copy(p, d.pending[:avail])
	d.crc.Write(p[:n])
	d.pending = append(d.pending[:0], d.pending[n:]...)
	return n, nil
}

func (d *decryptReader) verify() error {
	if len(d.pending) < TrailerSize {
		return zip.ErrFormat
	}
	if binary.BigEndian.Uint32(d.pending) != d.crc.Sum32() {
		return zip.ErrChecksum
	}
	return io.EOF
}
