package storage

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"github.com/yndnr/authcore-go/pkg/crypto/adaptive"
)

// Encrypted backup errors.
var (
	ErrPassphraseTooShort = errors.New("storage: backup passphrase too short (minimum 8 characters)")
	ErrNotEncrypted       = errors.New("storage: not an encrypted backup")
	ErrBackupCorrupt      = errors.New("storage: backup decryption failed - wrong passphrase or corrupted data")
	ErrBackupTruncated    = errors.New("storage: encrypted backup is truncated")
)

const (
	// MinPassphraseLength is the shortest accepted backup passphrase.
	MinPassphraseLength = 8

	backupMagic   = "ACBK"
	backupVersion = 1
	saltLength    = 16

	// backupChunkSize is the plaintext size of every frame but the last.
	backupChunkSize = 64 * 1024

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4

	frameFinal = 1
)

// An encrypted backup is a header followed by AEAD frames:
//
//	header: "ACBK" | version (1) | cipher name length (1) | cipher name | salt (16)
//	frame:  flags (1) | sealed length (4, big endian) | nonce+ciphertext+tag
//
// Each frame is sealed with its index and flags as additional data, so
// reordered, dropped or cut frames fail to open.

func backupKey(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooShort
	}
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, adaptive.KeySize), nil
}

func frameAD(index uint64, flags byte) []byte {
	ad := make([]byte, 9)
	binary.BigEndian.PutUint64(ad, index)
	ad[8] = flags
	return ad
}

type encryptWriter struct {
	w      io.Writer
	cipher adaptive.Cipher
	buf    []byte
	index  uint64
	closed bool
}

// NewEncryptWriter returns a writer that encrypts everything written to it
// with a key derived from passphrase. Close writes the final frame and must
// be called; it does not close w.
func NewEncryptWriter(w io.Writer, passphrase []byte) (io.WriteCloser, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("storage: backup salt: %w", err)
	}
	key, err := backupKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	c, err := adaptive.New(key)
	if err != nil {
		return nil, fmt.Errorf("storage: backup cipher: %w", err)
	}

	name := string(c.Type())
	var hdr bytes.Buffer
	hdr.WriteString(backupMagic)
	hdr.WriteByte(backupVersion)
	hdr.WriteByte(byte(len(name)))
	hdr.WriteString(name)
	hdr.Write(salt)
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return nil, err
	}

	return &encryptWriter{w: w, cipher: c}, nil
}

func (e *encryptWriter) Write(p []byte) (int, error) {
	if e.closed {
		return 0, errors.New("storage: write to closed backup writer")
	}
	e.buf = append(e.buf, p...)
	// The last chunk stays buffered until Close marks it final.
	for len(e.buf) > backupChunkSize {
		if err := e.writeFrame(e.buf[:backupChunkSize], 0); err != nil {
			return 0, err
		}
		e.buf = append(e.buf[:0], e.buf[backupChunkSize:]...)
	}
	return len(p), nil
}

func (e *encryptWriter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	err := e.writeFrame(e.buf, frameFinal)
	e.buf = nil
	return err
}

func (e *encryptWriter) writeFrame(plain []byte, flags byte) error {
	sealed, err := e.cipher.Encrypt(plain, frameAD(e.index, flags))
	if err != nil {
		return fmt.Errorf("storage: seal backup frame: %w", err)
	}
	var hdr [5]byte
	hdr[0] = flags
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(sealed)))
	if _, err := e.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := e.w.Write(sealed); err != nil {
		return err
	}
	e.index++
	return nil
}

type decryptReader struct {
	r      io.Reader
	cipher adaptive.Cipher
	plain  []byte
	index  uint64
	done   bool
}

// NewDecryptReader reads the header of an encrypted backup from r and
// returns a reader of the plaintext. Reads fail with ErrBackupCorrupt on a
// wrong passphrase and ErrBackupTruncated when the final frame is missing.
func NewDecryptReader(r io.Reader, passphrase []byte) (io.Reader, error) {
	var fixed [len(backupMagic) + 2]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, ErrNotEncrypted
	}
	if string(fixed[:len(backupMagic)]) != backupMagic {
		return nil, ErrNotEncrypted
	}
	if v := fixed[len(backupMagic)]; v != backupVersion {
		return nil, fmt.Errorf("storage: unsupported backup version %d", v)
	}

	rest := make([]byte, int(fixed[len(backupMagic)+1])+saltLength)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, ErrBackupTruncated
	}
	name, salt := rest[:len(rest)-saltLength], rest[len(rest)-saltLength:]

	key, err := backupKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	c, err := adaptive.NewWithType(key, adaptive.CipherType(name))
	if err != nil {
		return nil, fmt.Errorf("storage: backup cipher: %w", err)
	}
	return &decryptReader{r: r, cipher: c}, nil
}

func (d *decryptReader) Read(p []byte) (int, error) {
	for len(d.plain) == 0 {
		if d.done {
			return 0, io.EOF
		}
		if err := d.readFrame(); err != nil {
			return 0, err
		}
	}
	n := copy(p, d.plain)
	d.plain = d.plain[n:]
	return n, nil
}

func (d *decryptReader) readFrame() error {
	var hdr [5]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrBackupTruncated
		}
		return err
	}
	flags := hdr[0]
	size := binary.BigEndian.Uint32(hdr[1:])
	if flags&^frameFinal != 0 || int(size) > backupChunkSize+d.cipher.NonceSize()+d.cipher.Overhead() {
		return ErrBackupCorrupt
	}

	sealed := make([]byte, size)
	if _, err := io.ReadFull(d.r, sealed); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrBackupTruncated
		}
		return err
	}
	plain, err := d.cipher.Decrypt(sealed, frameAD(d.index, flags))
	if err != nil {
		return ErrBackupCorrupt
	}
	d.index++
	d.plain = plain
	d.done = flags&frameFinal != 0
	return nil
}
