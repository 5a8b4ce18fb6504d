package packcodec

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"
)

// Builder accumulates chunk payloads into one pack archive. The zero value
// is not usable; call Initialize first.
type Builder struct {
	passphrase string
	salt       []byte
	key        []byte
	aead       cipher.AEAD
	enc        *zstd.Encoder

	entries []Entry
	body    bytes.Buffer
}

// Initialize prepares a new pack keyed by a freshly generated random salt
// and the given passphrase, returning the salt so the caller can record it
// as Pack.crypto_salt.
func (b *Builder) Initialize(passphrase string) (salt []byte, err error) {
	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("packcodec: generate salt: %w", err)
	}
	return b.initWithSalt(passphrase, salt)
}

// initWithSalt sets up the builder's key, AEAD, and encoder for an already
// chosen salt; Initialize calls it with a freshly generated one.
func (b *Builder) initWithSalt(passphrase string, salt []byte) ([]byte, error) {
	key := deriveKey(passphrase, salt)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("packcodec: build AEAD: %w", err)
	}
	enc, err := newZstdEncoder()
	if err != nil {
		return nil, err
	}
	b.passphrase = passphrase
	b.salt = salt
	b.key = key
	b.aead = aead
	b.enc = enc
	return salt, nil
}

// AddChunk compresses and seals plaintext, appending it to the pack under
// name (typically the chunk's digest string). It returns the ciphertext
// length actually written, which callers can use to track the pack's
// accumulated on-disk size against a pack-size budget.
func (b *Builder) AddChunk(name string, plaintext []byte) (int, error) {
	if b.aead == nil {
		return 0, fmt.Errorf("packcodec: builder not initialized")
	}
	index := uint32(len(b.entries))
	compressed := b.enc.EncodeAll(plaintext, nil)
	ciphertext := b.aead.Seal(nil, entryNonce(index), compressed, nil)

	if err := putUvarint(&b.body, uint64(len(name))); err != nil {
		return 0, err
	}
	if _, err := b.body.WriteString(name); err != nil {
		return 0, err
	}
	if err := putUvarint(&b.body, uint64(len(plaintext))); err != nil {
		return 0, err
	}
	if err := putUvarint(&b.body, uint64(len(ciphertext))); err != nil {
		return 0, err
	}
	if _, err := b.body.Write(ciphertext); err != nil {
		return 0, err
	}

	b.entries = append(b.entries, Entry{Name: name, UncompressedSize: len(plaintext)})
	return len(ciphertext), nil
}

// Len reports the number of chunks added so far.
func (b *Builder) Len() int { return len(b.entries) }

// Entries returns the names and sizes of every chunk added so far, in
// write order.
func (b *Builder) Entries() []Entry {
	return append([]Entry(nil), b.entries...)
}

// Finalize assembles the complete archive bytes: magic, salt, entry count,
// then every entry written so far.
func (b *Builder) Finalize() ([]byte, error) {
	if b.aead == nil {
		return nil, fmt.Errorf("packcodec: builder not initialized")
	}
	var out bytes.Buffer
	if err := writeMagicAndSalt(&out, b.salt); err != nil {
		return nil, err
	}
	if err := putUvarint(&out, uint64(len(b.entries))); err != nil {
		return nil, err
	}
	if _, err := out.Write(b.body.Bytes()); err != nil {
		return nil, err
	}
	if b.enc != nil {
		b.enc.Close()
	}
	return out.Bytes(), nil
}
