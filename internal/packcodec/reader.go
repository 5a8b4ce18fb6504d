package packcodec

import (
	"bytes"
	"crypto/cipher"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"
)

// rawEntry is one decoded-but-still-sealed entry as it appears in the
// archive body.
type rawEntry struct {
	name             string
	uncompressedSize int
	ciphertext       []byte
}

// Reader parses a finalized pack archive and yields its entries by index
// or by name, decrypting and decompressing on demand rather than eagerly.
type Reader struct {
	salt    []byte
	aead    cipher.AEAD
	dec     *zstd.Decoder
	entries []rawEntry
}

// Open parses the archive in data, deriving the decryption key from
// passphrase and the salt recorded in the archive header.
func Open(passphrase string, data []byte) (*Reader, error) {
	br := bytes.NewReader(data)
	salt, err := readMagicAndSalt(br)
	if err != nil {
		return nil, err
	}
	key := deriveKey(passphrase, salt)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("packcodec: build AEAD: %w", err)
	}
	dec, err := newZstdDecoder()
	if err != nil {
		return nil, err
	}

	rd := byteReader{Reader: br}
	count, err := readUvarint(rd)
	if err != nil {
		return nil, fmt.Errorf("packcodec: read entry count: %w", err)
	}

	entries := make([]rawEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		nameLen, err := readUvarint(rd)
		if err != nil {
			return nil, fmt.Errorf("packcodec: read entry %d name length: %w", i, err)
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(br, nameBuf); err != nil {
			return nil, fmt.Errorf("packcodec: read entry %d name: %w", i, err)
		}
		uncompressedLen, err := readUvarint(rd)
		if err != nil {
			return nil, fmt.Errorf("packcodec: read entry %d uncompressed length: %w", i, err)
		}
		ciphertextLen, err := readUvarint(rd)
		if err != nil {
			return nil, fmt.Errorf("packcodec: read entry %d ciphertext length: %w", i, err)
		}
		ciphertext := make([]byte, ciphertextLen)
		if _, err := io.ReadFull(br, ciphertext); err != nil {
			return nil, fmt.Errorf("packcodec: read entry %d ciphertext: %w", i, err)
		}
		entries = append(entries, rawEntry{
			name:             string(nameBuf),
			uncompressedSize: int(uncompressedLen),
			ciphertext:       ciphertext,
		})
	}

	return &Reader{salt: salt, aead: aead, dec: dec, entries: entries}, nil
}

// Entries returns the name and declared uncompressed size of every chunk in
// the archive, in pack order.
func (r *Reader) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = Entry{Name: e.name, UncompressedSize: e.uncompressedSize}
	}
	return out
}

// Open decrypts and decompresses the named entry, verifying that the
// result's length matches what the archive header declared.
func (r *Reader) Open(name string) ([]byte, error) {
	for i, e := range r.entries {
		if e.name != name {
			continue
		}
		return r.decode(uint32(i), e)
	}
	return nil, fmt.Errorf("packcodec: no entry named %q", name)
}

// OpenAt decrypts and decompresses the entry at index, for callers
// streaming through a pack positionally rather than by chunk name.
func (r *Reader) OpenAt(index int) ([]byte, error) {
	if index < 0 || index >= len(r.entries) {
		return nil, fmt.Errorf("packcodec: index %d out of range", index)
	}
	return r.decode(uint32(index), r.entries[index])
}

func (r *Reader) decode(index uint32, e rawEntry) ([]byte, error) {
	compressed, err := r.aead.Open(nil, entryNonce(index), e.ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("packcodec: decrypt entry %q: %w", e.name, err)
	}
	plaintext, err := r.dec.DecodeAll(compressed, make([]byte, 0, e.uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("packcodec: decompress entry %q: %w", e.name, err)
	}
	if len(plaintext) != e.uncompressedSize {
		return nil, fmt.Errorf("packcodec: entry %q decompressed to %d bytes, header declared %d",
			e.name, len(plaintext), e.uncompressedSize)
	}
	return plaintext, nil
}
