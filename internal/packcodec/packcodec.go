// Package packcodec implements the on-disk pack archive format: a
// self-describing, streaming container of chunk payloads, each
// zstd-compressed then sealed with ChaCha20-Poly1305 under a key derived
// from a per-pack passphrase and random salt via Argon2id.
//
// The format is deliberately simple compared to a general-purpose archive
// format: packs are write-once, read-sequentially-or-by-name, and never
// need random-access mutation, so there is no index beyond the inline
// entry headers.
package packcodec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// magic identifies the archive format and its version. A reader that sees
// any other four bytes at the start of a file refuses to parse it rather
// than guess.
var magic = [4]byte{'Z', 'P', 'K', '1'}

// saltSize is the length in bytes of the per-pack random salt used to
// derive the archive's encryption key from the configured passphrase.
const saltSize = 16

// Argon2id parameters, chosen for interactive-speed key derivation on a
// per-pack salt rather than for protecting a long-lived password at rest:
// each pack pays this cost once, at pack finalize or pack open time.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
)

// deriveKey runs Argon2id over passphrase and salt, yielding the 32-byte
// ChaCha20-Poly1305 key for one pack.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// entryNonce derives entry index's AEAD nonce deterministically from the
// entry's position in the pack, so nonces never collide within a pack
// without needing their own storage slot.
func entryNonce(index uint32) []byte {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)
	h := blake3.New()
	h.Write([]byte("entry"))
	h.Write(idx[:])
	sum := h.Sum(nil)
	return sum[:chacha20poly1305.NonceSize]
}

// Entry describes one chunk payload written into (or read from) a pack.
type Entry struct {
	Name             string
	UncompressedSize int
}

func putUvarint(w io.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

func readUvarint(r io.ByteReader) (uint64, error) {
	return binary.ReadUvarint(r)
}

// byteReader adapts a bytes.Reader (or any io.Reader we've already wrapped)
// so binary.ReadUvarint has the ReadByte it needs.
type byteReader struct {
	io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.Reader, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

var errBadMagic = fmt.Errorf("packcodec: not a ZPK1 archive")

func writeMagicAndSalt(w io.Writer, salt []byte) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if len(salt) > 255 {
		return fmt.Errorf("packcodec: salt too long (%d bytes)", len(salt))
	}
	if _, err := w.Write([]byte{byte(len(salt))}); err != nil {
		return err
	}
	_, err := w.Write(salt)
	return err
}

func readMagicAndSalt(r io.Reader) (salt []byte, err error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("packcodec: read magic: %w", err)
	}
	if hdr != magic {
		return nil, errBadMagic
	}
	var lenBuf [1]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("packcodec: read salt length: %w", err)
	}
	salt = make([]byte, lenBuf[0])
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, fmt.Errorf("packcodec: read salt: %w", err)
	}
	return salt, nil
}

func newZstdEncoder() (*zstd.Encoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("packcodec: zstd encoder: %w", err)
	}
	return enc, nil
}

func newZstdDecoder() (*zstd.Decoder, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("packcodec: zstd decoder: %w", err)
	}
	return dec, nil
}
