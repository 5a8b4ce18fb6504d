// Package dbbackup implements the catalog self-backup protocol
// (SPEC_FULL.md §4.I): the catalog is shipped as a single-entry encrypted
// pack, distinct from regular data packs so prune never touches it, and can
// be retrieved and restored in place on demand.
package dbbackup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
	"github.com/nlfiedler/zorigami-sub002/internal/digest"
	"github.com/nlfiedler/zorigami-sub002/internal/packcodec"
	"github.com/nlfiedler/zorigami-sub002/internal/packstore"
)

// entryName is the single packcodec entry a database pseudo-pack carries.
const entryName = "database"

// CreateBackup snapshots cat via its own hot-backup primitive, wraps the
// snapshot as a single-entry encrypted pack, uploads it through store under
// the computer-id-derived database bucket, and records it in the catalog as
// a database pseudo-pack keyed separately from regular packs.
func CreateBackup(ctx context.Context, cat *catalog.Catalog, store *packstore.Multi, computerID, passphrase, workdir string) (catalog.Pack, error) {
	if workdir == "" {
		workdir = os.TempDir()
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return catalog.Pack{}, fmt.Errorf("dbbackup: create workspace %s: %w", workdir, err)
	}

	var raw bytes.Buffer
	if err := cat.CreateBackup(&raw); err != nil {
		return catalog.Pack{}, fmt.Errorf("dbbackup: snapshot catalog: %w", err)
	}

	builder := &packcodec.Builder{}
	salt, err := builder.Initialize(passphrase)
	if err != nil {
		return catalog.Pack{}, fmt.Errorf("dbbackup: initialize pack: %w", err)
	}
	if _, err := builder.AddChunk(entryName, raw.Bytes()); err != nil {
		return catalog.Pack{}, fmt.Errorf("dbbackup: add catalog entry: %w", err)
	}
	archive, err := builder.Finalize()
	if err != nil {
		return catalog.Pack{}, fmt.Errorf("dbbackup: finalize pack: %w", err)
	}

	packDigest := digest.HashBytes(digest.BLAKE3, archive)

	tmpFile := filepath.Join(workdir, "database-"+ulid.Make().String()+".tmp")
	if err := os.WriteFile(tmpFile, archive, 0o600); err != nil {
		return catalog.Pack{}, fmt.Errorf("dbbackup: write archive to workspace: %w", err)
	}
	defer os.Remove(tmpFile)

	locs, err := store.StoreDatabase(ctx, computerID, tmpFile)
	if err != nil {
		return catalog.Pack{}, fmt.Errorf("dbbackup: upload archive: %w", err)
	}

	pack := catalog.Pack{
		Digest:     packDigest,
		Locations:  locs,
		CryptoSalt: salt,
	}
	if err := cat.PutDatabasePack(pack); err != nil {
		return catalog.Pack{}, fmt.Errorf("dbbackup: insert database pack record: %w", err)
	}
	return pack, nil
}

// RestoreCatalog retrieves the most recently uploaded database pseudo-pack
// from store, decrypts it, and replaces the catalog file at catalogPath
// with its contents. It refuses via catalog.ErrAlreadyOpen when reg still
// holds a live reference to catalogPath — callers must stop every
// supervisor and restorer using that catalog, and close their handles,
// before calling this.
func RestoreCatalog(ctx context.Context, reg *catalog.Registry, catalogPath string, store *packstore.Multi, computerID, passphrase, workdir string) error {
	if workdir == "" {
		workdir = os.TempDir()
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return fmt.Errorf("dbbackup: create workspace %s: %w", workdir, err)
	}

	tmpFile := filepath.Join(workdir, "database-restore-"+ulid.Make().String()+".tmp")
	defer os.Remove(tmpFile)

	if err := store.RetrieveLatestDatabase(ctx, computerID, tmpFile); err != nil {
		return fmt.Errorf("dbbackup: retrieve latest archive: %w", err)
	}

	archive, err := os.ReadFile(tmpFile)
	if err != nil {
		return fmt.Errorf("dbbackup: read retrieved archive: %w", err)
	}

	reader, err := packcodec.Open(passphrase, archive)
	if err != nil {
		return fmt.Errorf("dbbackup: decrypt archive: %w", err)
	}
	raw, err := reader.Open(entryName)
	if err != nil {
		return fmt.Errorf("dbbackup: read catalog entry: %w", err)
	}

	var src io.Reader = bytes.NewReader(raw)
	if err := catalog.RestoreFromBackup(reg, catalogPath, src); err != nil {
		return fmt.Errorf("dbbackup: restore catalog: %w", err)
	}
	return nil
}
