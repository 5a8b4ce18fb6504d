package packstore

import (
	"context"
	"testing"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

func TestBuildBackendLocal(t *testing.T) {
	store := catalog.Store{
		ID:         "store-1",
		Kind:       catalog.StoreLocal,
		Properties: map[string]string{"basepath": t.TempDir()},
	}
	backend, err := BuildBackend(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	if backend.ID() != "store-1" {
		t.Errorf("ID() = %q, want store-1", backend.ID())
	}
	if !backend.IsLocal() {
		t.Error("expected a local backend to report IsLocal() == true")
	}
}

func TestBuildBackendLocalMissingBasepath(t *testing.T) {
	store := catalog.Store{ID: "store-1", Kind: catalog.StoreLocal}
	if _, err := BuildBackend(context.Background(), store); err == nil {
		t.Fatal("expected an error when basepath is missing")
	}
}

func TestBuildBackendUnsupportedKind(t *testing.T) {
	store := catalog.Store{ID: "store-1", Kind: catalog.StoreKind(99)}
	if _, err := BuildBackend(context.Background(), store); err == nil {
		t.Fatal("expected an error for an unsupported store kind")
	}
}

func TestBuildMultiAggregatesBackends(t *testing.T) {
	stores := []catalog.Store{
		{ID: "store-1", Kind: catalog.StoreLocal, Properties: map[string]string{"basepath": t.TempDir()}},
		{ID: "store-2", Kind: catalog.StoreLocal, Properties: map[string]string{"basepath": t.TempDir()}},
	}
	multi, err := BuildMulti(context.Background(), stores)
	if err != nil {
		t.Fatal(err)
	}
	if multi == nil {
		t.Fatal("expected a non-nil Multi")
	}
}

func TestBuildMultiFailsOnFirstBadStore(t *testing.T) {
	stores := []catalog.Store{
		{ID: "store-1", Kind: catalog.StoreLocal, Properties: map[string]string{"basepath": t.TempDir()}},
		{ID: "store-2", Kind: catalog.StoreMinio},
	}
	if _, err := BuildMulti(context.Background(), stores); err == nil {
		t.Fatal("expected an error when one store's properties are incomplete")
	}
}
