package snapshotter

import (
	"fmt"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

// CatalogPriorTree implements PriorTree by flattening a previously
// completed snapshot's tree (fetched from the catalog) into a
// relpath -> Signature map, built once up front so repeated lookups during
// the walk are O(1).
type CatalogPriorTree struct {
	signatures map[string]Signature
}

// LoadCatalogPriorTree resolves root (a Snapshot's Tree digest) from cat
// and flattens it. An error here should not abort a backup: callers
// typically fall back to a nil PriorTree (rehash everything) when a prior
// tree cannot be loaded, since the worst case is wasted CPU, not
// incorrect output.
func LoadCatalogPriorTree(cat *catalog.Catalog, root catalog.Digest) (*CatalogPriorTree, error) {
	p := &CatalogPriorTree{signatures: make(map[string]Signature)}
	if err := p.flatten(cat, root, ""); err != nil {
		return nil, fmt.Errorf("snapshotter: load prior tree: %w", err)
	}
	return p, nil
}

func (p *CatalogPriorTree) flatten(cat *catalog.Catalog, treeDigest catalog.Digest, prefix string) error {
	tree, err := cat.GetTree(treeDigest)
	if err != nil {
		return err
	}
	for _, entry := range tree.Entries {
		relpath := entry.Name
		if prefix != "" {
			relpath = prefix + "/" + entry.Name
		}
		switch entry.Reference.Kind {
		case catalog.KindFile:
			file, err := cat.GetFile(entry.Reference.FileDigest)
			if err != nil {
				return err
			}
			p.signatures[relpath] = Signature{
				Size:  int64(file.Length),
				Mtime: entry.Mtime,
				Ctime: entry.Ctime,
				File:  entry.Reference.FileDigest,
			}
		case catalog.KindTree:
			if err := p.flatten(cat, entry.Reference.TreeDigest, relpath); err != nil {
				return err
			}
		}
	}
	return nil
}

// Lookup implements PriorTree.
func (p *CatalogPriorTree) Lookup(relpath string) (Signature, bool) {
	sig, ok := p.signatures[relpath]
	return sig, ok
}
