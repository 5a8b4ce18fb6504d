package catalog

// Counts tallies the number of records of each kind currently in the
// catalog, used by administrative tooling and as a cheap sanity check in
// tests that a backup actually wrote what it claimed to.
func (c *Catalog) Counts() (RecordCounts, error) {
	var rc RecordCounts
	var err error
	if rc.Chunks, err = c.CountChunks(); err != nil {
		return rc, err
	}
	if rc.Files, err = c.CountFiles(); err != nil {
		return rc, err
	}
	if rc.Trees, err = c.CountTrees(); err != nil {
		return rc, err
	}
	if rc.Snapshots, err = c.CountSnapshots(); err != nil {
		return rc, err
	}
	if rc.Packs, err = c.CountPacks(); err != nil {
		return rc, err
	}
	if rc.Databases, err = c.CountDatabasePacks(); err != nil {
		return rc, err
	}
	return rc, nil
}
