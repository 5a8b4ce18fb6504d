package catalog

// PutSnapshot writes (or overwrites) a snapshot record. Unlike chunks,
// files, and trees, a snapshot is mutable for the duration of a backup: it
// is first written with a zero EndTime when the run begins, then rewritten
// with EndTime and FileCount once the run completes.
func (c *Catalog) PutSnapshot(s Snapshot) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	return c.put(bucketSnapshot, digestKey(s.Digest), data)
}

// GetSnapshot reads the snapshot record named by d.
func (c *Catalog) GetSnapshot(d Digest) (Snapshot, error) {
	data, err := c.get(bucketSnapshot, digestKey(d))
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	if err := decode(data, &s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// SetLatestSnapshot records d as the latest snapshot for datasetID, so
// future backups can find their parent without scanning the whole snapshot
// namespace. The backup performer points it at a run's in-progress
// snapshot when the run begins and at the finished snapshot on completion.
func (c *Catalog) SetLatestSnapshot(datasetID string, d Digest) error {
	return c.put(bucketLatest, []byte(datasetID), digestKey(d))
}

// GetLatestSnapshot returns the latest snapshot recorded for datasetID,
// which is still in progress when the most recent run did not complete.
func (c *Catalog) GetLatestSnapshot(datasetID string) (Digest, error) {
	data, err := c.get(bucketLatest, []byte(datasetID))
	if err != nil {
		return Digest{}, err
	}
	return parseDigestKey(data)
}

// CountSnapshots returns the number of snapshot records in the catalog.
func (c *Catalog) CountSnapshots() (int, error) {
	return c.countPrefix(bucketSnapshot, nil)
}
