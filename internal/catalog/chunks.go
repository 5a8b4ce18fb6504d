package catalog

// PutChunk inserts a chunk record if its digest is not already present.
// Chunks are immutable once written, so an existing record is always
// assumed correct and left untouched.
func (c *Catalog) PutChunk(ch Chunk) (inserted bool, err error) {
	data, err := encode(ch)
	if err != nil {
		return false, err
	}
	return c.insertIfAbsent(bucketChunk, digestKey(ch.Digest), data)
}

// GetChunk reads the chunk record named by d.
func (c *Catalog) GetChunk(d Digest) (Chunk, error) {
	data, err := c.get(bucketChunk, digestKey(d))
	if err != nil {
		return Chunk{}, err
	}
	var ch Chunk
	if err := decode(data, &ch); err != nil {
		return Chunk{}, err
	}
	return ch, nil
}

// SetChunkPackfile records which pack a chunk was uploaded into. It is the
// one mutation chunk records ever receive, since a chunk is created before
// its pack is known and updated once the upload completes.
func (c *Catalog) SetChunkPackfile(d Digest, pack Digest) error {
	ch, err := c.GetChunk(d)
	if err != nil {
		return err
	}
	p := pack
	ch.Packfile = &p
	data, err := encode(ch)
	if err != nil {
		return err
	}
	return c.put(bucketChunk, digestKey(d), data)
}

// CountChunks returns the number of chunk records in the catalog.
func (c *Catalog) CountChunks() (int, error) {
	return c.countPrefix(bucketChunk, nil)
}
