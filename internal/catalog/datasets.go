package catalog

import "github.com/oklog/ulid/v2"

// NewDatasetID mints a fresh ULID for a Dataset, matching the data model's
// id scheme for Store.
func NewDatasetID() string {
	return ulid.Make().String()
}

// PutDataset writes (or overwrites) a dataset configuration record.
func (c *Catalog) PutDataset(d Dataset) error {
	data, err := encode(d)
	if err != nil {
		return err
	}
	return c.put(bucketDataset, []byte(d.ID), data)
}

// GetDataset reads the dataset record named by id.
func (c *Catalog) GetDataset(id string) (Dataset, error) {
	data, err := c.get(bucketDataset, []byte(id))
	if err != nil {
		return Dataset{}, err
	}
	var d Dataset
	if err := decode(data, &d); err != nil {
		return Dataset{}, err
	}
	return d, nil
}

// DeleteDataset removes the dataset record named by id, along with the
// derived pointers that reference it: the computer-id mapping and the
// latest-snapshot pointer. Those two are cleaned up on a best-effort basis,
// matching bbolt's no-op-on-missing-key Delete semantics, since a dataset
// that never ran a backup or was never assigned an owning computer won't
// have them.
func (c *Catalog) DeleteDataset(id string) error {
	if err := c.delete(bucketDataset, []byte(id)); err != nil {
		return err
	}
	_ = c.DeleteComputerID(id)
	_ = c.delete(bucketLatest, []byte(id))
	return nil
}

// PutComputerID records which computer owns datasetID, set when a dataset
// is first assigned to this machine.
func (c *Catalog) PutComputerID(datasetID, computerID string) error {
	return c.put(bucketComputer, []byte(datasetID), []byte(computerID))
}

// GetComputerID returns the computer id recorded for datasetID.
func (c *Catalog) GetComputerID(datasetID string) (string, error) {
	data, err := c.get(bucketComputer, []byte(datasetID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DeleteComputerID removes the computer-id mapping for datasetID, if any.
func (c *Catalog) DeleteComputerID(datasetID string) error {
	return c.delete(bucketComputer, []byte(datasetID))
}

// ListDatasets returns every configured dataset.
func (c *Catalog) ListDatasets() ([]Dataset, error) {
	raw, err := c.fetchPrefix(bucketDataset, nil)
	if err != nil {
		return nil, err
	}
	datasets := make([]Dataset, 0, len(raw))
	for _, data := range raw {
		var d Dataset
		if err := decode(data, &d); err != nil {
			return nil, err
		}
		datasets = append(datasets, d)
	}
	return datasets, nil
}
