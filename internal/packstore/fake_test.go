package packstore

import (
	"context"
	"fmt"
	"os"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

// fakeBackend is an in-memory Backend used to exercise Multi's fan-out,
// retrieval-preference, find-missing, and prune logic without touching the
// filesystem or network.
type fakeBackend struct {
	id      string
	local   bool
	slow    bool
	buckets map[string]map[string][]byte
	fail    bool
}

func newFakeBackend(id string, local, slow bool) *fakeBackend {
	return &fakeBackend{id: id, local: local, slow: slow, buckets: make(map[string]map[string][]byte)}
}

func (f *fakeBackend) ID() string    { return f.id }
func (f *fakeBackend) IsLocal() bool { return f.local }
func (f *fakeBackend) IsSlow() bool  { return f.slow }

func (f *fakeBackend) put(bucket, object string, data []byte) (catalog.PackLocation, error) {
	if f.fail {
		return catalog.PackLocation{}, fmt.Errorf("fakeBackend %s: forced failure", f.id)
	}
	if f.buckets[bucket] == nil {
		f.buckets[bucket] = make(map[string][]byte)
	}
	f.buckets[bucket][object] = data
	return catalog.PackLocation{StoreID: f.id, Bucket: bucket, Object: object}, nil
}

func (f *fakeBackend) StorePack(_ context.Context, path, bucket, object string) (catalog.PackLocation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog.PackLocation{}, err
	}
	return f.put(bucket, object, data)
}

func (f *fakeBackend) StoreDatabase(_ context.Context, path, bucket, object string) (catalog.PackLocation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog.PackLocation{}, err
	}
	return f.put(bucket, object, data)
}

func (f *fakeBackend) get(loc catalog.PackLocation, outpath string) error {
	if f.fail {
		return fmt.Errorf("fakeBackend %s: forced failure", f.id)
	}
	objs, ok := f.buckets[loc.Bucket]
	if !ok {
		return ErrObjectNotFound
	}
	data, ok := objs[loc.Object]
	if !ok {
		return ErrObjectNotFound
	}
	return os.WriteFile(outpath, data, 0o644)
}

func (f *fakeBackend) RetrievePack(_ context.Context, loc catalog.PackLocation, outpath string) error {
	return f.get(loc, outpath)
}

func (f *fakeBackend) RetrieveDatabase(_ context.Context, loc catalog.PackLocation, outpath string) error {
	return f.get(loc, outpath)
}

func (f *fakeBackend) ListBuckets(_ context.Context) ([]string, error) {
	var names []string
	for b := range f.buckets {
		names = append(names, b)
	}
	return names, nil
}

func (f *fakeBackend) ListObjects(_ context.Context, bucket string) ([]string, error) {
	var names []string
	for name := range f.buckets[bucket] {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeBackend) ListDatabases(ctx context.Context, bucket string) ([]string, error) {
	return f.ListObjects(ctx, bucket)
}

func (f *fakeBackend) DeleteObject(_ context.Context, bucket, object string) error {
	if objs, ok := f.buckets[bucket]; ok {
		delete(objs, object)
	}
	return nil
}

func (f *fakeBackend) DeleteBucket(_ context.Context, bucket string) error {
	if len(f.buckets[bucket]) > 0 {
		return ErrBucketNotEmpty
	}
	delete(f.buckets, bucket)
	return nil
}
