package packstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/nlfiedler/zorigami-sub002/internal/catalog"
)

// GCS stores packs as objects in Google Cloud Storage buckets. Bucket names
// in GCS are globally unique; this backend uses the bucket names it is given
// unchanged, creating a missing bucket in the configured project and
// location.
type GCS struct {
	id        string
	client    *storage.Client
	projectID string
	location  string
}

// GCSConfig names the connection details for one GCS project.
type GCSConfig struct {
	ProjectID string
	Location  string // bucket location, e.g. "US"
}

// NewGCS builds a GCS backend using application-default credentials,
// matching how the original Google Cloud Storage source authenticated.
func NewGCS(ctx context.Context, id string, cfg GCSConfig) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("packstore: gcs: new client: %w", err)
	}
	return &GCS{id: id, client: client, projectID: cfg.ProjectID, location: cfg.Location}, nil
}

// Close releases the underlying GCS client.
func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) ID() string    { return g.id }
func (g *GCS) IsLocal() bool { return false }
func (g *GCS) IsSlow() bool  { return false }

func (g *GCS) ensureBucket(ctx context.Context, bucket string) error {
	b := g.client.Bucket(bucket)
	if _, err := b.Attrs(ctx); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("packstore: gcs: bucket attrs %s: %w", bucket, err)
	}
	if err := b.Create(ctx, g.projectID, &storage.BucketAttrs{Location: g.location}); err != nil {
		return fmt.Errorf("packstore: gcs: create bucket %s: %w", bucket, err)
	}
	return nil
}

func (g *GCS) upload(ctx context.Context, path, bucket, object string) (catalog.PackLocation, error) {
	if err := g.ensureBucket(ctx, bucket); err != nil {
		return catalog.PackLocation{}, err
	}
	obj := g.client.Bucket(bucket).Object(object)
	if _, err := obj.Attrs(ctx); err == nil {
		return catalog.PackLocation{StoreID: g.id, Bucket: bucket, Object: object}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return catalog.PackLocation{}, fmt.Errorf("packstore: gcs: open %s: %w", path, err)
	}
	defer f.Close()

	w := obj.NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return catalog.PackLocation{}, fmt.Errorf("packstore: gcs: write %s/%s: %w", bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return catalog.PackLocation{}, fmt.Errorf("packstore: gcs: finalize %s/%s: %w", bucket, object, err)
	}
	return catalog.PackLocation{StoreID: g.id, Bucket: bucket, Object: object}, nil
}

func (g *GCS) StorePack(ctx context.Context, path, bucket, object string) (catalog.PackLocation, error) {
	return g.upload(ctx, path, bucket, object)
}

func (g *GCS) StoreDatabase(ctx context.Context, path, bucket, object string) (catalog.PackLocation, error) {
	return g.upload(ctx, path, bucket, object)
}

func (g *GCS) retrieve(ctx context.Context, loc catalog.PackLocation, outpath string) error {
	r, err := g.client.Bucket(loc.Bucket).Object(loc.Object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("packstore: gcs: %s/%s: %w", loc.Bucket, loc.Object, ErrObjectNotFound)
		}
		return fmt.Errorf("packstore: gcs: open reader %s/%s: %w", loc.Bucket, loc.Object, err)
	}
	defer r.Close()

	out, err := os.OpenFile(outpath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("packstore: gcs: create %s: %w", outpath, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("packstore: gcs: copy to %s: %w", outpath, err)
	}
	return out.Close()
}

func (g *GCS) RetrievePack(ctx context.Context, loc catalog.PackLocation, outpath string) error {
	return g.retrieve(ctx, loc, outpath)
}

func (g *GCS) RetrieveDatabase(ctx context.Context, loc catalog.PackLocation, outpath string) error {
	return g.retrieve(ctx, loc, outpath)
}

func (g *GCS) ListBuckets(ctx context.Context) ([]string, error) {
	var names []string
	it := g.client.Buckets(ctx, g.projectID)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("packstore: gcs: list buckets: %w", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (g *GCS) listNames(ctx context.Context, bucket string) ([]string, error) {
	var names []string
	it := g.client.Bucket(bucket).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("packstore: gcs: list objects %s: %w", bucket, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (g *GCS) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	return g.listNames(ctx, bucket)
}

func (g *GCS) ListDatabases(ctx context.Context, bucket string) ([]string, error) {
	return g.listNames(ctx, bucket)
}

func (g *GCS) DeleteObject(ctx context.Context, bucket, object string) error {
	if err := g.client.Bucket(bucket).Object(object).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("packstore: gcs: delete %s/%s: %w", bucket, object, err)
	}
	return nil
}

func (g *GCS) DeleteBucket(ctx context.Context, bucket string) error {
	names, err := g.listNames(ctx, bucket)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return fmt.Errorf("packstore: gcs: %s: %w", bucket, ErrBucketNotEmpty)
	}
	if err := g.client.Bucket(bucket).Delete(ctx); err != nil {
		return fmt.Errorf("packstore: gcs: delete bucket %s: %w", bucket, err)
	}
	return nil
}
