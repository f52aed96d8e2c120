package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Publish uploads files to bucket under prefix, keyed by base name. Uploads
// run concurrently and the first failure cancels the rest.
func Publish(ctx context.Context, p Provider, bucket, prefix string, files []string) error {
	if err := p.CreateBucket(ctx, bucket); err != nil {
		return fmt.Errorf("error creating bucket %s: %w", bucket, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, file := range files {
		file := file
		g.Go(func() error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("error opening artifact: %w", err)
			}
			defer f.Close()

			key := path.Join(prefix, filepath.Base(file))
			if err := p.PutObject(ctx, bucket, key, f); err != nil {
				return fmt.Errorf("error uploading %s: %w", file, err)
			}
			slog.Info("published artifact", "bucket", bucket, "key", key)
			return nil
		})
	}
	return g.Wait()
}
