package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Fetch downloads every object under prefix into dir, named by the key's base
// name, and returns the local paths in key order. It is the reverse of Publish.
func Fetch(ctx context.Context, p Provider, bucket, prefix, dir string) ([]string, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	objects, err := p.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("error listing %s/%s: %w", bucket, prefix, err)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("no artifacts under %s/%s", bucket, prefix)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating %s: %w", dir, err)
	}

	files := make([]string, len(objects))
	g, ctx := errgroup.WithContext(ctx)
	for i, obj := range objects {
		i, obj := i, obj
		files[i] = filepath.Join(dir, path.Base(obj.Name))
		g.Go(func() error {
			data, err := p.GetObject(ctx, bucket, obj.Name)
			if err != nil {
				return fmt.Errorf("error downloading %s: %w", obj.Name, err)
			}
			if err := os.WriteFile(files[i], data, 0644); err != nil {
				return fmt.Errorf("error writing artifact: %w", err)
			}
			slog.Info("fetched artifact", "bucket", bucket, "key", obj.Name, "size", obj.Size)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}
