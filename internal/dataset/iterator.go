// Package dataset streams labelled image batches from a class-per-directory tree.
package dataset

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
)

type Options struct {
	TargetSize int
	BatchSize  int
	Shuffle    bool
	Seed       int64
	Generator  Generator
	// Classes fixes the class order. When empty the sorted subdirectory names are used.
	Classes []string
}

// DirectoryIterator lists the images under root/<class>/ and yields one-hot
// labelled batches.
type DirectoryIterator struct {
	root      string
	opts      Options
	classes   []string
	filenames []string
	labels    []int
}

func NewDirectoryIterator(root string, opts Options) (*DirectoryIterator, error) {
	if opts.TargetSize <= 0 {
		return nil, fmt.Errorf("invalid target size %d", opts.TargetSize)
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", opts.BatchSize)
	}

	classes := opts.Classes
	if len(classes) == 0 {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("error reading dataset directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				classes = append(classes, e.Name())
			}
		}
		sort.Strings(classes)
	}

	it := &DirectoryIterator{
		root:    root,
		opts:    opts,
		classes: classes,
	}

	for i, class := range classes {
		var files []string
		err := filepath.WalkDir(filepath.Join(root, class), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isImageFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("error listing class %s: %w", class, err)
		}
		sort.Strings(files)

		for _, f := range files {
			it.filenames = append(it.filenames, f)
			it.labels = append(it.labels, i)
		}
	}

	slog.Info("found images", "dir", root, "images", len(it.filenames), "classes", len(classes))
	return it, nil
}

// Len is the number of images.
func (it *DirectoryIterator) Len() int { return len(it.filenames) }

func (it *DirectoryIterator) BatchSize() int { return it.opts.BatchSize }

func (it *DirectoryIterator) Classes() []string { return it.classes }

// Labels returns the class index of every file, in listing order.
func (it *DirectoryIterator) Labels() []int { return it.labels }

// Batch is one stream element. Err is set when loading any of its images failed.
type Batch struct {
	X   *tensor.Tensor
	Y   *tensor.Tensor
	Err error
}

type batchJob struct {
	indices []int
	seed    int64
}

func (it *DirectoryIterator) jobs(pass int) []batchJob {
	order := make([]int, len(it.filenames))
	for i := range order {
		order[i] = i
	}
	if it.opts.Shuffle {
		rng := rand.New(rand.NewSource(it.opts.Seed + int64(pass)))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	var jobs []batchJob
	for start := 0; start < len(order); start += it.opts.BatchSize {
		end := min(start+it.opts.BatchSize, len(order))
		jobs = append(jobs, batchJob{
			indices: order[start:end],
			seed:    it.opts.Seed ^ int64(pass)<<32 ^ int64(start),
		})
	}
	return jobs
}

// Load reads the images at the given indices into a batch.
func (it *DirectoryIterator) Load(indices []int, rng *rand.Rand) (*tensor.Tensor, *tensor.Tensor, error) {
	images := make([]*tensor.Tensor, len(indices))
	y := tensor.Zeros(len(indices), len(it.classes))
	for i, idx := range indices {
		img, err := LoadImage(it.filenames[idx], it.opts.TargetSize)
		if err != nil {
			return nil, nil, err
		}
		if it.opts.Generator.Augments() && rng != nil {
			img = it.opts.Generator.Apply(img, it.opts.Generator.RandomTransform(rng))
		}
		it.opts.Generator.Standardize(img)
		images[i] = img
		y.Set(1, i, it.labels[idx])
	}
	return tensor.Stack(images), y, nil
}

func (it *DirectoryIterator) loadJob(_ context.Context, job batchJob) (Batch, error) {
	x, y, err := it.Load(job.indices, rand.New(rand.NewSource(job.seed)))
	if err != nil {
		return Batch{}, err
	}
	return Batch{X: x, Y: y}, nil
}

// Stream decodes batches with a pool of workers, pass after pass, until ctx
// is done. Each pass is reshuffled when Shuffle is set. Batches are delivered
// in completion order through a channel holding up to queueDepth batches.
func (it *DirectoryIterator) Stream(ctx context.Context, workers, queueDepth int) <-chan Batch {
	out := make(chan Batch, queueDepth)
	if len(it.filenames) == 0 {
		close(out)
		return out
	}

	go func() {
		defer close(out)

		for pass := 0; ctx.Err() == nil; pass++ {
			jobs := it.jobs(pass)
			queue := make(chan batchJob, len(jobs))
			for _, j := range jobs {
				queue <- j
			}
			close(queue)

			completed := make(chan CompletedTask[Batch], queueDepth)
			RunInPool(ctx, it.loadJob, queue, completed, workers)

			for task := range completed {
				batch := task.Result
				if task.Error != nil {
					batch = Batch{Err: task.Error}
				}
				select {
				case out <- batch:
				case <-ctx.Done():
				}
			}
		}
	}()

	return out
}
