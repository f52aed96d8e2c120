// Package train drives epoch-based training over streamed image batches.
package train

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Brownie44l1/flower-cnn/internal/dataset"
	"github.com/Brownie44l1/flower-cnn/internal/nn"
	"github.com/schollz/progressbar/v3"
)

type Config struct {
	Epochs       int
	Workers      int
	MaxQueueSize int
	// Progress receives the per-epoch progress bar. Nil disables it.
	Progress io.Writer
}

// Steps is the number of whole batches in one pass over it.
func Steps(it *dataset.DirectoryIterator) (int, error) {
	steps := it.Len() / it.BatchSize()
	if steps == 0 {
		return 0, fmt.Errorf("%d images is less than one batch of %d", it.Len(), it.BatchSize())
	}
	return steps, nil
}

type meter struct {
	loss, accuracy float64
	samples        int
}

func (m *meter) add(metrics nn.Metrics, n int) {
	m.loss += metrics.Loss * float64(n)
	m.accuracy += metrics.Accuracy * float64(n)
	m.samples += n
}

func (m *meter) mean() (float64, float64) {
	if m.samples == 0 {
		return 0, 0
	}
	return m.loss / float64(m.samples), m.accuracy / float64(m.samples)
}

func next(ctx context.Context, stream <-chan dataset.Batch) (dataset.Batch, error) {
	select {
	case <-ctx.Done():
		return dataset.Batch{}, ctx.Err()
	case b, ok := <-stream:
		if !ok {
			if err := ctx.Err(); err != nil {
				return dataset.Batch{}, err
			}
			return dataset.Batch{}, fmt.Errorf("batch stream closed")
		}
		if b.Err != nil {
			return dataset.Batch{}, fmt.Errorf("error loading batch: %w", b.Err)
		}
		return b, nil
	}
}

// Fit trains m for cfg.Epochs epochs of Steps(trainSet) batches, evaluating
// Steps(validationSet) batches after each epoch. The first data or shape error
// stops training.
func Fit(ctx context.Context, m *nn.Sequential, trainSet, validationSet *dataset.DirectoryIterator, cfg Config) (*History, error) {
	steps, err := Steps(trainSet)
	if err != nil {
		return nil, fmt.Errorf("invalid training set: %w", err)
	}
	validationSteps, err := Steps(validationSet)
	if err != nil {
		return nil, fmt.Errorf("invalid validation set: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	trainStream := trainSet.Stream(ctx, cfg.Workers, cfg.MaxQueueSize)
	validationStream := validationSet.Stream(ctx, cfg.Workers, cfg.MaxQueueSize)

	progress := cfg.Progress
	if progress == nil {
		progress = io.Discard
	}

	history := NewHistory()
	slog.Info("starting training", "run_id", history.RunID, "epochs", cfg.Epochs,
		"steps_per_epoch", steps, "validation_steps", validationSteps)

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		start := time.Now()
		bar := progressbar.NewOptions(steps,
			progressbar.OptionSetDescription(fmt.Sprintf("epoch %d/%d", epoch, cfg.Epochs)),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionClearOnFinish(),
		)

		var trainMeter meter
		for step := 0; step < steps; step++ {
			b, err := next(ctx, trainStream)
			if err != nil {
				return history, fmt.Errorf("epoch %d step %d: %w", epoch, step+1, err)
			}
			metrics, err := m.TrainOnBatch(b.X, b.Y)
			if err != nil {
				return history, fmt.Errorf("epoch %d step %d: %w", epoch, step+1, err)
			}
			trainMeter.add(metrics, b.X.Shape().At(0))
			_ = bar.Add(1)
		}
		_ = bar.Finish()

		var validationMeter meter
		for step := 0; step < validationSteps; step++ {
			b, err := next(ctx, validationStream)
			if err != nil {
				return history, fmt.Errorf("epoch %d validation step %d: %w", epoch, step+1, err)
			}
			metrics, err := m.TestOnBatch(b.X, b.Y)
			if err != nil {
				return history, fmt.Errorf("epoch %d validation step %d: %w", epoch, step+1, err)
			}
			validationMeter.add(metrics, b.X.Shape().At(0))
		}

		result := EpochResult{Epoch: epoch, Seconds: time.Since(start).Seconds()}
		result.Loss, result.Accuracy = trainMeter.mean()
		result.ValLoss, result.ValAccuracy = validationMeter.mean()
		history.Epochs = append(history.Epochs, result)

		slog.Info("epoch finished", "epoch", epoch, "loss", result.Loss, "acc", result.Accuracy,
			"val_loss", result.ValLoss, "val_acc", result.ValAccuracy, "seconds", result.Seconds)
	}

	return history, nil
}
