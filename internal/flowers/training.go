package flowers

import "github.com/Brownie44l1/flower-cnn/internal/dataset"

// Training defaults.
const (
	BatchSize    = 40
	Epochs       = 70
	Workers      = 32
	MaxQueueSize = 32

	RotationRange = 25
	ShearRange    = 0.2
	ZoomRange     = 0.2
)

// TrainGenerator augments and rescales training images.
func TrainGenerator() dataset.Generator {
	return dataset.Generator{
		Rescale:        1.0 / 255,
		RotationRange:  RotationRange,
		ShearRange:     ShearRange,
		ZoomRange:      ZoomRange,
		HorizontalFlip: true,
	}
}

// ValidationGenerator only rescales.
func ValidationGenerator() dataset.Generator {
	return dataset.Generator{Rescale: 1.0 / 255}
}
