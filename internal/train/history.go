package train

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

type EpochResult struct {
	Epoch       int     `yaml:"epoch"`
	Loss        float64 `yaml:"loss"`
	Accuracy    float64 `yaml:"acc"`
	ValLoss     float64 `yaml:"val_loss"`
	ValAccuracy float64 `yaml:"val_acc"`
	Seconds     float64 `yaml:"seconds"`
}

// History is the per-epoch record of one training run.
type History struct {
	RunID   string        `yaml:"run_id"`
	Started time.Time     `yaml:"started"`
	Epochs  []EpochResult `yaml:"epochs"`
}

func NewHistory() *History {
	return &History{RunID: uuid.New().String(), Started: time.Now().UTC()}
}

// Last returns the most recent epoch, or false before the first one finishes.
func (h *History) Last() (EpochResult, bool) {
	if len(h.Epochs) == 0 {
		return EpochResult{}, false
	}
	return h.Epochs[len(h.Epochs)-1], true
}

func (h *History) Save(path string) error {
	data, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("error encoding history: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing history: %w", err)
	}
	return nil
}
