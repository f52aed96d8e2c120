package model

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

// Rank pairs probabilities with their class names and orders them by
// descending probability. Equal probabilities keep class order.
func Rank(probs []float32, classes []string) ([]Prediction, error) {
	if len(probs) != len(classes) {
		return nil, fmt.Errorf("got %d probabilities for %d classes", len(probs), len(classes))
	}

	ranking := make([]Prediction, len(probs))
	for i, p := range probs {
		ranking[i] = Prediction{Class: classes[i], Probability: p}
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Probability > ranking[j].Probability
	})
	return ranking, nil
}

// WriteRanking prints one "class: percentage%" line per prediction.
func WriteRanking(w io.Writer, ranking []Prediction) error {
	bw := bufio.NewWriter(w)
	for _, p := range ranking {
		fmt.Fprintf(bw, "%s: %f%%\n", p.Class, float64(p.Probability)*100)
	}
	return bw.Flush()
}
