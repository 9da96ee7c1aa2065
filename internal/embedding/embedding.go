// Package embedding implements the embedding providers used to backfill report
// and vulnerability vectors.
package embedding

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/time/rate"
)

// ErrNoEmbedding is returned when a provider answers without a vector.
var ErrNoEmbedding = errors.New("no embedding returned")

// newLimiter returns a limiter allowing perSecond requests with a burst of one.
// A non-positive rate disables limiting.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// checkVector enforces a non-empty, finite vector of the expected dimension.
func checkVector(v []float32, dimension int) ([]float32, error) {
	if len(v) == 0 {
		return nil, ErrNoEmbedding
	}
	if dimension > 0 && len(v) != dimension {
		return nil, fmt.Errorf("embedding has dimension %d, expected %d", len(v), dimension)
	}
	for i, x := range v {
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("embedding component %d is not finite: %v", i, x)
		}
	}
	return v, nil
}
