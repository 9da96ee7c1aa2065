package models

import "fmt"

// Embedding is a fixed-dimension vector produced by an embedding provider. It is
// only ever replaced as a whole.
type Embedding []float32

// NewEmbedding copies values so later changes to the provider's buffer cannot leak
// into a stored vector.
func NewEmbedding(values []float32) (Embedding, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("embedding must have at least one dimension")
	}
	e := make(Embedding, len(values))
	copy(e, values)
	return e, nil
}

// Dimension returns the number of components.
func (e Embedding) Dimension() int { return len(e) }

// Slice returns a copy of the raw components.
func (e Embedding) Slice() []float32 {
	out := make([]float32, len(e))
	copy(out, e)
	return out
}
