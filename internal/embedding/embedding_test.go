package embedding

import (
	"errors"
	"math"
	"testing"
)

func TestCheckVector(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name    string
		in      []float32
		dim     int
		wantErr bool
	}{
		{"valid", []float32{0.1, -0.2, 0.3}, 3, false},
		{"any dimension", []float32{1}, 0, false},
		{"empty", nil, 3, true},
		{"wrong dimension", []float32{1, 2}, 3, true},
		{"nan", []float32{0.1, nan, 0.3}, 3, true},
		{"positive infinity", []float32{inf, 0, 0}, 3, true},
		{"negative infinity", []float32{0, 0, -inf}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := checkVector(tt.in, tt.dim)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkVector error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := checkVector(nil, 0); !errors.Is(err, ErrNoEmbedding) {
		t.Fatalf("expected ErrNoEmbedding, got %v", err)
	}
}
