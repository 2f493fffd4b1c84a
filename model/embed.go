package model

import (
	"context"
	"math"
)

// Embedder turns text into a fixed-dimension vector. Implementations are
// pure functions of their input: retrying a failed call has no side effects.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Completer is the boundary to a generative model, used by both query
// enrichment and decision escalation.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Normalize L2-normalizes vec in place and returns it. Vectors are
// normalized once at embed time so that similarity reduces to a dot product.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i, x := range vec {
		vec[i] = float32(float64(x) / norm)
	}
	return vec
}

// Dot computes the inner product of two vectors. With normalized inputs this
// is the cosine similarity.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
