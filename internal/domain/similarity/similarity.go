// Package similarity compares sparse affinity profiles.
package similarity

import (
	"math"
	"slices"
)

const defaultNeutral = 1200

// Vector is a sparse mediaID -> affinity profile.
type Vector map[string]int

// Calculator computes centered cosine similarity around a neutral score.
type Calculator struct {
	neutral float64
}

// NewCalculator creates a Calculator centered on neutral. A non-positive
// value selects the default of 1200.
func NewCalculator(neutral int) *Calculator {
	if neutral <= 0 {
		neutral = defaultNeutral
	}
	return &Calculator{neutral: float64(neutral)}
}

// CenteredCosine returns the cosine of the two profiles after filling missing
// entries with the neutral score and subtracting it. The key union is walked in
// sorted order so the float result is reproducible. Result is in [-1, 1]; an
// empty union or a zero-norm side yields 0.
func (c *Calculator) CenteredCosine(a, b Vector) float64 {
	keys := union(a, b)
	if len(keys) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for _, k := range keys {
		va := c.centered(a, k)
		vb := c.centered(b, k)
		dot += va * vb
		normA += va * va
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim))
}

func (c *Calculator) centered(v Vector, key string) float64 {
	score, ok := v[key]
	if !ok {
		return 0
	}
	return float64(score) - c.neutral
}

func union(a, b Vector) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
