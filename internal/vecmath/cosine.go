// Package vecmath holds the similarity arithmetic shared by the in-process
// vector indexes and the ad hoc ranker.
package vecmath

import (
	"math"
	"sort"

	"bookrag/internal/domain"
)

// Cosine returns the cosine similarity of a and b, clamped to [-1, 1].
// Vectors of different length or zero norm score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return Clamp(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Clamp bounds a similarity score to [-1, 1]; rounding can push exact
// matches a hair past 1.
func Clamp(score float64) float64 {
	switch {
	case math.IsNaN(score):
		return 0
	case score > 1:
		return 1
	case score < -1:
		return -1
	}
	return score
}

// SortHits orders hits by descending score, breaking ties by ID.
func SortHits(hits []domain.IndexHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

// SortPassages stably orders passages by descending score, so equal scores
// keep their original corpus or fragment order.
func SortPassages(passages []domain.Passage) {
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
}
