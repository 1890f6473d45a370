package rag

import (
	"math"

	"github.com/plantia/plantia/internal/knowledge"
)

// maximalMarginalRelevance re-ranks candidates for a balance of query
// relevance and mutual diversity. lambda 1.0 is pure relevance, 0.0 pure
// diversity. Candidates must carry their embeddings.
func maximalMarginalRelevance(queryEmbedding []float32, candidates []knowledge.Result, k int, lambda float64) []knowledge.Result {
	if k >= len(candidates) {
		return candidates
	}
	if k <= 0 {
		return nil
	}

	selected := make([]knowledge.Result, 0, k)
	remaining := make([]knowledge.Result, len(candidates))
	copy(remaining, candidates)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)

		for i, cand := range remaining {
			relevance := cosineSimilarity(queryEmbedding, cand.Embedding)

			redundancy := 0.0
			for _, sel := range selected {
				if sim := cosineSimilarity(cand.Embedding, sel.Embedding); sim > redundancy {
					redundancy = sim
				}
			}

			score := lambda*relevance - (1-lambda)*redundancy
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
