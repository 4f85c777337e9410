package memory

import (
	"hash/fnv"
	"math"
	"strings"
)

// embedDimension is the fixed width of every stored embedding.
const embedDimension = 256

// embed produces a deterministic bag-of-words hashing embedding for text —
// no external embedding model is wired into this module (remember/recall
// only need an opaque vector store per the embedding-as-external-detail
// boundary), so terms are hashed into buckets and L2-normalized the same
// way a real embedding would be, which keeps cosine similarity meaningful
// without a network call on every remember/recall.
func embed(text string) []float32 {
	vec := make([]float32, embedDimension)
	for _, term := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(term))
		bucket := h.Sum32() % embedDimension
		vec[bucket]++
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}
