package recall

import (
	"context"
	"hash/fnv"
	"math"
)

// HashEmbedder is a deterministic local embedder: each token hashes into a
// bucket of a fixed-dimension bag-of-words vector, which is then
// L2-normalized. Texts sharing vocabulary get high cosine similarity, which
// is enough for development and tests without a model server.
type HashEmbedder struct {
	dim       int
	tokenizer *BM25Index
}

// NewHashEmbedder creates a hash embedder with the given dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{
		dim:       dim,
		tokenizer: NewBM25Index(1.5, 0.75),
	}
}

// Dimension returns the vector dimension.
func (e *HashEmbedder) Dimension() int { return e.dim }

// Embed maps text to a unit vector. It never fails.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, tok := range e.tokenizer.tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%e.dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
