package recall

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

type vectorEntry struct {
	vec       []float32
	owner     string
	shared    bool
	createdAt time.Time
}

// VectorIndex is a brute-force cosine-similarity index. Fine for the record
// counts a single agent accumulates; swap in an ANN structure if a corpus
// outgrows it.
type VectorIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]vectorEntry
}

// NewVectorIndex creates a vector index for the given dimension.
func NewVectorIndex(dimension int) *VectorIndex {
	return &VectorIndex{
		dimension: dimension,
		entries:   make(map[string]vectorEntry),
	}
}

// Upsert adds or replaces a vector.
func (v *VectorIndex) Upsert(id string, vec []float32, owner string, shared bool, createdAt time.Time) error {
	if len(vec) != v.dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, v.dimension, len(vec))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries[id] = vectorEntry{vec: vec, owner: owner, shared: shared, createdAt: createdAt}
	return nil
}

// Delete removes a vector. Unknown ids are ignored.
func (v *VectorIndex) Delete(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.entries, id)
}

// Search returns up to limit hits visible under the scope, ordered by cosine
// similarity. Scores are clamped to [0, 1].
func (v *VectorIndex) Search(query []float32, scope Scope, limit int) ([]Hit, error) {
	if len(query) != v.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, v.dimension, len(query))
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	hits := make([]Hit, 0, limit)
	for id, e := range v.entries {
		if !scope.allow(e.owner, e.shared) {
			continue
		}
		sim := cosineSimilarity(query, e.vec)
		if sim < 0 {
			sim = 0
		}
		hits = append(hits, Hit{
			RecordID:  id,
			Owner:     e.owner,
			Semantic:  sim,
			CreatedAt: e.createdAt,
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Semantic > hits[j].Semantic })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len returns the number of indexed vectors.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
