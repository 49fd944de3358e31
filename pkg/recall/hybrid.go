package recall

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// HybridIndex fuses a vector index and a BM25 index behind the Index
// interface. Both branches run in parallel; hits for the same record are
// merged so each candidate carries both component scores. The scope filter
// runs inside each branch's candidate collection.
type HybridIndex struct {
	embedder Embedder
	vector   *VectorIndex
	bm25     *BM25Index
}

// NewHybridIndex creates a hybrid index over the given embedder and BM25
// parameters.
func NewHybridIndex(embedder Embedder, k1, b float64) *HybridIndex {
	return &HybridIndex{
		embedder: embedder,
		vector:   NewVectorIndex(embedder.Dimension()),
		bm25:     NewBM25Index(k1, b),
	}
}

// Upsert indexes a document in both branches.
func (h *HybridIndex) Upsert(ctx context.Context, doc Document) error {
	vec, err := h.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return fmt.Errorf("%w: embed: %v", ErrUpstream, err)
	}
	if err := h.vector.Upsert(doc.ID, vec, doc.Owner, doc.Shared, doc.CreatedAt); err != nil {
		return err
	}
	h.bm25.Upsert(doc.ID, doc.Text, doc.Owner, doc.Shared, doc.CreatedAt)
	return nil
}

// Delete removes a document from both branches.
func (h *HybridIndex) Delete(ctx context.Context, id string) error {
	h.vector.Delete(id)
	h.bm25.Delete(id)
	return nil
}

// Search runs both branches and merges their hits by record id. A failed
// embedding degrades to keyword-only results; if both branches come back
// empty-handed because of errors, the error is surfaced.
func (h *HybridIndex) Search(ctx context.Context, query string, scope Scope, limit int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	var (
		wg      sync.WaitGroup
		vecHits []Hit
		vecErr  error
		kwHits  []Hit
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		var vec []float32
		vec, vecErr = h.embedder.Embed(ctx, query)
		if vecErr != nil {
			return
		}
		vecHits, vecErr = h.vector.Search(vec, scope, limit)
	}()
	go func() {
		defer wg.Done()
		kwHits = h.bm25.Search(query, scope, limit)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if vecErr != nil && len(kwHits) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, vecErr)
	}

	merged := make(map[string]Hit, len(vecHits)+len(kwHits))
	for _, hit := range vecHits {
		merged[hit.RecordID] = hit
	}
	for _, hit := range kwHits {
		if prev, ok := merged[hit.RecordID]; ok {
			prev.Keyword = hit.Keyword
			merged[hit.RecordID] = prev
		} else {
			merged[hit.RecordID] = hit
		}
	}

	hits := make([]Hit, 0, len(merged))
	for _, hit := range merged {
		hits = append(hits, hit)
	}
	// A stable pre-rerank order keeps search deterministic.
	sort.Slice(hits, func(i, j int) bool {
		si, sj := hits[i].Semantic+hits[i].Keyword, hits[j].Semantic+hits[j].Keyword
		if si != sj {
			return si > sj
		}
		return hits[i].RecordID < hits[j].RecordID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
