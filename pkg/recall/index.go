// Package recall implements permission-scoped hybrid retrieval over memory
// records: BM25 keyword search and cosine-similarity vector search fused per
// record, then reranked by relevance and recency.
package recall

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the recall package.
var (
	ErrUpstream          = errors.New("recall: upstream search failed")
	ErrDimensionMismatch = errors.New("recall: vector dimension mismatch")
	ErrEmptyQuery        = errors.New("recall: empty query")
)

// Document is the indexable projection of a memory record.
type Document struct {
	ID        string
	Owner     string
	Text      string
	Shared    bool
	CreatedAt time.Time
}

// Scope describes what a querying user is allowed to see. Self always sees
// their own records; AmplifyFrom grants visibility into the shared records of
// the named owners. The scope is applied during candidate collection, never
// as a post-filter over an unscoped result set.
type Scope struct {
	Self        string
	AmplifyFrom []string
}

// allow reports whether a record with the given owner and sharing flag is
// visible under the scope.
func (s Scope) allow(owner string, shared bool) bool {
	if owner == s.Self {
		return true
	}
	if !shared {
		return false
	}
	for _, from := range s.AmplifyFrom {
		if from == owner {
			return true
		}
	}
	return false
}

// Hit is one candidate from a scoped search, carrying both component scores
// normalized to [0, 1].
type Hit struct {
	RecordID  string
	Owner     string
	Semantic  float64
	Keyword   float64
	CreatedAt time.Time
}

// Index is the retrieval backend. Implementations must enforce the scope
// inside Search.
type Index interface {
	Upsert(ctx context.Context, doc Document) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, scope Scope, limit int) ([]Hit, error)
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
