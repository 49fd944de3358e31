package recall

import (
	"context"
	"sync"
	"time"

	"github.com/memtrail/memtrail/pkg/logger"
)

// ScopeSource resolves the owners a user amplifies from. The social graph
// satisfies this.
type ScopeSource interface {
	ScopeFor(user string) []string
}

// Tuning holds the runtime-adjustable recall knobs.
type Tuning struct {
	Alpha        float64
	HalfLife     time.Duration
	DefaultTopK  int
	QueryTimeout time.Duration
}

// Client is the recall front door: it resolves the caller's scope, runs a
// deadline-bounded hybrid search, and reranks the candidates. Retrieval is
// advisory, so upstream failures and timeouts degrade to an empty result
// instead of failing the caller's turn.
type Client struct {
	mu     sync.RWMutex
	tuning Tuning
	rr     *Reranker

	scopes ScopeSource
	index  Index
	log    logger.Logger
}

// NewClient creates a recall client.
func NewClient(scopes ScopeSource, index Index, tuning Tuning, log logger.Logger) *Client {
	return &Client{
		tuning: tuning,
		rr:     NewReranker(tuning.Alpha, tuning.HalfLife),
		scopes: scopes,
		index:  index,
		log:    log,
	}
}

// ApplyTuning swaps the recall knobs. Safe to call while queries run.
func (c *Client) ApplyTuning(t Tuning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tuning = t
	c.rr = NewReranker(t.Alpha, t.HalfLife)
}

// Recall retrieves and reranks up to topK memory records relevant to query,
// limited to what user may see. topK <= 0 uses the configured default.
// Retrieval is advisory: on a search failure or deadline overrun the result
// is empty and the error reports why, so the caller can log the degradation
// and carry on with the conversation.
func (c *Client) Recall(ctx context.Context, user, query string, topK int) ([]Scored, error) {
	c.mu.RLock()
	tuning := c.tuning
	rr := c.rr
	c.mu.RUnlock()

	if topK <= 0 {
		topK = tuning.DefaultTopK
	}

	scope := Scope{Self: user, AmplifyFrom: c.scopes.ScopeFor(user)}

	ctx, cancel := context.WithTimeout(ctx, tuning.QueryTimeout)
	defer cancel()

	// Over-fetch so reranking has room to reorder across both branches.
	fetch := topK * 3
	if fetch < 30 {
		fetch = 30
	}

	hits, err := c.index.Search(ctx, query, scope, fetch)
	if err != nil {
		c.log.WarnContext(ctx, "recall degraded to empty result",
			"user", user,
			"error", err,
		)
		return nil, err
	}

	scored := rr.Rerank(hits, time.Now().UTC())
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}
