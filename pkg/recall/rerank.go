package recall

import (
	"math"
	"sort"
	"time"
)

// Scored is a hit with its final blended score.
type Scored struct {
	Hit
	Score float64
}

// Reranker blends semantic and keyword scores and applies an exponential
// recency decay. Reranking is a pure function of the candidate set, the
// tuning, and the supplied clock reading; it performs no I/O.
type Reranker struct {
	alpha    float64
	halfLife time.Duration
}

// NewReranker creates a reranker. alpha weights the semantic score and must
// favor it (0.5 < alpha <= 1); halfLife controls how fast recency decays.
func NewReranker(alpha float64, halfLife time.Duration) *Reranker {
	return &Reranker{alpha: alpha, halfLife: halfLife}
}

// Score computes the blended score for one hit at the given time. The
// recency factor floors at 0.85 so an old record with a strong match still
// ranks near its base score.
func (r *Reranker) Score(hit Hit, now time.Time) float64 {
	base := r.alpha*hit.Semantic + (1-r.alpha)*hit.Keyword

	age := now.Sub(hit.CreatedAt)
	if age < 0 {
		age = 0
	}
	decay := math.Exp2(-float64(age) / float64(r.halfLife))
	return base * (0.85 + 0.15*decay)
}

// Rerank scores and sorts a candidate set, best first. Score ties break
// toward the more recent record. The input slice is not modified.
func (r *Reranker) Rerank(hits []Hit, now time.Time) []Scored {
	scored := make([]Scored, len(hits))
	for i, hit := range hits {
		scored[i] = Scored{Hit: hit, Score: r.Score(hit, now)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].CreatedAt.After(scored[j].CreatedAt)
	})
	return scored
}
