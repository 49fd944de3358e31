package recall

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
)

type docMeta struct {
	owner     string
	shared    bool
	createdAt time.Time
	length    int
}

// BM25Index is an in-memory inverted index scored with BM25. Keyword scores
// returned from Search are normalized to [0, 1] by the best score in the
// candidate set so they can be fused with cosine similarities.
type BM25Index struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	inverted  map[string]map[string]struct{} // term -> record ids
	termFreqs map[string]map[string]int      // record id -> term -> count
	meta      map[string]docMeta

	totalDocs int
	totalLen  int

	stopWords map[string]struct{}
}

// NewBM25Index creates a BM25 index with the given tuning parameters.
func NewBM25Index(k1, b float64) *BM25Index {
	return &BM25Index{
		k1:        k1,
		b:         b,
		inverted:  make(map[string]map[string]struct{}),
		termFreqs: make(map[string]map[string]int),
		meta:      make(map[string]docMeta),
		stopWords: defaultStopWords(),
	}
}

// Upsert indexes or reindexes a document.
func (idx *BM25Index) Upsert(id, text, owner string, shared bool, createdAt time.Time) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.termFreqs[id]; exists {
		idx.removeLocked(id)
	}

	tokens := idx.tokenize(text)
	freqs := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freqs[tok]++
	}

	idx.termFreqs[id] = freqs
	idx.meta[id] = docMeta{owner: owner, shared: shared, createdAt: createdAt, length: len(tokens)}
	idx.totalDocs++
	idx.totalLen += len(tokens)

	for term := range freqs {
		if idx.inverted[term] == nil {
			idx.inverted[term] = make(map[string]struct{})
		}
		idx.inverted[term][id] = struct{}{}
	}
}

// Delete removes a document. Unknown ids are ignored.
func (idx *BM25Index) Delete(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *BM25Index) removeLocked(id string) {
	freqs, exists := idx.termFreqs[id]
	if !exists {
		return
	}
	for term := range freqs {
		if docs, ok := idx.inverted[term]; ok {
			delete(docs, id)
			if len(docs) == 0 {
				delete(idx.inverted, term)
			}
		}
	}
	idx.totalLen -= idx.meta[id].length
	idx.totalDocs--
	delete(idx.termFreqs, id)
	delete(idx.meta, id)
}

// Search returns up to limit hits visible under the scope, best keyword
// matches first.
func (idx *BM25Index) Search(query string, scope Scope, limit int) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.totalDocs == 0 {
		return nil
	}
	terms := idx.tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	avgLen := float64(idx.totalLen) / float64(idx.totalDocs)

	candidates := make(map[string]struct{})
	for _, term := range terms {
		for id := range idx.inverted[term] {
			m := idx.meta[id]
			if !scope.allow(m.owner, m.shared) {
				continue
			}
			candidates[id] = struct{}{}
		}
	}

	hits := make([]Hit, 0, len(candidates))
	best := 0.0
	for id := range candidates {
		score := idx.scoreLocked(id, terms, avgLen)
		if score <= 0 {
			continue
		}
		if score > best {
			best = score
		}
		m := idx.meta[id]
		hits = append(hits, Hit{
			RecordID:  id,
			Owner:     m.owner,
			Keyword:   score,
			CreatedAt: m.createdAt,
		})
	}
	for i := range hits {
		hits[i].Keyword /= best
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Keyword > hits[j].Keyword })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Len returns the number of indexed documents.
func (idx *BM25Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.totalDocs
}

func (idx *BM25Index) scoreLocked(id string, terms []string, avgLen float64) float64 {
	docLen := float64(idx.meta[id].length)
	freqs := idx.termFreqs[id]

	score := 0.0
	for _, term := range terms {
		tf := float64(freqs[term])
		if tf == 0 {
			continue
		}
		n := float64(len(idx.inverted[term]))
		idf := math.Log((float64(idx.totalDocs)-n+0.5)/(n+0.5) + 1.0)
		score += idf * tf * (idx.k1 + 1) / (tf + idx.k1*(1-idx.b+idx.b*docLen/avgLen))
	}
	return score
}

// tokenize lowercases and splits on non-alphanumerics, dropping stop words.
// CJK runes become single-rune tokens.
func (idx *BM25Index) tokenize(text string) []string {
	text = strings.ToLower(text)

	tokens := make([]string, 0, len(text)/4)
	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		tok := current.String()
		if _, stop := idx.stopWords[tok]; !stop {
			tokens = append(tokens, tok)
		}
		current.Reset()
	}

	for _, r := range text {
		switch {
		// Han runes are letters too, so this case must come first.
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func defaultStopWords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "been",
		"have", "has", "had", "do", "does", "did", "will", "would",
		"to", "of", "in", "for", "on", "with", "at", "by", "from",
		"and", "but", "or", "not", "so", "this", "that", "these",
		"i", "me", "my", "we", "our", "you", "your", "it", "its",
		"he", "his", "she", "her", "they", "them", "their",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
