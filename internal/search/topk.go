package search

import "github.com/engram-labs/engram/internal/models"

// topK keeps the k best results seen so far in descending order. Insertion is
// a bounded shift into a k-sized buffer, so ranking a corpus costs O(n·k)
// instead of a full sort, which is the engine's key performance property.
type topK struct {
	k       int
	results []models.SearchResult
}

func newTopK(k int) *topK {
	return &topK{k: k, results: make([]models.SearchResult, 0, k)}
}

// add inserts r if it beats the current worst (or the buffer has room).
// Ties on similarity go to the more recently created record.
func (t *topK) add(r models.SearchResult) {
	pos := len(t.results)
	for pos > 0 && beats(r, t.results[pos-1]) {
		pos--
	}
	if pos >= t.k {
		return
	}

	if len(t.results) < t.k {
		t.results = append(t.results, models.SearchResult{})
	}
	copy(t.results[pos+1:], t.results[pos:])
	t.results[pos] = r
}

// sorted returns the buffer best-first.
func (t *topK) sorted() []models.SearchResult {
	return t.results
}

func beats(a, b models.SearchResult) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.CreatedAt > b.CreatedAt
}
