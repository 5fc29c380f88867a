// Package index holds searchable chunk entries and ranks them against a query
// by lexical keyword overlap.
package index

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"docqa/pkg/domain"
)

// DefaultLimit is the number of results returned when no positive limit is given.
const DefaultLimit = 3

// minQueryWordChars is the rune length a query word must exceed to be scored.
const minQueryWordChars = 2

// Result is a scored search hit.
type Result struct {
	Chunk domain.IndexedChunk `json:"chunk"`
	Score int                 `json:"score"`
}

// Index is a flat, insertion-ordered collection of indexed chunks.
// It is not safe for concurrent use; callers serialize access.
type Index struct {
	entries []domain.IndexedChunk
}

// New returns an empty index.
func New() *Index {
	return &Index{}
}

// Len reports the number of indexed chunks.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Add indexes every chunk of a document, appending in chunk order.
func (ix *Index) Add(documentID string, chunks []domain.Chunk) {
	for _, ch := range chunks {
		ix.entries = append(ix.entries, domain.IndexedChunk{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			Content:    ch.Content,
			Filename:   ch.Filename,
			Keywords:   Keywords(ch.Content),
		})
	}
}

// RemoveDocument drops every entry of documentID and returns how many were removed.
func (ix *Index) RemoveDocument(documentID string) int {
	kept := ix.entries[:0]
	for _, e := range ix.entries {
		if e.DocumentID != documentID {
			kept = append(kept, e)
		}
	}
	removed := len(ix.entries) - len(kept)
	clear(ix.entries[len(kept):])
	ix.entries = kept
	return removed
}

// Search scores every entry against query and returns up to limit hits,
// highest score first. Entries with equal scores keep insertion order and
// entries scoring zero are never returned.
func (ix *Index) Search(query string, limit int) []Result {
	if limit <= 0 {
		limit = DefaultLimit
	}
	words := queryWords(query)
	if len(words) == 0 || len(ix.entries) == 0 {
		return []Result{}
	}

	results := make([]Result, 0)
	for _, e := range ix.entries {
		score := Score(words, e.Keywords)
		if score == 0 {
			continue
		}
		results = append(results, Result{Chunk: e, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Keywords lowercases content and splits it on single spaces, keeping duplicates.
func Keywords(content string) []string {
	return strings.Split(strings.ToLower(content), " ")
}

// Score sums, for each query word, the number of keywords that contain it or
// are contained in it.
func Score(queryWords, keywords []string) int {
	score := 0
	for _, w := range queryWords {
		for _, k := range keywords {
			if strings.Contains(k, w) || strings.Contains(w, k) {
				score++
			}
		}
	}
	return score
}

// queryWords returns the lowercased query words long enough to be scored.
func queryWords(query string) []string {
	var out []string
	for _, w := range strings.Split(strings.ToLower(query), " ") {
		if utf8.RuneCountInString(w) > minQueryWordChars {
			out = append(out, w)
		}
	}
	return out
}
