package service

import (
	"sort"

	"partidas-service/internal/matching/model"
)

// indexedEntry carries the tokens computed for one batch run only.
type indexedEntry struct {
	entry  model.CatalogEntry
	tokens []string
}

// Index is an inverted index token -> catalog positions.
type Index struct {
	entries []indexedEntry
	inv     map[string][]int
}

// BuildIndex tokenizes every description once and records postings in
// catalog order.
func BuildIndex(catalog []model.CatalogEntry) *Index {
	idx := &Index{
		entries: make([]indexedEntry, len(catalog)),
		inv:     make(map[string][]int),
	}
	for i, e := range catalog {
		toks := Normalize(e.Description)
		idx.entries[i] = indexedEntry{entry: e, tokens: toks}
		for _, t := range UniqueTokens(toks) {
			idx.inv[t] = append(idx.inv[t], i)
		}
	}
	return idx
}

func (idx *Index) Len() int { return len(idx.entries) }

// Entry returns the catalog entry at pos and its cached tokens.
func (idx *Index) Entry(pos int) (model.CatalogEntry, []string) {
	e := idx.entries[pos]
	return e.entry, e.tokens
}

// Candidates returns the sorted union of postings for the query tokens. When
// nothing matches, the query is retried with synonyms; an empty result means
// there is no lexical basis for a match.
func (idx *Index) Candidates(query []string, synonyms model.SynonymTable) []int {
	if len(query) == 0 {
		return nil
	}
	out := idx.lookup(query)
	if len(out) == 0 && len(synonyms) > 0 {
		out = idx.lookup(ExpandSynonyms(query, synonyms))
	}
	return out
}

func (idx *Index) lookup(tokens []string) []int {
	seen := make(map[int]struct{})
	for _, t := range tokens {
		for _, pos := range idx.inv[t] {
			seen[pos] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]int, 0, len(seen))
	for pos := range seen {
		out = append(out, pos)
	}
	sort.Ints(out) // deterministic tie-breaking
	return out
}
