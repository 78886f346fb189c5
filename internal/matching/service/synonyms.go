package service

import "partidas-service/internal/matching/model"

// ExpandSynonyms returns the tokens plus every known synonym, deduplicated.
func ExpandSynonyms(tokens []string, synonyms model.SynonymTable) []string {
	if len(synonyms) == 0 {
		return UniqueTokens(tokens)
	}
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	add := func(w string) {
		if _, ok := seen[w]; ok {
			return
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	for _, t := range tokens {
		add(t)
	}
	for _, t := range tokens {
		for _, syn := range synonyms[t] {
			add(syn)
		}
	}
	return out
}
