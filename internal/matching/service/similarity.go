package service

import (
	"math"
	"strings"

	"github.com/hbollon/go-edlib"

	"partidas-service/internal/matching/model"
)

const (
	// edit distance is quadratic; both operands are cut to this many runes
	maxEditLen = 500

	jaccardWeight = 0.6
	editWeight    = 0.4

	// per-word bonus factor applied to (weight - 1)
	weightBonusFactor = 0.05

	// Jaccard below this with no shared word skips the edit distance
	lowJaccard = 0.10

	// approximate word matching
	approxMinLen    = 5
	approxCandidate = 0.7
	approxAccept    = 0.8
)

// Similarity is the diagnostic result of scoring one pair.
type Similarity struct {
	Score        int      `json:"score"`
	MatchedWords []string `json:"matchedWords"`
	SynonymsUsed []string `json:"synonymsUsed"`
}

// CalculateSimilarity scores raw texts against each other.
func CalculateSimilarity(query, candidate string, weights model.WeightTable, synonyms model.SynonymTable) Similarity {
	return Score(Normalize(query), Normalize(candidate), weights, synonyms)
}

// Score computes a 0..100 similarity between pre-normalized token sequences.
func Score(queryTokens, candTokens []string, weights model.WeightTable, synonyms model.SynonymTable) Similarity {
	res := Similarity{MatchedWords: []string{}, SynonymsUsed: []string{}}
	if len(queryTokens) == 0 || len(candTokens) == 0 {
		return res
	}

	candSet := tokenSet(candTokens)
	if !hasOverlap(queryTokens, candTokens, candSet, synonyms) {
		return res
	}

	expandedQuery := ExpandSynonyms(queryTokens, synonyms)
	expandedCand := ExpandSynonyms(candTokens, synonyms)

	for _, w := range queryTokens {
		if _, ok := candSet[w]; ok {
			res.MatchedWords = append(res.MatchedWords, w)
			continue
		}
		if len(w) >= approxMinLen {
			if best, s, ok := bestApproxMatch(w, candTokens); ok && s > approxAccept {
				res.MatchedWords = append(res.MatchedWords, w+"≈"+best)
			}
		}
		for _, syn := range synonyms[w] {
			if _, ok := candSet[syn]; ok {
				res.SynonymsUsed = append(res.SynonymsUsed, w+"→"+syn)
				break
			}
		}
	}

	jac := Jaccard(expandedQuery, expandedCand)
	if jac < lowJaccard && len(res.MatchedWords) == 0 {
		res.Score = clampScore(math.Round(jac * 100))
		return res
	}

	edit := LevenshteinSimilarity(strings.Join(queryTokens, " "), strings.Join(candTokens, " "))
	base := (jac*jaccardWeight + edit*editWeight) * 100
	res.Score = clampScore(math.Round(base + weightBonus(res.MatchedWords, weights)*100))
	return res
}

// fast exit: raw overlap, or overlap through the query's synonyms
func hasOverlap(queryTokens, candTokens []string, candSet map[string]struct{}, synonyms model.SynonymTable) bool {
	for _, w := range queryTokens {
		if _, ok := candSet[w]; ok {
			return true
		}
	}
	expanded := tokenSet(ExpandSynonyms(queryTokens, synonyms))
	for _, w := range candTokens {
		if _, ok := expanded[w]; ok {
			return true
		}
	}
	return false
}

// weightBonus sums (weight-1)*factor over exact and approximate matches.
func weightBonus(matched []string, weights model.WeightTable) float64 {
	bonus := 0.0
	for _, m := range matched {
		word, _, _ := strings.Cut(m, "≈")
		bonus += (weights.Weight(word) - 1) * weightBonusFactor
	}
	return bonus
}

func bestApproxMatch(word string, candidates []string) (string, float64, bool) {
	best, bestScore := "", 0.0
	for _, c := range candidates {
		s := LevenshteinSimilarity(word, c)
		if s > approxCandidate && s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore, best != ""
}

// Jaccard similarity over the two token sets.
func Jaccard(a, b []string) float64 {
	setA, setB := tokenSet(a), tokenSet(b)
	union := len(setA)
	inter := 0
	for w := range setB {
		if _, ok := setA[w]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// LevenshteinSimilarity is 1 - distance/maxLen in [0..1].
func LevenshteinSimilarity(a, b string) float64 {
	ra, rb := truncateRunes(a, maxEditLen), truncateRunes(b, maxEditLen)
	la, lb := len([]rune(ra)), len([]rune(rb))
	if la == 0 {
		if lb == 0 {
			return 1
		}
		return 0
	}
	if lb == 0 {
		return 0
	}
	m := la
	if lb > m {
		m = lb
	}
	return 1 - float64(edlib.LevenshteinDistance(ra, rb))/float64(m)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func clampScore(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return int(v)
}
