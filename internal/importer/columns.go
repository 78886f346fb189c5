// Package importer maps spreadsheet rows onto budget lines and catalog entries.
package importer

import (
	"regexp"
	"strings"

	"partidas-service/internal/matching/service"
)

var rxHeaderNoise = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// normHeaderKey lowercases, strips accents and collapses punctuation.
func normHeaderKey(s string) string {
	s = service.Simplify(strings.NewReplacer("\u00A0", " ", "\u202F", " ").Replace(s))
	s = rxHeaderNoise.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// ResolveKey finds the real header in rec for the wanted name. want may
// list alternatives as "Resumen|Descripción". Exact names win, then
// normalized equality, then the longest normalized containment.
// Returns "" when nothing matches.
func ResolveKey(rec map[string]string, want string) string {
	want = strings.TrimSpace(want)
	if want == "" {
		return ""
	}
	alts := strings.Split(want, "|")
	for i := range alts {
		alts[i] = strings.TrimSpace(alts[i])
	}
	for _, a := range alts {
		if _, ok := rec[a]; ok {
			return a
		}
	}

	norms := make([]string, 0, len(alts))
	for _, a := range alts {
		if n := normHeaderKey(a); n != "" {
			norms = append(norms, n)
		}
	}

	bestKey, bestScore := "", 0
	for k := range rec {
		nk := normHeaderKey(k)
		if nk == "" {
			continue
		}
		score := 0
		for _, n := range norms {
			if nk == n {
				return k
			}
			if strings.Contains(nk, n) || strings.Contains(n, nk) {
				score = max(score, len(n))
			}
		}
		// map iteration order is random; break ties by name
		if score > bestScore || (score == bestScore && score > 0 && k < bestKey) {
			bestScore, bestKey = score, k
		}
	}
	return bestKey
}

// looksLikeHeaderMap spots a repeated header row inside the data.
func looksLikeHeaderMap(m map[string]string) bool {
	cnt := 0
	for _, v := range m {
		s := normHeaderKey(v)
		if s == "descripcion" || s == "resumen" || s == "cantidad" || s == "canpres" || s == "codigo" || s == "nat" {
			cnt++
		}
	}
	return cnt >= 2
}
