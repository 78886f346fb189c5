package service

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Spanish stopwords plus budget noise words (unidad, incluye, ...).
// Stored diacritic-free because tokens are compared after stripping.
var stopwords = buildStopwords(
	"de", "la", "el", "en", "y", "a", "los", "del", "las", "un", "una",
	"por", "con", "para", "al", "es", "lo", "como", "más", "o", "pero",
	"sus", "le", "ha", "me", "si", "sin", "sobre", "este", "ya", "entre",
	"cuando", "todo", "esta", "ser", "son", "dos", "también", "fue", "había",
	"era", "muy", "años", "hasta", "desde", "está", "mi", "porque", "qué",
	"sólo", "han", "yo", "hay", "vez", "puede", "todos", "así", "nos",
	"ni", "parte", "tiene", "él", "uno", "donde", "bien", "tiempo", "mismo",
	"ese", "ahora", "cada", "e", "vida", "otro", "después", "te", "otros",
	"aunque", "esa", "eso", "hace", "otra", "gobierno", "tan", "durante",
	"tipo", "ud", "uds", "unidad", "unidades", "incluye", "incluido", "según",
)

func buildStopwords(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[Simplify(w)] = struct{}{}
	}
	return m
}

// shorter tokens carry no signal
const minTokenLen = 3

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]+`)

// Simplify lowercases, strips diacritics and trims. No punctuation or
// stopword handling, so catalog codes survive intact.
func Simplify(s string) string {
	return strings.TrimSpace(stripDiacritics(strings.ToLower(s)))
}

// Normalize turns free text into the ordered token sequence used for scoring.
func Normalize(s string) []string {
	if s == "" {
		return nil
	}
	clean := nonAlnum.ReplaceAllString(Simplify(s), " ")
	fields := strings.Fields(clean)
	out := fields[:0]
	for _, f := range fields {
		if len(f) < minTokenLen {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NFD, drop combining marks, recompose.
func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func tokenSet(tokens []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// UniqueTokens dedupes a token sequence keeping first-seen order.
func UniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
