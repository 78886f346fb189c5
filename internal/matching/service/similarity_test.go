package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partidas-service/internal/matching/model"
)

func TestScore_IdenticalTokens(t *testing.T) {
	sim := CalculateSimilarity("Instalacion punto luz simple", "Instalación de punto de luz simple", nil, nil)
	assert.Equal(t, 100, sim.Score)
	assert.Equal(t, []string{"instalacion", "punto", "luz", "simple"}, sim.MatchedWords)
	assert.Empty(t, sim.SynonymsUsed)
}

func TestScore_NoOverlapIsZero(t *testing.T) {
	sim := CalculateSimilarity("Suministro de agua embotellada", "Instalación de punto de luz simple", nil, nil)
	assert.Equal(t, 0, sim.Score)
	assert.Empty(t, sim.MatchedWords)
}

func TestScore_EmptyInput(t *testing.T) {
	assert.Equal(t, 0, CalculateSimilarity("", "tubo de cobre", nil, nil).Score)
	assert.Equal(t, 0, CalculateSimilarity("tubo de cobre", "   ", nil, nil).Score)
	assert.Equal(t, 0, Score(nil, nil, nil, nil).Score)
}

func TestScore_WeightBonus(t *testing.T) {
	q, c := Normalize("tubo cobre rígido"), Normalize("tubo acero galvanizado")
	plain := Score(q, c, nil, nil)
	weighted := Score(q, c, model.WeightTable{"tubo": 2.0}, nil)

	require.Positive(t, plain.Score)
	assert.InDelta(t, 5, weighted.Score-plain.Score, 1)
}

func TestScore_Synonyms(t *testing.T) {
	syn := model.SynonymTable{"tubo": {"tuberia"}}
	plain := CalculateSimilarity("tubo cobre", "tuberia cobre", nil, nil)
	expanded := CalculateSimilarity("tubo cobre", "tuberia cobre", nil, syn)

	assert.Greater(t, expanded.Score, plain.Score)
	assert.Equal(t, []string{"tubo→tuberia"}, expanded.SynonymsUsed)
}

func TestScore_SynonymOnlyOverlapPassesFastExit(t *testing.T) {
	syn := model.SynonymTable{"tubo": {"tuberia"}}
	assert.Equal(t, 0, CalculateSimilarity("tubo", "tuberia", nil, nil).Score)
	assert.Positive(t, CalculateSimilarity("tubo", "tuberia", nil, syn).Score)
}

func TestScore_ApproximateWords(t *testing.T) {
	sim := CalculateSimilarity("instalaciones electricas", "instalacion electricas", nil, nil)
	assert.Contains(t, sim.MatchedWords, "instalaciones≈instalacion")
	assert.Contains(t, sim.MatchedWords, "electricas")
}

func TestScore_Bounded(t *testing.T) {
	w := model.WeightTable{"tubo": 2, "cobre": 2, "rigido": 2}
	sim := CalculateSimilarity("tubo cobre rigido", "tubo cobre rigido", w, nil)
	assert.Equal(t, 100, sim.Score)
}

func TestSetComponentsAreSymmetric(t *testing.T) {
	a := Normalize("Solado de baldosa cerámica gres porcelánico")
	b := Normalize("Baldosa de gres para solado interior")
	w := model.WeightTable{"solado": 1.4, "baldosa": 1.2, "gres": 1.8}

	assert.Equal(t, Jaccard(a, b), Jaccard(b, a))

	ab := Score(a, b, w, nil)
	ba := Score(b, a, w, nil)
	assert.ElementsMatch(t, ab.MatchedWords, ba.MatchedWords)
	assert.InDelta(t, weightBonus(ab.MatchedWords, w), weightBonus(ba.MatchedWords, w), 1e-9)
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, Jaccard([]string{"a", "b"}, []string{"b", "a"}), 1e-9)
	assert.InDelta(t, 1.0/3, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.Zero(t, Jaccard(nil, nil))
}

func TestLevenshteinSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, LevenshteinSimilarity("", ""), 1e-9)
	assert.Zero(t, LevenshteinSimilarity("abc", ""))
	assert.InDelta(t, 0.75, LevenshteinSimilarity("tubo", "tuba"), 1e-9)
	assert.InDelta(t, 1.0, LevenshteinSimilarity("ñandú", "ñandú"), 1e-9)
}

func TestLevenshteinSimilarity_CapsLength(t *testing.T) {
	a := strings.Repeat("a", 600)
	b := strings.Repeat("a", maxEditLen) + strings.Repeat("b", 100)
	assert.InDelta(t, 1.0, LevenshteinSimilarity(a, b), 1e-9)
}

func TestExpandSynonyms(t *testing.T) {
	syn := model.SynonymTable{"tubo": {"tuberia", "caño"}, "cobre": {"tuberia"}}
	assert.Equal(t, []string{"tubo", "cobre", "tuberia", "caño"}, ExpandSynonyms([]string{"tubo", "cobre"}, syn))
	assert.Equal(t, []string{"tubo"}, ExpandSynonyms([]string{"tubo", "tubo"}, nil))
}
