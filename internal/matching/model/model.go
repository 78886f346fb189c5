package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estado is the match-quality classification of a result.
type Estado string

const (
	EstadoCoincidente     Estado = "COINCIDENTE"
	EstadoSimilar         Estado = "SIMILAR"
	EstadoSinCoincidencia Estado = "SIN COINCIDENCIA"
)

// Default thresholds. Every classifier reads them through Thresholds.
const (
	MatchThreshold   = 85
	SimilarThreshold = 60
)

type Thresholds struct {
	Match   int `json:"match"`
	Similar int `json:"similar"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Match: MatchThreshold, Similar: SimilarThreshold}
}

// Classify is a pure function of the score.
func (t Thresholds) Classify(score int) Estado {
	switch {
	case score >= t.Match:
		return EstadoCoincidente
	case score >= t.Similar:
		return EstadoSimilar
	default:
		return EstadoSinCoincidencia
	}
}

// CatalogEntry is a priced catalog item (partida).
type CatalogEntry struct {
	ID          string          `json:"id"`
	Code        string          `json:"codigo" validate:"required"`
	Description string          `json:"descripcion" validate:"required"`
	Category    string          `json:"categoria"`
	Unit        string          `json:"unidad"`
	UnitPrice   decimal.Decimal `json:"precioUnitario"`
}

// InputLine is one line of an imported client budget.
type InputLine struct {
	Description string  `json:"descripcion"`
	Quantity    float64 `json:"cantidad" validate:"gte=0"`
}

// MatchResult is the classified outcome for one input line.
type MatchResult struct {
	ID           string          `json:"id"`
	ClientText   string          `json:"clientePartida"`
	Quantity     float64         `json:"cantidad"`
	Estado       Estado          `json:"estado"`
	Confidence   int             `json:"confianza"`
	Entry        *CatalogEntry   `json:"miPartida,omitempty"`
	CostPrice    decimal.Decimal `json:"precioCoste"`
	MarkupPct    decimal.Decimal `json:"porcentaje"`
	SalePrice    decimal.Decimal `json:"precioVenta"`
	MatchedWords []string        `json:"matchedWords,omitempty"`
	Synonyms     []string        `json:"synonymsUsed,omitempty"`
}

type WordWeight struct {
	Word      string    `json:"word" db:"word"`
	Weight    float64   `json:"weight" db:"weight"`
	Frequency int       `json:"frequency" db:"frequency"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type SynonymPair struct {
	Word       string  `json:"word" db:"word"`
	Synonym    string  `json:"synonym" db:"synonym"`
	Confidence float64 `json:"confidence" db:"confidence"`
}

// ConfirmationRecord is append-only audit history.
type ConfirmationRecord struct {
	ID                 string    `json:"id" db:"id"`
	UserID             string    `json:"userId,omitempty" db:"user_id"`
	ClientDescription  string    `json:"clientDescription" db:"cliente_desc" validate:"required"`
	CatalogDescription string    `json:"catalogDescription" db:"partida_desc" validate:"required"`
	CatalogID          string    `json:"catalogId,omitempty" db:"partida_id"`
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
}

// WeightTable maps word -> multiplicative weight. Unknown words weigh 1.0.
type WeightTable map[string]float64

func (w WeightTable) Weight(word string) float64 {
	if v, ok := w[word]; ok && v != 0 {
		return v
	}
	return 1
}

// SynonymTable maps word -> known synonyms.
type SynonymTable map[string][]string

// Clone returns deep copies so a batch never sees later mutation.
func (w WeightTable) Clone() WeightTable {
	out := make(WeightTable, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

func (s SynonymTable) Clone() SynonymTable {
	out := make(SynonymTable, len(s))
	for k, v := range s {
		out[k] = append([]string(nil), v...)
	}
	return out
}

type LearningStats struct {
	TotalConfirmations int `json:"totalConfirmations"`
	UniqueWords        int `json:"uniqueWords"`
	SynonymPairs       int `json:"synonymPairs"`
}
