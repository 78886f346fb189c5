package service

import (
	"github.com/shopspring/decimal"

	"partidas-service/internal/matching/model"
)

// AutoValidateMin is the confidence a SIMILAR result needs for bulk validation.
const AutoValidateMin = 80

// Confirm marks a result as user-validated.
func Confirm(r model.MatchResult) model.MatchResult {
	r.Estado = model.EstadoCoincidente
	r.Confidence = 100
	return r
}

// Link binds a result to a catalog entry chosen by hand. The catalog price
// goes to the sale price; cost and markup restart at zero.
func Link(r model.MatchResult, e model.CatalogEntry) model.MatchResult {
	r.Estado = model.EstadoCoincidente
	r.Confidence = 100
	r.Entry = &e
	r.SalePrice = e.UnitPrice
	r.CostPrice = decimal.Zero
	r.MarkupPct = decimal.Zero
	return r
}

// AutoValidatable returns the ids of SIMILAR results at or above minConfidence.
func AutoValidatable(results []model.MatchResult, minConfidence int) []string {
	var ids []string
	for _, r := range results {
		if r.Estado == model.EstadoSimilar && r.Confidence >= minConfidence {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// AutoValidate confirms the given ids in a copy of results. Prices were
// already seeded by the matcher and are left alone.
func AutoValidate(results []model.MatchResult, ids []string) []model.MatchResult {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]model.MatchResult, len(results))
	for i, r := range results {
		if _, ok := want[r.ID]; ok {
			r = Confirm(r)
		}
		out[i] = r
	}
	return out
}

// Criteria for strict similarity checks.
type Criteria struct {
	DescriptionMinMatch float64 // 0..1
	PriceVariationMax   float64 // 0..1
}

func DefaultCriteria() Criteria {
	return Criteria{DescriptionMinMatch: 0.8, PriceVariationMax: 0.15}
}

// IsStrictlySimilar requires a high description score and, when the client
// quoted a price, a catalog price within the allowed variation.
func IsStrictlySimilar(score int, clientPrice decimal.Decimal, e model.CatalogEntry, c Criteria) bool {
	if float64(score) < c.DescriptionMinMatch*100 {
		return false
	}
	if clientPrice.IsPositive() && e.UnitPrice.IsPositive() {
		variation := clientPrice.Sub(e.UnitPrice).Abs().Div(e.UnitPrice)
		if variation.GreaterThan(decimal.NewFromFloat(c.PriceVariationMax)) {
			return false
		}
	}
	return true
}

var hundred = decimal.NewFromInt(100)

// UnitPrice = (sale + cost*(1+markup%)) * (1+global%), rounded to cents.
func UnitPrice(r model.MatchResult, globalPct decimal.Decimal) decimal.Decimal {
	base := r.SalePrice.Add(r.CostPrice.Mul(decimal.NewFromInt(1).Add(r.MarkupPct.Div(hundred))))
	return base.Mul(decimal.NewFromInt(1).Add(globalPct.Div(hundred))).Round(2)
}

func LineTotal(r model.MatchResult, globalPct decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(r.Quantity).Mul(UnitPrice(r, globalPct)).Round(2)
}

type Summary struct {
	Total           int             `json:"total"`
	Coincidentes    int             `json:"coincidentes"`
	Similares       int             `json:"similares"`
	SinCoincidencia int             `json:"sinCoincidencia"`
	Linked          int             `json:"vinculadas"`
	EstimatedTotal  decimal.Decimal `json:"totalEstimado"`
	TotalCost       decimal.Decimal `json:"totalCoste"`
}

// Summarize counts results per state and totals the budget. Unmatched lines
// do not contribute to the estimated total.
func Summarize(results []model.MatchResult, globalPct decimal.Decimal) Summary {
	s := Summary{Total: len(results), EstimatedTotal: decimal.Zero, TotalCost: decimal.Zero}
	for _, r := range results {
		switch r.Estado {
		case model.EstadoCoincidente:
			s.Coincidentes++
		case model.EstadoSimilar:
			s.Similares++
		default:
			s.SinCoincidencia++
		}
		qty := decimal.NewFromFloat(r.Quantity)
		s.TotalCost = s.TotalCost.Add(r.CostPrice.Mul(qty)).Add(r.SalePrice.Mul(qty))
		if r.Estado == model.EstadoSinCoincidencia {
			continue
		}
		s.Linked++
		s.EstimatedTotal = s.EstimatedTotal.Add(LineTotal(r, globalPct))
	}
	return s
}
