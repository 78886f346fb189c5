package importer

import (
	"strings"

	"github.com/shopspring/decimal"

	"partidas-service/internal/matching/model"
	"partidas-service/internal/matching/service"
	"partidas-service/internal/utils"
)

const defaultCategory = "General"

// CatalogMapping names the catalog columns; each may list "|" alternatives.
type CatalogMapping struct {
	CodeKey     string
	NatKey      string
	UnitKey     string
	DescKey     string
	PriceKey    string
	CategoryKey string
}

func DefaultCatalogMapping() CatalogMapping {
	return CatalogMapping{
		CodeKey:     "Código|Cod",
		NatKey:      "Nat|Naturaleza",
		UnitKey:     "Ud|Unidad",
		DescKey:     "Resumen|Descripción",
		PriceKey:    "Pres|Precio|Precio unitario|PU",
		CategoryKey: "Categoría|Capítulo",
	}
}

// CatalogEntries reads a price database export. "Capítulo" rows set the
// category for the entries below them; "Partida" rows, or rows whose code
// contains a dot, become entries. Later duplicates of a code win.
func CatalogEntries(rows []map[string]string, m CatalogMapping) []model.CatalogEntry {
	if len(rows) == 0 {
		return nil
	}
	d := DefaultCatalogMapping()
	if m == (CatalogMapping{}) {
		m = d
	}
	first := rows[0]
	codeK := ResolveKey(first, m.CodeKey)
	natK := ResolveKey(first, m.NatKey)
	unitK := ResolveKey(first, m.UnitKey)
	descK := ResolveKey(first, m.DescKey)
	priceK := ResolveKey(first, m.PriceKey)
	catK := ResolveKey(first, m.CategoryKey)

	category := defaultCategory
	byCode := make(map[string]int)
	var out []model.CatalogEntry
	for i, rec := range rows {
		if looksLikeHeaderMap(rec) {
			continue
		}
		code := cell(rec, codeK)
		nat := service.Simplify(cell(rec, natK))
		desc := cell(rec, descK)

		if nat == "capitulo" {
			if desc != "" {
				category = desc
			}
			continue
		}
		if nat != "partida" && !strings.Contains(code, ".") && natK != "" {
			continue
		}
		if i+1 < len(rows) {
			next := rows[i+1]
			if cell(next, codeK) == "" && cell(next, natK) == "" {
				if ext := cell(next, descK); ext != "" {
					desc = extendDescription(desc, ext)
				}
			}
		}

		price, ok := utils.ParseFloatES(cell(rec, priceK))
		if code == "" || desc == "" || !ok {
			continue
		}
		cat := category
		if c := cell(rec, catK); c != "" {
			cat = c
		}
		e := model.CatalogEntry{
			Code:        code,
			Description: desc,
			Category:    cat,
			Unit:        cell(rec, unitK),
			UnitPrice:   decimal.NewFromFloat(price).Round(4),
		}
		if at, dup := byCode[code]; dup {
			out[at] = e
			continue
		}
		byCode[code] = len(out)
		out = append(out, e)
	}
	return out
}
