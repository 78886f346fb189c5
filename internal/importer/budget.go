package importer

import (
	"strings"

	"partidas-service/internal/matching/model"
	"partidas-service/internal/matching/service"
	"partidas-service/internal/utils"
)

// BudgetMapping names the budget columns; each may list "|" alternatives.
type BudgetMapping struct {
	DescKey string
	QtyKey  string
	CodeKey string
	NatKey  string
}

func DefaultBudgetMapping() BudgetMapping {
	return BudgetMapping{
		DescKey: "Resumen|Descripción|Concepto|Partida",
		QtyKey:  "CanPres|Cantidad|Medición",
		CodeKey: "Código|Cod",
		NatKey:  "Nat|Naturaleza",
	}
}

// withDefaults fills blank keys from DefaultBudgetMapping.
func (m BudgetMapping) withDefaults() BudgetMapping {
	d := DefaultBudgetMapping()
	if m.DescKey == "" {
		m.DescKey = d.DescKey
	}
	if m.QtyKey == "" {
		m.QtyKey = d.QtyKey
	}
	if m.CodeKey == "" {
		m.CodeKey = d.CodeKey
	}
	if m.NatKey == "" {
		m.NatKey = d.NatKey
	}
	return m
}

type resolvedKeys struct{ desc, qty, code, nat string }

func (m BudgetMapping) resolve(rec map[string]string) resolvedKeys {
	return resolvedKeys{
		desc: ResolveKey(rec, m.DescKey),
		qty:  ResolveKey(rec, m.QtyKey),
		code: ResolveKey(rec, m.CodeKey),
		nat:  ResolveKey(rec, m.NatKey),
	}
}

// IsSummaryLine reports chapter totals and summaries that must never be
// matched as work items.
func IsSummaryLine(desc string) bool {
	s := service.Simplify(desc)
	return strings.HasPrefix(s, "total") || strings.Contains(s, "subtotal") || strings.Contains(s, "resumen de")
}

// BudgetLines turns client budget rows into input lines.
//
// With a nature column only "Partida" rows with a code are taken; without one
// a description is enough (and a code when the file has a code column).
// Summary lines are dropped. In coded files a following row with no code and
// no nature carries the long description and extends the line. Lines without a
// positive quantity are dropped; unparseable quantities count as zero.
func BudgetLines(rows []map[string]string, m BudgetMapping) []model.InputLine {
	if len(rows) == 0 {
		return nil
	}
	m = m.withDefaults()
	keys := m.resolve(rows[0])

	lines := make([]model.InputLine, 0, len(rows))
	for i, rec := range rows {
		if looksLikeHeaderMap(rec) {
			continue
		}
		code := cell(rec, keys.code)
		nat := cell(rec, keys.nat)
		desc := cell(rec, keys.desc)

		if keys.nat != "" {
			if !isPartida(nat) || code == "" {
				continue
			}
		} else if desc == "" || (keys.code != "" && code == "") {
			continue
		}
		if IsSummaryLine(desc) {
			continue
		}

		qty, _ := utils.ParseFloatES(cell(rec, keys.qty))

		if i+1 < len(rows) && (keys.code != "" || keys.nat != "") {
			next := rows[i+1]
			nextDesc := cell(next, keys.desc)
			if cell(next, keys.code) == "" && cell(next, keys.nat) == "" && nextDesc != "" && !IsSummaryLine(nextDesc) {
				desc = extendDescription(desc, nextDesc)
			}
		}

		if desc == "" || qty <= 0 {
			continue
		}
		lines = append(lines, model.InputLine{Description: desc, Quantity: qty})
	}
	return lines
}

func extendDescription(desc, ext string) string {
	switch {
	case len(ext) > len(desc):
		return ext
	case strings.Contains(desc, ext):
		return desc
	default:
		return desc + " " + ext
	}
}

func isPartida(nat string) bool {
	return service.Simplify(nat) == "partida"
}

func cell(rec map[string]string, key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimSpace(rec[key])
}
