// Package export writes priced match results as a budget spreadsheet or as
// a FIEBDC-3 (BC3) exchange file.
package export

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	excelize "github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"partidas-service/internal/matching/model"
	"partidas-service/internal/matching/service"
)

const (
	TotalLabel  = "TOTAL PRESUPUESTO"
	defaultUnit = "ud"
	sheetName   = "Presupuesto Final"
)

// Row is one priced budget line as exported.
type Row struct {
	Code        string
	Unit        string
	Summary     string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

// Rows prices every result with the global percentage applied.
func Rows(results []model.MatchResult, globalPct decimal.Decimal) ([]Row, decimal.Decimal) {
	rows := make([]Row, 0, len(results))
	total := decimal.Zero
	for _, r := range results {
		row := Row{
			Unit:      defaultUnit,
			Summary:   Summary(r.ClientText),
			Quantity:  decimal.NewFromFloat(r.Quantity),
			UnitPrice: service.UnitPrice(r, globalPct),
			Total:     service.LineTotal(r, globalPct),
		}
		if r.Entry != nil {
			row.Code = r.Entry.Code
			if r.Entry.Unit != "" {
				row.Unit = r.Entry.Unit
			}
		}
		if full := strings.TrimSpace(r.ClientText); full != row.Summary {
			row.Description = full
		}
		total = total.Add(row.Total)
		rows = append(rows, row)
	}
	return rows, total
}

var (
	rxSentence     = regexp.MustCompile(`[.\n:]`)
	rxTrailingPunc = regexp.MustCompile(`[,;:. ]+$`)
)

// Summary shortens a long description to a title: the first sentence when it
// is of reasonable length, else the first 80 characters cut at a word.
func Summary(text string) string {
	clean := strings.TrimSpace(text)
	if len([]rune(clean)) <= 60 {
		return clean
	}
	first := rxSentence.Split(clean, 2)[0]
	if n := len([]rune(first)); n > 10 && n < 100 {
		clean = strings.TrimSpace(first)
	} else {
		r := []rune(clean)
		clean = string(r[:min(80, len(r))])
		if i := strings.LastIndex(clean, " "); i > 40 {
			clean = clean[:i]
		}
	}
	return strings.TrimSpace(rxTrailingPunc.ReplaceAllString(clean, ""))
}

// XLSX writes the budget in the Código/Nat/Ud/Resumen/CanPres/Pres/ImpPres
// layout budgeting tools import, with the long description on the row below.
func XLSX(w io.Writer, results []model.MatchResult, globalPct decimal.Decimal) error {
	rows, total := Rows(results, globalPct)

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return err
	}

	put := func(n int, values ...any) error {
		cellRef, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		return f.SetSheetRow(sheetName, cellRef, &values)
	}

	n := 1
	if err := put(n, "Presupuesto"); err != nil {
		return err
	}
	n++
	if err := put(n, "Código", "Nat", "Ud", "Resumen / Descripción", "CanPres", "Pres", "ImpPres"); err != nil {
		return err
	}
	for _, r := range rows {
		n++
		if err := put(n, r.Code, "Partida", r.Unit, r.Summary,
			r.Quantity.InexactFloat64(), r.UnitPrice.InexactFloat64(), r.Total.InexactFloat64()); err != nil {
			return err
		}
		if r.Description != "" {
			n++
			if err := put(n, "", "", "", r.Description); err != nil {
				return err
			}
		}
	}
	n++
	if err := put(n, "", "", "", TotalLabel, "", "", total.InexactFloat64()); err != nil {
		return err
	}

	for col, width := range map[string]float64{"A": 15, "B": 10, "C": 8, "D": 80, "E": 12, "F": 12, "G": 15} {
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

const bc3Root = "C000"

// BC3 writes a FIEBDC-3 file. Budget viewers expect Windows-1252 text with
// CRLF line ends; characters outside that charset become "?".
func BC3(w io.Writer, results []model.MatchResult, name string, globalPct decimal.Decimal, now time.Time) error {
	rows, total := Rows(results, globalPct)
	title := sanitizeBC3(name)

	var lines []string
	lines = append(lines,
		fmt.Sprintf("~V|FIEBDC-3/2016|PartidasService|%s|%s|%s|EUR|0|ANSI|", now.Format("020106"), bc3Root, title),
		"~K|2|EUR|2|2|2|2|",
		fmt.Sprintf("~C|%s||%s|%s||0|", bc3Root, title, total.StringFixed(2)),
	)

	used := make(map[string]struct{}, len(rows))
	var decomposition []string
	for i, r := range rows {
		base := sanitizeBC3(r.Code)
		if base == "" {
			base = fmt.Sprintf("P%05d", i+1)
		}
		code := base
		for suffix := 1; ; suffix++ {
			if _, dup := used[code]; !dup {
				break
			}
			code = fmt.Sprintf("%s-%d", base, suffix)
		}
		used[code] = struct{}{}

		summary := sanitizeBC3(r.Summary)
		lines = append(lines, fmt.Sprintf("~C|%s|%s|%s|%s||1|", code, sanitizeBC3(r.Unit), summary, r.UnitPrice.StringFixed(2)))
		if r.Description != "" {
			lines = append(lines, fmt.Sprintf("~T|%s|%s|", code, sanitizeBC3(r.Description)))
		}
		decomposition = append(decomposition, fmt.Sprintf("~D|%s|%s|%s|1|0|", bc3Root, code, r.Quantity.StringFixed(2)))
	}
	lines = append(lines, decomposition...)

	enc := transform.NewWriter(w, encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()))
	if _, err := io.WriteString(enc, strings.Join(lines, "\r\n")+"\r\n"); err != nil {
		return err
	}
	return enc.Close()
}

// sanitizeBC3 keeps a value inside one field of one record.
func sanitizeBC3(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "|", "/", "~", "-").Replace(s)
	if r := []rune(s); len(r) > 250 {
		s = string(r[:250])
	}
	return strings.TrimSpace(s)
}
