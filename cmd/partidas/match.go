package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"partidas-service/internal/export"
	"partidas-service/internal/fileio"
	"partidas-service/internal/importer"
	"partidas-service/internal/learning"
	"partidas-service/internal/matching/model"
	"partidas-service/internal/matching/service"
)

type matchOptions struct {
	catalogFile string
	budgetFile  string
	chunk       int
	global      float64
	out         string
	quiet       bool
}

func matchCmd() *cobra.Command {
	var opts matchOptions
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match a client budget against a catalog file",
		Long: `Match reads a catalog spreadsheet and a client budget spreadsheet (xlsx, xls
or csv), matches every budget line with the learned weights and synonyms,
and prints one line per result followed by a summary.

Use --out with a .xlsx or .bc3 file to export the priced budget.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMatch(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.catalogFile, "catalog", "", "catalog spreadsheet")
	cmd.Flags().StringVar(&opts.budgetFile, "budget", "", "client budget spreadsheet")
	cmd.Flags().IntVar(&opts.chunk, "chunk", service.DefaultChunkSize, "lines per progress step")
	cmd.Flags().Float64Var(&opts.global, "global", 0, "global percentage applied to every unit price")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "export file (.xlsx or .bc3)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "hide the progress bar")
	_ = cmd.MarkFlagRequired("catalog")
	_ = cmd.MarkFlagRequired("budget")
	return cmd
}

func runMatch(cmd *cobra.Command, opts matchOptions) error {
	ctx := cmd.Context()

	catalogRows, err := readRows(opts.catalogFile)
	if err != nil {
		return err
	}
	catalog := importer.CatalogEntries(catalogRows, importer.DefaultCatalogMapping())
	if len(catalog) == 0 {
		return fmt.Errorf("no catalog entries found in %s", opts.catalogFile)
	}

	budgetRows, err := readRows(opts.budgetFile)
	if err != nil {
		return err
	}
	lines := importer.BudgetLines(budgetRows, importer.DefaultBudgetMapping())
	if len(lines) == 0 {
		return fmt.Errorf("no budget lines with quantity found in %s", opts.budgetFile)
	}

	local, cleanup, err := openLocal(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	weights, synonyms := learning.New(local, nil, learning.WithLogger(logger)).LoadTables(ctx)

	matcher := service.NewMatcher(service.WithLogger(logger))
	run := matcher.Submit(ctx, service.Batch{
		Lines:     lines,
		Catalog:   catalog,
		Weights:   weights,
		Synonyms:  synonyms,
		ChunkSize: opts.chunk,
	})

	var bar *progressbar.ProgressBar
	if !opts.quiet {
		bar = progressbar.NewOptions(len(lines),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Matching"),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(cmd.ErrOrStderr()) }),
		)
	}

	var results []model.MatchResult
	for ev := range run.Events() {
		switch ev.Type {
		case service.EventProgress:
			if bar != nil {
				_ = bar.Set(ev.Current)
			}
		case service.EventComplete:
			results = ev.Results
		case service.EventError:
			return ev.Err
		}
	}
	if results == nil {
		return fmt.Errorf("match interrupted: %w", ctx.Err())
	}

	global := decimal.NewFromFloat(opts.global)
	if err := printResults(cmd.OutOrStdout(), results, global); err != nil {
		return err
	}
	if opts.out != "" {
		return writeExport(opts.out, results, global)
	}
	return nil
}

func readRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	rows, err := fileio.ReadAnyMaps(f, path, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

func printResults(w io.Writer, results []model.MatchResult, global decimal.Decimal) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ESTADO\tCONF\tCANT\tCÓDIGO\tPRECIO\tDESCRIPCIÓN")
	for _, r := range results {
		code := "-"
		if r.Entry != nil {
			code = r.Entry.Code
		}
		fmt.Fprintf(tw, "%s\t%d\t%g\t%s\t%s\t%s\n",
			r.Estado, r.Confidence, r.Quantity, code, service.UnitPrice(r, global).StringFixed(2), truncate(r.ClientText, 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := service.Summarize(results, global)
	_, err := fmt.Fprintf(w, "\n%d lines: %d coincidentes, %d similares, %d sin coincidencia\nestimated total: %s\n",
		s.Total, s.Coincidentes, s.Similares, s.SinCoincidencia, s.EstimatedTotal.StringFixed(2))
	return err
}

func writeExport(path string, results []model.MatchResult, global decimal.Decimal) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		err = export.XLSX(f, results, global)
	case ".bc3":
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		err = export.BC3(f, results, name, global, time.Now())
	default:
		return fmt.Errorf("unsupported export format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to export %s: %w", path, err)
	}
	return f.Close()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
