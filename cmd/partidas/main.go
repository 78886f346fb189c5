package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"partidas-service/internal/config"
	"partidas-service/internal/store/sqlite"
)

var (
	dbPath   string
	logLevel string
	logger   zerolog.Logger

	rootCmd = &cobra.Command{
		Use:   "partidas",
		Short: "Match client budget lines against a price catalog",
		Long: `partidas matches the lines of a client construction budget against a
catalog of priced work items, learns from confirmed matches and exports the
priced budget as XLSX or BC3.

Learning data lives in a local SQLite database.`,
		SilenceUsage:      true,
		PersistentPreRunE: initLogger,
	}
)

func init() {
	cfg := config.Load()
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", cfg.LocalDBPath, "local SQLite learning database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(confirmCmd())
	rootCmd.AddCommand(statsCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogger(_ *cobra.Command, _ []string) error {
	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger = config.NewLogger(os.Stderr, lvl.String(), "")
	return nil
}

func openLocal(ctx context.Context) (*sqlite.Storage, func(), error) {
	s, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open learning database: %w", err)
	}
	return s, func() {
		if err := s.Close(); err != nil {
			logger.Warn().Err(err).Msg("close learning database")
		}
	}, nil
}
