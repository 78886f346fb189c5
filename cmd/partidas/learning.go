package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"partidas-service/internal/learning"
)

func confirmCmd() *cobra.Command {
	var catalogID string
	cmd := &cobra.Command{
		Use:   "confirm CLIENT_TEXT CATALOG_TEXT",
		Short: "Teach a confirmed match to the learning store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, cleanup, err := openLocal(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			eng := learning.New(local, nil, learning.WithLogger(logger))
			out, err := eng.RecordConfirmation(cmd.Context(), args[0], args[1], catalogID)
			if err != nil {
				return err
			}
			for _, w := range out.Weights {
				fmt.Fprintf(cmd.OutOrStdout(), "weight  %-20s %.2f (seen %d)\n", w.Word, w.Weight, w.Frequency)
			}
			if out.Synonym != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "synonym %s -> %s %.2f\n", out.Synonym.Word, out.Synonym.Synonym, out.Synonym.Confidence)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogID, "id", "", "catalog entry id")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show learning statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			local, cleanup, err := openLocal(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			st, err := learning.New(local, nil, learning.WithLogger(logger)).Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "confirmations: %d\nwords:         %d\nsynonyms:      %d\n",
				st.TotalConfirmations, st.UniqueWords, st.SynonymPairs)
			return nil
		},
	}
}
