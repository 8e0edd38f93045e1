package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"chatd/internal/journal"
)

func newHistoryCmd(f *serverFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent requests from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), f)
			if err != nil {
				return err
			}
			if cfg.JournalPath == "" {
				return errors.New("journal disabled: set journal_path or --journal")
			}
			jr, err := journal.Open(cfg.JournalPath)
			if err != nil {
				return err
			}
			defer jr.Close()
			entries, err := jr.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			counts, err := jr.Counts(cmd.Context())
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries, counts)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().StringVar(&f.journalPath, "journal", "", "SQLite request journal path")
	return cmd
}

func printHistory(w io.Writer, entries []journal.Entry, counts map[string]int) {
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-6s %-9s prompt=%d response=%d tokens=%d time=%.2fs",
			e.CreatedAt.Local().Format(time.DateTime), e.Mode, e.Outcome,
			e.PromptLength, e.ResponseLength, e.TokenCount, e.GenerationTime)
		if e.Error != "" {
			line += "  error=" + e.Error
		}
		fmt.Fprintln(w, line)
	}
	outcomes := make([]string, 0, len(counts))
	for k := range counts {
		outcomes = append(outcomes, k)
	}
	sort.Strings(outcomes)
	fmt.Fprint(w, "\ntotals:")
	for _, k := range outcomes {
		fmt.Fprintf(w, " %s=%d", k, counts[k])
	}
	fmt.Fprintln(w)
}
