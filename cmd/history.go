package cmd

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cobra"

	"vodpick/internal/history"
	"vodpick/internal/media"
	"vodpick/internal/resolve"
	"vodpick/internal/store"
	"vodpick/internal/ui"
)

var (
	flagHistoryLimit  int
	flagHistoryDelete bool
	flagHistoryClear  bool
	flagHistoryExport string
	flagHistoryImport string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Resume from watch history",
	Args:  cobra.NoArgs,
	RunE:  historyRun,
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", store.DefaultRecentLimit, "Number of entries to show")
	historyCmd.Flags().BoolVar(&flagHistoryDelete, "delete", false, "Pick an entry to delete instead of playing it")
	historyCmd.Flags().BoolVar(&flagHistoryClear, "clear", false, "Delete the whole history")
	historyCmd.Flags().StringVar(&flagHistoryExport, "export", "", "Write the history to a TSV file")
	historyCmd.Flags().StringVar(&flagHistoryImport, "import", "", "Merge a TSV file written by --export")
	historyCmd.MarkFlagsMutuallyExclusive("clear", "export", "import", "delete")
}

func historyRun(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireStore(); err != nil {
		return err
	}
	ctx := cmd.Context()

	switch {
	case flagHistoryExport != "":
		n, err := history.Export(ctx, e.store, flagHistoryExport)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d entries to %s.\n", n, flagHistoryExport)
		return nil
	case flagHistoryImport != "":
		n, err := history.Import(ctx, e.store, flagHistoryImport)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d entries.\n", n)
		return nil
	}

	if flagHistoryClear {
		if ui.IsTerminal() {
			ok, err := ui.Confirm("Delete the whole watch history?")
			if err != nil || !ok {
				return err
			}
		}
		if err := e.store.ClearPlayRecords(ctx); err != nil {
			return err
		}
		fmt.Println("History cleared.")
		return nil
	}

	records, err := e.store.RecentPlays(ctx, flagHistoryLimit)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if flagJSON && !flagHistoryDelete {
		return printJSON(lo.Ternary(records == nil, []media.PlayRecord{}, records))
	}
	if len(records) == 0 {
		fmt.Println("No history entries found.")
		return nil
	}

	idx, err := ui.Select("History", lo.Map(records, func(r media.PlayRecord, _ int) string {
		return ui.PlayRecordLine(r)
	}))
	if err != nil {
		return err
	}
	selected := records[idx]
	ref := media.SourceRef{Source: selected.Source, ID: selected.ID}

	if flagHistoryDelete {
		if err := e.store.DeletePlayRecord(ctx, ref); err != nil {
			return err
		}
		fmt.Printf("Removed %s from history.\n", selected.Title)
		return nil
	}

	log.Debug().Str("ref", ref.String()).Int("episode", selected.Episode+1).Msg("resuming from history")
	return resolveAndPlay(ctx, e, historyRequest(selected.Title, selected.SearchTitle, ref, mo.Some(selected.Episode)), false)
}

// historyRequest resolves a stored title straight to its saved source.
func historyRequest(title, searchTitle string, ref media.SourceRef, episode mo.Option[int]) resolve.Request {
	return resolve.Request{
		Query:   media.Query{Title: title, SearchTitle: searchTitle},
		Hint:    mo.Some(ref),
		Episode: episode,
	}
}
