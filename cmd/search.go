package cmd

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cobra"

	"vodpick/internal/media"
	"vodpick/internal/resolve"
	"vodpick/internal/ui"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search every catalog and play a chosen entry",
	Args:  cobra.MinimumNArgs(1),
	RunE:  searchRun,
}

func searchRun(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	results, err := e.catalog.Search(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return chooseAndPlay(cmd, e, "Search", results)
}

// chooseAndPlay lists catalog entries and plays the chosen one from its own
// source. Non-interactive runs print the list instead.
func chooseAndPlay(cmd *cobra.Command, e *engine, prompt string, results []media.Candidate) error {
	if flagJSON {
		return printJSON(lo.Ternary(results == nil, []media.Candidate{}, results))
	}
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	items := lo.Map(results, func(c media.Candidate, _ int) string { return entryLine(c) })
	if !ui.IsTerminal() {
		for _, item := range items {
			fmt.Println(item)
		}
		return nil
	}

	idx, err := ui.Select(prompt, items)
	if err != nil {
		return err
	}
	selected := results[idx]
	log.Debug().Str("ref", selected.Ref().String()).Str("title", selected.Title).Msg("selected")

	req := resolve.Request{
		Query: media.Query{Title: selected.Title},
		Hint:  mo.Some(selected.Ref()),
	}
	return resolveAndPlay(cmd.Context(), e, req, false)
}

// entryLine formats an unprobed catalog entry.
func entryLine(c media.Candidate) string {
	line := c.Title
	if c.Year != "" && c.Year != "unknown" {
		line += " (" + c.Year + ")"
	}
	if c.TypeName != "" {
		line += "  " + c.TypeName
	}
	if n := len(c.Episodes); n > 1 {
		line += fmt.Sprintf("  %d episodes", n)
	}
	return line + "  [" + lo.CoalesceOrEmpty(c.SourceName, c.Source) + " " + c.ID + "]"
}
