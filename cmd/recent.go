package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vodpick/internal/catalog"
)

var recentCmd = &cobra.Command{
	Use:   "recent [hours]",
	Short: "Browse recently updated content",
	Args:  cobra.MaximumNArgs(1),
	RunE:  recentRun,
}

func recentRun(cmd *cobra.Command, args []string) error {
	hours, err := parseHoursArg(args)
	if err != nil {
		return err
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	results, err := e.catalog.Recent(cmd.Context(), hours)
	if err != nil {
		return fmt.Errorf("getting recent: %w", err)
	}
	return chooseAndPlay(cmd, e, "Recent", results)
}

func parseHoursArg(args []string) (int, error) {
	if len(args) == 0 {
		return catalog.DefaultRecentHours, nil
	}
	hours, err := strconv.Atoi(args[0])
	if err != nil || hours < 1 || hours > 24*30 {
		return 0, fmt.Errorf("hours must be between 1 and %d, got %q", 24*30, args[0])
	}
	return hours, nil
}
