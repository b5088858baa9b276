package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"vodpick/internal/httputil"
	"vodpick/internal/media"
)

var (
	flagSkipIntro float64
	flagSkipOutro float64
	flagSkipOff   bool
)

var skipCmd = &cobra.Command{
	Use:   "skip <source> <id>",
	Short: "Show or set intro/outro skipping for a title",
	Long: `Without flags, prints the skip settings of a title. With --intro or
--outro, stores new lengths in seconds and enables skipping; --off disables it.`,
	Args: cobra.ExactArgs(2),
	RunE: skipRun,
}

func init() {
	skipCmd.Flags().Float64Var(&flagSkipIntro, "intro", 0, "Intro length in seconds")
	skipCmd.Flags().Float64Var(&flagSkipOutro, "outro", 0, "Outro length in seconds")
	skipCmd.Flags().BoolVar(&flagSkipOff, "off", false, "Disable skipping for the title")
}

func skipRun(cmd *cobra.Command, args []string) error {
	ref := media.SourceRef{Source: args[0], ID: args[1]}
	if err := httputil.ValidateSourceKey(ref.Source); err != nil {
		return err
	}
	if err := httputil.ValidateID(ref.ID); err != nil {
		return err
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireStore(); err != nil {
		return err
	}

	current, err := e.store.SkipConfig(cmd.Context(), ref)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	changed := flags.Changed("intro") || flags.Changed("outro") || flagSkipOff
	if changed {
		if flags.Changed("intro") {
			current.IntroSeconds = flagSkipIntro
		}
		if flags.Changed("outro") {
			current.OutroSeconds = flagSkipOutro
		}
		current.Enabled = !flagSkipOff
		if err := e.store.SetSkipConfig(cmd.Context(), current); err != nil {
			return err
		}
	}

	if flagJSON {
		return printJSON(current)
	}
	state := "off"
	if current.Enabled {
		state = "on"
	}
	fmt.Printf("%s: skipping %s, intro %.0fs, outro %.0fs\n", ref, state, current.IntroSeconds, current.OutroSeconds)
	return nil
}
