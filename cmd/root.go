// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vodpick/internal/catalog"
	"vodpick/internal/config"
	"vodpick/internal/httputil"
	"vodpick/internal/logger"
	"vodpick/internal/probe"
	"vodpick/internal/resolve"
	"vodpick/internal/store"
	"vodpick/internal/ui"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagPlayer   string
	flagDebug    bool
	flagJSON     bool
	flagDownload string
)

// cfg holds the loaded configuration (merged: defaults < config file < flags).
var cfg *config.Config

// log is the process logger, set up after the config is loaded.
var log = logger.Nop()

var rootCmd = &cobra.Command{
	Use:   "vodpick [title]",
	Short: "Find the best source for a title and play it",
	Long: `vodpick searches every configured catalog for a title, tests each
candidate stream for resolution, throughput and latency, and plays the best one.`,
	Args:              cobra.ArbitraryArgs,
	PersistentPreRunE: loadConfig,
	RunE:              playRun,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command. Commands see a context that is cancelled
// on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	log.Close()
	if err != nil {
		if errors.Is(err, ui.ErrCancelled) || errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, ui.ErrorText(err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagPlayer, "player", "", "Media player: mpv | vlc | iina | celluloid")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "Print the resolved stream as JSON instead of playing")
	rootCmd.PersistentFlags().StringVarP(&flagDownload, "download", "d", "", "Download to this directory instead of playing")
	rootCmd.PersistentFlags().Lookup("download").NoOptDefVal = "default"

	addPlayFlags(rootCmd)

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(favoritesCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(skipCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("vodpick " + Version)
	},
}

// loadConfig loads and merges configuration: defaults < config file < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagPlayer != "" {
		cfg.Player = flagPlayer
	}
	if flagDebug {
		cfg.Debug = true
		cfg.Log.Level = "debug"
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Dir:    cfg.Log.Dir,
	})
	log.Debug().Str("player", cfg.Player).Int("sources", len(cfg.Sources)).Msg("configuration loaded")
	return nil
}

// engine bundles the collaborators a resolution needs.
type engine struct {
	store   *store.Store
	catalog *catalog.Aggregator
	orch    *resolve.Orchestrator
}

// openEngine wires the catalog, prober, store and orchestrator from cfg.
// The store is nil when history is disabled.
func openEngine() (*engine, error) {
	if len(cfg.Sources) == 0 {
		path, _ := config.ConfigPath()
		return nil, fmt.Errorf("%w: add [[sources]] to %s", catalog.ErrNoSources, path)
	}

	e := &engine{
		catalog: catalog.FromConfig(cfg, httputil.NewClient(), log.WithComponent("catalog").Logger),
	}

	var resumes resolve.ResumeStore
	if cfg.History {
		path, err := cfg.DatabasePath()
		if err != nil {
			return nil, err
		}
		e.store, err = store.Open(path, log.WithComponent("store").Logger)
		if err != nil {
			return nil, err
		}
		resumes = e.store
	}

	e.orch = resolve.NewOrchestrator(resolve.Options{
		Catalog:     e.catalog,
		Prober:      probe.New(cfg.ProbeTimeout, nil, log.WithComponent("probe").Logger),
		Store:       resumes,
		Concurrency: cfg.ProbeConcurrency,
		Logger:      log.WithComponent("resolve").Logger,
	})
	return e, nil
}

// requireStore fails commands that need the database when history is off.
func (e *engine) requireStore() error {
	if e.store == nil {
		return errors.New("history is disabled in the configuration")
	}
	return nil
}

// Close stops the orchestrator, flushing pending writes, then the store.
func (e *engine) Close() {
	e.orch.Close()
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			log.Warn().Err(err).Msg("closing store")
		}
	}
}
