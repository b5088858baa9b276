package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"vodpick/internal/api"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resolver over HTTP and WebSocket",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "Listen address (default from config)")
}

func serveRun(cmd *cobra.Command, args []string) error {
	addr := cfg.Listen
	if flagListen != "" {
		addr = flagListen
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireStore(); err != nil {
		return err
	}

	srv := api.NewServer(e.orch, e.catalog, e.store, log.WithComponent("api").Logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(addr) }()

	select {
	case err = <-errCh:
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(ctx); err == nil {
		err = shutdownErr
	}
	return err
}
