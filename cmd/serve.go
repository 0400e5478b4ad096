package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/codexwui/internal/api"
	"github.com/zjrosen/codexwui/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP bridge for web front-ends",
	Long: `Run the local HTTP API that web front-ends use to drive codex.

The server exposes prompt submission, cancellation, approval responses,
runtime settings, conversation history, shell commands and workspace file
operations. Notifications are streamed as server-sent events on /events.

Example:
  codexwui serve                      # Listen on api.addr from the config
  codexwui serve --addr 127.0.0.1:0   # Pick a free port`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cleanup, err := initLogging("codexwui-serve")
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.ErrorErr(log.CatAPI, "Shutdown failed", err)
		}
	}()

	addr := serveAddr
	if addr == "" {
		addr = cfg.API.Addr
	}
	server, err := api.NewServer(api.ServerConfig{Addr: addr, Handler: a.Handler()})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	ctx, stop := signal.NotifyContext(a.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "codexwui listening on http://%s\n", server.Addr())
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	err = g.Wait()
	fmt.Fprintln(out, "Server stopped")
	return err
}
