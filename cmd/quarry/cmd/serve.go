package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/logging"
	"github.com/quarrysearch/quarry/internal/mcpserver"
	"github.com/quarrysearch/quarry/internal/watcher"
)

// serveOptions holds flags for the serve command.
type serveOptions struct {
	transport string
	watch     bool
	rebuild   bool
}

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Serve starts the MCP server and exposes the search and status tools
to MCP clients.

The index is refreshed in the background on startup, so the protocol
handshake is never delayed: searches arriving during a build answer
from the previously published index. With --watch the corpus is also
watched for changes and the index refreshed automatically.

stdout carries JSON-RPC exclusively; logs go to ~/.quarry/logs/.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "stdio", "MCP transport (stdio)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Watch the corpus and refresh the index on changes")

	return cmd
}

// runServe wires the engine and serves MCP until the context or the
// client connection ends.
func runServe(ctx context.Context, opts serveOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root, cfg, err := resolveProject(".")
	if err != nil {
		return err
	}

	// stdout is reserved for JSON-RPC from here on; log to file only.
	level := cfg.Server.LogLevel
	if debugMode {
		level = "debug"
	}
	logCleanup, err := logging.SetupMCPMode(level)
	if err == nil {
		defer logCleanup()
	}

	if err := verifyStdinForMCP(); err != nil {
		return err
	}

	// Reject bad transports before any index work is started.
	transport := strings.ToLower(opts.transport)
	if transport == "" {
		transport = strings.ToLower(cfg.Server.Transport)
	}
	if transport != "stdio" {
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}

	a, err := buildApp(root, cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if opts.rebuild {
		if err := a.engine.ClearCache(ctx); err != nil {
			return err
		}
	}

	// Build in the background; the handshake must not wait for it.
	a.engine.StartBackground()

	if opts.watch || cfg.Watch.Enabled {
		if err := startWatcher(ctx, a); err != nil {
			slog.Warn("file watching unavailable", slog.String("error", err.Error()))
		}
	}

	srv, err := mcpserver.NewServer(a.engine, root)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, transport)
}

// startWatcher begins watching the corpus and invalidating the index
// when change batches arrive.
func startWatcher(ctx context.Context, a *app) error {
	debounce, err := time.ParseDuration(a.cfg.Watch.Debounce)
	if err != nil {
		debounce = 0 // watcher falls back to its default
	}

	w, err := watcher.New(a.root, a.source.ExcludeMatcher(), watcher.Options{Debounce: debounce})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	go func() {
		defer func() { _ = w.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-w.Events():
				if !ok {
					return
				}
				slog.Info("corpus changed", slog.Int("files", len(batch)))
				a.engine.Invalidate()
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				slog.Warn("watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// verifyStdinForMCP rejects interactive terminals: the stdio transport
// needs an MCP client on the other end of the pipe.
func verifyStdinForMCP() error {
	fd := os.Stdin.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return fmt.Errorf("stdin is a terminal, not a pipe\n" +
			"The MCP server expects to be launched by an MCP client.\n" +
			"Use 'quarry search' for interactive queries")
	}
	return nil
}
