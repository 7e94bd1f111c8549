package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/rsslabel/internal/api"
	"github.com/kalambet/rsslabel/internal/config"
	"github.com/kalambet/rsslabel/internal/dataset"
	"github.com/kalambet/rsslabel/internal/labeling"
	"github.com/kalambet/rsslabel/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the labeling web interface (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the labeling session over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the batch, latest checkpoint and server state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// openSession loads the newest batch and checkpoint. The returned close
// function releases the journal, if one was opened.
func openSession(cfg config.Config) (*labeling.Session, func(), error) {
	opts := labeling.Options{
		DataDir:       cfg.Storage.DataDir,
		AutosaveEvery: cfg.Labeling.AutosaveEvery,
	}

	closeFn := func() {}
	if cfg.Storage.Journal {
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening journal: %w", err)
		}
		opts.Journal = store
		closeFn = func() {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: closing journal: %v\n", err)
			}
		}
	}

	sess := labeling.NewSession(opts)
	if err := sess.Initialize(); err != nil {
		closeFn()
		if errors.Is(err, labeling.ErrNoArticles) {
			printError("No article files found in %s", cfg.Storage.DataDir)
			printWarning("Please run the data collection step first.")
		}
		return nil, nil, err
	}
	return sess, closeFn, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "rsslabel version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	sess, closeSession, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer closeSession()

	printSuccess("Found articles: %s", sess.BatchPath())
	if sess.ResumedFrom() != "" {
		printStep("Resuming from article %d (previously labeled %d articles)", sess.Cursor()+1, sess.Stats().LabeledCount)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewLabelingHandler(api.LabelingDeps{Session: sess, Metrics: api.NewMetrics()}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	printStep("Open your browser at http://%s", addr)
	printStep("Keyboard shortcuts: 1=Advertisement, 2=News, S=Skip")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("rsslabel listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	serveErr := g.Wait()

	if path, err := sess.Flush(); err != nil {
		printError("saving labels: %v", err)
	} else if path != "" {
		printSuccess("Progress saved to %s", path)
	}
	return serveErr
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	sess, closeSession, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer closeSession()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{Session: sess, Version: version})
	stdioSrv := server.NewStdioServer(mcpSrv)
	slog.Info("MCP server started (stdio transport)", "batch", sess.BatchPath())

	listenErr := stdioSrv.Listen(ctx, os.Stdin, os.Stdout)
	if _, err := sess.Flush(); err != nil {
		slog.Error("saving labels on exit", "error", err)
	}
	if listenErr != nil && !errors.Is(listenErr, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", listenErr)
	}
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + cfg.Addr() + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on %s", cfg.Addr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)

	batch, err := dataset.LoadArticles(cfg.Storage.DataDir)
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		printStatus("Batch", "none (run data collection first)")
		return nil
	case err != nil:
		printStatus("Batch", "unreadable: %v", err)
		return nil
	}
	printStatus("Batch", "%s (%d articles)", batch.Path, len(batch.Articles))

	cp, err := dataset.LoadLatestCheckpoint(cfg.Storage.DataDir)
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		printStatus("Checkpoint", "none")
		return nil
	case err != nil:
		printStatus("Checkpoint", "unreadable: %v", err)
		return nil
	}

	total := len(batch.Articles)
	cursor := min(cp.ResumeCursor(), total)
	printStatus("Checkpoint", "%s", cp.Path)
	printStatus("Labeled", "%d", len(cp.Labels))
	printStatus("Progress", "%d/%d (%s)", cursor, total, percent(cursor, total))
	if cp.BatchFile != "" && cp.BatchFile != baseName(batch.Path) {
		printWarning("checkpoint was written for %s, newest batch is %s", cp.BatchFile, baseName(batch.Path))
	}
	return nil
}
