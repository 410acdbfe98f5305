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
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/chunkdim/internal/api"
	"github.com/kalambet/chunkdim/internal/config"
	"github.com/kalambet/chunkdim/internal/storage"
	"github.com/kalambet/chunkdim/internal/templates"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background worker (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp-stdio")
		return runServer(mcpStdio)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp-stdio", false, "also serve MCP tools over stdin/stdout")
}

func newLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "chunkdim version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	if n, err := templates.Seed(store, templates.Defaults(), logger); err != nil {
		return fmt.Errorf("seeding templates: %w", err)
	} else if n > 0 {
		logger.Info("seeded default templates", "count", n)
	}

	a, err := newApp(cfg, store, logger)
	if err != nil {
		return err
	}
	defer a.close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.worker.Run(ctx)
	}()
	defer wg.Wait()

	if mcpStdio {
		mcpSrv := api.NewMCPServer(a.apiDeps(logger), version)
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", "error", err)
			}
		}()
		logger.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler(logger),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			stop()
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	switch {
	case err != nil:
		printStatus("Server", "stopped")
	case resp.StatusCode == http.StatusOK:
		resp.Body.Close()
		printStatus("Server", "running on port %d", cfg.Server.Port)
	default:
		resp.Body.Close()
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	}

	printStatus("Model", "%s", cfg.LLM.Model)
	printStatus("Extraction model", "%s", cfg.ExtractionModel())
	printStatus("Auto generate", "%t", cfg.Extraction.AutoGenerate)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Config file", "%s", config.FilePath())
	return nil
}
