package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/recap/internal/api"
	"github.com/kalambet/recap/internal/config"
	"github.com/kalambet/recap/internal/ingest"
	"github.com/kalambet/recap/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recap server (foreground)",
	Long: `Start the recap server in the foreground.

The REST API listens on 127.0.0.1:<server.port>. The MCP server speaks over
stdio unless --no-mcp is given. Queued transcript jobs are processed in the
background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		noMCP, _ := cmd.Flags().GetBool("no-mcp")
		return runServer(user, !noMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running recap server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recap server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("user", "default", "user id owning sessions created through this server")
	serveCmd.Flags().Bool("no-mcp", false, "do not serve MCP over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "recap.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(user string, withMCP bool) error {
	fmt.Fprintln(os.Stderr, versionString())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("recap is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("recap is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := api.Deps{
		Summarizer:  a.orch,
		Memory:      a.memory,
		Store:       a.store,
		Metrics:     a.metrics,
		Token:       apiToken,
		UserID:      user,
		Schedule:    a.schedule,
		Syncer:      a.syncer,
		SyncOptions: a.syncOpts,
		Location:    a.loc,
		Fetcher:     a.fetcher,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	worker := ingest.NewWorker(a.store, a.orch, a.syncer, a.syncOpts, 500*time.Millisecond)
	go worker.Run(ctx)

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "recap listening on %s\n", addr)
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
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("recap is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop recap (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to recap (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		printStatus("Server", "unknown (%v)", err)
		return nil
	}
	client.httpClient = &http.Client{Timeout: 2 * time.Second}

	var health struct {
		Status string `json:"status"`
		UserID string `json:"user_id"`
	}
	if err := client.call(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		printStatus("Server", "stopped")
	} else {
		printStatus("Server", "%s on port %d (user %s)", health.Status, cfg.Server.Port, health.UserID)

		var snap metrics.Snapshot
		if err := client.call(ctx, http.MethodGet, "/api/metrics", nil, &snap); err == nil {
			printStatus("Summaries", "%d (avg %.0f ms)", snap.TotalRequests, snap.AvgLatencyMs)
		}
		var threads struct {
			Threads []json.RawMessage `json:"threads"`
		}
		if err := client.call(ctx, http.MethodGet, "/api/threads", nil, &threads); err == nil {
			printStatus("Threads", "%d", len(threads.Threads))
		}
	}

	printStatus("Engine", "%s", cfg.Engine.Backend)
	printStatus("Memory", "%s", cfg.Memory.Backend)
	printStatus("Schedule", "%s", cfg.Schedule.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
