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

	"github.com/kalambet/vnhook/internal/api"
	"github.com/kalambet/vnhook/internal/artifact"
	"github.com/kalambet/vnhook/internal/config"
	"github.com/kalambet/vnhook/internal/controller"
	"github.com/kalambet/vnhook/internal/daemon"
	"github.com/kalambet/vnhook/internal/settings"
	"github.com/kalambet/vnhook/internal/storage"
)

const (
	// eventRetention bounds how long daemon events stay in the journal.
	eventRetention = 30 * 24 * time.Hour
	pruneInterval  = 6 * time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the settings controller (foreground)",
	Long: `Run the settings controller in the foreground.

The controller loads settings.json, writes the runtime artifact, supervises
the hook daemon and serves the local control API used by the other
vnhookctl commands. With --mcp it also speaks MCP over stdio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServe(withMCP)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "serve MCP over stdin/stdout")
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// timingFrom maps the sync.* config keys onto controller timing.
func timingFrom(cfg config.Config) controller.Timing {
	t := controller.DefaultTiming()
	t.SaveDebounce = cfg.Sync.SaveDebounce
	t.HotkeyDebounce = cfg.Sync.HotkeyDebounce
	t.HealthInterval = cfg.Sync.HealthInterval
	t.RecoveryCooldown = cfg.Sync.RecoveryCooldown
	return t
}

func newSupervisor(cfg config.Config, files *artifact.Writer) daemon.Supervisor {
	if !cfg.Daemon.Supervise {
		return daemon.InProcess{}
	}
	return daemon.NewProcessSupervisor(files, daemon.Options{
		Executable:  cfg.Daemon.Executable,
		StopTimeout: cfg.Daemon.StopTimeout,
		StartGrace:  cfg.Daemon.StartGrace,
	})
}

func runServe(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "vnhookctl version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + addr + "/health"); err == nil {
		resp.Body.Close()
		printWarning("vnhookctl serve is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("controller already running on port %d", cfg.Server.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	journal, err := storage.Open(cfg.Paths.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	store := settings.NewStore(cfg.SettingsPath())
	state, fieldErrs, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	for _, fe := range fieldErrs {
		slog.Warn("settings field unreadable, using default", "key", fe.Key, "error", fe.Err)
	}

	files := artifact.NewWriter(cfg.RuntimeDir())
	sup := newSupervisor(cfg, files)

	loop := controller.NewLoop()
	ctl := controller.New(loop, state, store, files, sup,
		controller.WithTiming(timingFrom(cfg)),
		controller.WithJournal(journal),
		controller.WithLogger(slog.Default()),
	)
	ctl.OnStatus(func(st controller.Status) {
		slog.Info("status", "daemon", st.Daemon, "message", st.Message, "recovery_attempts", ctl.RecoveryAttempts())
	})
	ctl.OnChange(func(ev settings.ChangeEvent) {
		slog.Debug("settings changed", "property", ev.Property, "origin", ev.Origin)
	})
	svc := controller.NewService(loop, ctl)

	// The loop outlives the other goroutines so shutdown can flush through it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(loopCtx) }()
	defer func() {
		stopLoop()
		<-loopDone
	}()
	loop.Post(ctl.Start)

	g, gctx := errgroup.WithContext(ctx)

	if watcher, err := artifact.NewStatusWatcher(files, svc.ReconcileNow); err != nil {
		slog.Warn("status file watcher unavailable, relying on polling", "error", err)
	} else {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	g.Go(func() error { return pruneJournal(gctx, journal) })

	appHandler := api.NewAppHandler(api.AppDeps{
		Service: svc,
		History: journal,
		Token:   apiToken,
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           appHandler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return gctx
		},
	}
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "vnhookctl listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Service: svc,
			History: journal,
			Version: version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	<-gctx.Done()
	fmt.Fprintln(os.Stderr, "shutting down...")
	runErr := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(flushCtx); err != nil {
		slog.Warn("flushing settings on shutdown", "error", err)
	}
	return runErr
}

// pruneJournal drops daemon events past the retention window.
func pruneJournal(ctx context.Context, journal *storage.Store) error {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		if n, err := journal.PruneDaemonEvents(time.Now().Add(-eventRetention)); err != nil {
			slog.Warn("pruning daemon events", "error", err)
		} else if n > 0 {
			slog.Debug("pruned daemon events", "count", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
