package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/shotover_agent/internal/api"
	"github.com/dgnsrekt/shotover_agent/internal/browser"
	"github.com/dgnsrekt/shotover_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/shotover_agent/internal/config"
	"github.com/dgnsrekt/shotover_agent/internal/controller"
	"github.com/dgnsrekt/shotover_agent/internal/netutil"
	"github.com/dgnsrekt/shotover_agent/internal/relay"
	"github.com/dgnsrekt/shotover_agent/internal/snapshot"
	"github.com/dgnsrekt/shotover_agent/internal/storage"
	"github.com/dgnsrekt/shotover_agent/internal/tabactivity"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load controller config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("shotover_controller config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"tab_url_filter", cfg.TabURLFilter,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"data_dir", cfg.DataDir,
		"pages_config", cfg.PagesConfigPath,
		"import_passes", cfg.ImportPasses,
		"visibility", cfg.Visibility,
		"dom_fallback", cfg.DOMFallback,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	pages, err := config.LoadPages(cfg.PagesConfigPath)
	if err != nil {
		slog.Error("failed to load pages config", "path", cfg.PagesConfigPath, "error", err)
		os.Exit(1)
	}

	bindAddr, err := netutil.SelectBindAddr(netutil.BindPlan{
		Preferred:    cfg.BindAddr,
		Candidates:   cfg.PortCandidates,
		AutoFallback: cfg.PortAutoFallback,
	})
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
			Headless:   cfg.Headless,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	cdpClient := cdpcontrol.NewClient(cfg.CDPURL(), cfg.TabURLFilter, cfg.EvalTimeout())
	if err := cdpClient.Connect(ctx); err != nil {
		slog.Error("failed to connect CDP controller", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cdpClient.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()

	broker := relay.NewBroker()

	tracker := tabactivity.New(tabactivity.Config{
		PingTimeout: cfg.PingTimeout(),
		StaleAfter:  cfg.StaleAfter(),
	}, cdpClient, broker)
	detach := tracker.Attach(cdpClient)
	defer detach()
	go tracker.Run(ctx)

	if err := cdpClient.WatchNetwork(ctx); err != nil {
		slog.Warn("network watch unavailable, idle tracking disabled until reconnect", "error", err)
	}

	snapStore, err := snapshot.NewStore(cfg.DataDir)
	if err != nil {
		slog.Error("failed to create settings store", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	journal := storage.NewJournal(filepath.Join(cfg.DataDir, "journal"), cfg.JournalBufferSize, cfg.JournalMaxSizeMB)
	defer func() {
		if err := journal.Close(); err != nil {
			slog.Warn("import journal close failed", "error", err)
		}
	}()

	svc := controller.NewService(cdpClient, controller.Deps{
		Activity: tracker,
		Snaps:    snapStore,
		Journal:  journal,
		Events:   broker,
	}, controller.OptionsFromConfig(cfg, pages))

	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc, broker)}

	go func() {
		slog.Info("shotover_controller listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("shotover_controller server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shotover_controller shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shotover_controller shutdown failed", "error", err)
	}
	tracker.Wait()
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
