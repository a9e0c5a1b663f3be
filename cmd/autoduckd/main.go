// Package main is the entry point for the autoduckd volume ducking daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gopxl/beep/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/autoduck/internal/audio"
	"github.com/jmylchreest/autoduck/internal/config"
	"github.com/jmylchreest/autoduck/internal/daemon"
	"github.com/jmylchreest/autoduck/internal/dbus"
	"github.com/jmylchreest/autoduck/internal/engine"
	"github.com/jmylchreest/autoduck/internal/fade"
	"github.com/jmylchreest/autoduck/internal/observe"
	"github.com/jmylchreest/autoduck/internal/pulse"
	"github.com/jmylchreest/autoduck/internal/store"
)

const appName = "autoduckd"

// localSampleRate is the mix rate of the local playback backend.
const localSampleRate = beep.SampleRate(44100)

// shutdownTimeout bounds how long restore fades may run on exit.
const shutdownTimeout = 5 * time.Second

var (
	// Build-time variables
	version = "dev"
)

func main() {
	// Parse command line flags
	debug := flag.Bool("debug", false, "Enable debug logging")
	configPath := flag.String("config", "", "Config file (default: $XDG_CONFIG_HOME/autoduck/autoduck.toml)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appName, "version", version)
		os.Exit(0)
	}

	// Set up structured logging
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := run(logger, *configPath); err != nil {
		logger.Error("autoduckd exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("autoduckd stopped")
}

func run(logger *slog.Logger, configPath string) error {
	logger.Info("starting autoduckd", "version", version)

	if configPath == "" {
		p, err := config.Path()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Info("configuration loaded", "path", configPath, "backend", cfg.Backend.Kind)

	// Metrics pipeline. The handler is only served when a listen address is set.
	metrics := observe.Noop()
	provider, err := observe.InitProvider(appName, version)
	if err != nil {
		logger.Warn("failed to initialize metrics, continuing without", "error", err)
	} else {
		metrics = provider.Metrics
		defer func() { _ = provider.Shutdown(context.Background()) }()
	}

	dir, closeDir, err := openDirectory(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDir()

	fader := fade.NewController(dir, logger, fade.WithMetrics(metrics))
	defer fader.Close()

	host := daemon.NewHost(dir, fader, cfg, logger)
	host.SetMetrics(metrics)
	host.SetConfigPath(configPath)

	statePath, err := store.StateFilePath()
	if err != nil {
		logger.Warn("failed to get state file path, engine state will not persist", "error", err)
	} else {
		host.SetStatePath(statePath)
	}

	// D-Bus control surface
	server := dbus.NewControlServer(host, logger)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start D-Bus server: %w", err)
	}
	defer func() { _ = server.Stop() }()

	notifier := daemon.NewInternalNotifier(logger)
	notifier.SetEnabled(cfg.Notify.Enabled)
	notifier.SetNotifyHandler(dbus.NotificationSender(server.Connection()))

	host.SetTransitionCallback(func(t engine.Transition) {
		if err := server.EmitPhaseChanged(t.To); err != nil {
			logger.Warn("failed to emit phase signal", "phase", t.To, "error", err)
		}
	})
	host.SetAudioCallback(notifier.NotifyAudio)
	host.SetEngineCallback(notifier.NotifyEngineChanged)

	if shouldAutostart(cfg, statePath, logger) {
		if err := host.Start("autostart"); err != nil {
			logger.Warn("failed to start engine", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Config hot reload
	watcher := daemon.NewConfigWatcher(configPath, logger)
	watcher.SetReloadCallback(func(newConfig *config.Config) {
		if err := host.ApplyConfig(newConfig); err != nil {
			logger.Warn("failed to apply reloaded config", "error", err)
			notifier.NotifyConfigError(err)
			return
		}
		notifier.SetEnabled(newConfig.Notify.Enabled)
		notifier.NotifyConfigReloaded()
	})
	watcher.SetErrorCallback(notifier.NotifyConfigError)
	g.Go(func() error {
		if err := watcher.Run(gctx, cfg); err != nil {
			logger.Warn("config hot reload unavailable", "error", err)
		}
		<-gctx.Done()
		return nil
	})

	if cfg.Metrics.Listen != "" && provider != nil {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Listen, provider, host, logger)
		})
	}

	logger.Info("autoduckd ready", "dbus_interface", dbus.DBusInterface, "engine_running", host.Running())
	notifier.NotifyStartup(version)

	err = g.Wait()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := host.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("engine shutdown incomplete", "error", serr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openDirectory builds the configured session directory.
func openDirectory(cfg *config.Config, logger *slog.Logger) (audio.Directory, func(), error) {
	switch cfg.Backend.Kind {
	case config.BackendLocal:
		local := audio.NewLocalDirectory(localSampleRate, logger)
		n := local.Load(cfg.Backend.Local.Sessions)
		if n == 0 {
			logger.Warn("local backend has no playable sessions")
		}
		if err := local.Start(); err != nil {
			return nil, nil, err
		}
		return local, local.Close, nil
	default:
		pa := pulse.New(logger)
		return pa, func() { _ = pa.Close() }, nil
	}
}

// shouldAutostart reports whether the engine starts with the daemon. A user
// who stopped the engine keeps it stopped across daemon restarts.
func shouldAutostart(cfg *config.Config, statePath string, logger *slog.Logger) bool {
	if !cfg.Engine.Autostart {
		return false
	}
	if statePath == "" {
		return true
	}
	shared, err := store.LoadSharedState(statePath)
	if err != nil {
		logger.Warn("failed to load shared state", "error", err)
		return true
	}
	logger.Debug("shared state loaded", "engine_enabled", shared.EngineEnabled)
	return shared.EngineEnabled
}

// serveMetrics serves /metrics, /healthz and /readyz until ctx is done.
func serveMetrics(ctx context.Context, addr string, provider *observe.Provider, host *daemon.Host, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", provider.Handler())
	observe.NewHealth(observe.Checker{Name: "engine", Check: host.Ready}).Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
