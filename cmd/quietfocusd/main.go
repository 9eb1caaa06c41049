// Command quietfocusd runs the background muting service: it keeps the
// foreground application audible and mutes everything else, restoring
// audio on focus change, exclusion, or shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quietfocus/quietfocus"
	"github.com/quietfocus/quietfocus/platform"
	"github.com/quietfocus/quietfocus/status"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "quietfocusd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (default: user config dir)")
	listen := flag.String("listen", "127.0.0.1:8390", "status server address, empty to disable")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	noWatch := flag.Bool("no-watch", false, "disable config file hot reload")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	path := *configPath
	if path == "" {
		p, err := quietfocus.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	cfg, err := quietfocus.LoadConfig(path)
	if err != nil {
		return err
	}
	cfg.Logger = logger
	logger.Info("configuration loaded", "path", path)

	engine, err := quietfocus.NewEngine(cfg)
	if err != nil {
		return err
	}
	logger.Info("engine initialized", "pid", engine.OwnPID())

	// Best-effort: align the login autostart entry with the config.
	syncAutostart(engine.Store(), logger)

	runner := quietfocus.NewRunner(engine)
	if err := runner.Start(); err != nil {
		return err
	}

	var watcher *quietfocus.ConfigWatcher
	if !*noWatch {
		watcher, err = quietfocus.WatchConfig(path, engine.Store(), logger)
		if err != nil {
			logger.Warn("config watch unavailable", "err", err)
		}
	}

	var server *status.Server
	if *listen != "" {
		server = status.NewServer(engine, time.Second, logger)
		if err := server.Start(*listen); err != nil {
			logger.Warn("status server unavailable", "addr", *listen, "err", err)
			server = nil
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("status server shutdown", "err", err)
		}
		cancel()
	}
	if watcher != nil {
		_ = watcher.Close()
	}

	// Stop waits for the poll loop to exit, then runs the unmute-all
	// fail-safe; Close releases the cached handles.
	runner.Stop()
	if err := engine.Close(); err != nil {
		logger.Warn("engine close", "err", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func syncAutostart(store *quietfocus.Store, logger *slog.Logger) {
	audio := platform.Detect()
	if !audio.AutostartSupported() {
		return
	}
	if err := audio.SetAutostart(store.StartWithOS()); err != nil {
		logger.Warn("autostart setting not applied", "err", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
