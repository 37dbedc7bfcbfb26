// Command corevisor is the manager binary: it wires the reliability
// store, reactor, unit graph, job engine and control/status surfaces
// together and runs the process lifecycle until a shutdown-class state
// is reached.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/corevisor/corevisor/internal/config"
	"github.com/corevisor/corevisor/internal/control"
	"github.com/corevisor/corevisor/internal/control/status"
	"github.com/corevisor/corevisor/internal/manager"
	"github.com/corevisor/corevisor/internal/unit/presets"
	"github.com/corevisor/corevisor/pkg/logger"
)

func main() {
	var (
		stateDirFlag = flag.String("state-dir", "", "override PROCESS_LIB_LOAD_PATH")
		reloadFlag   = flag.Bool("reload", false, "start as if resuming from a re-exec")
	)
	flag.Parse()

	if err := run(*stateDirFlag, *reloadFlag); err != nil {
		fmt.Fprintln(os.Stderr, "corevisor:", err)
		os.Exit(1)
	}
}

func run(stateDirFlag string, reload bool) error {
	cfg, err := config.Load(stateDirFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Component: "corevisor"})

	if err := os.MkdirAll(cfg.RunDir, 0o750); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	mgr, err := manager.New(manager.Config{
		StateDir: cfg.StateDir,
		Presets:  defaultPresets(),
	}, log)
	if err != nil {
		return fmt.Errorf("construct manager: %w", err)
	}
	defer mgr.Store.Close()

	if err := mgr.Startup(reload); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	ctrl, err := control.New(cfg.ControlSocketPath, mgr, log)
	if err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}
	defer ctrl.Close()

	// MainLoop owns the process lifecycle via its own SIGHUP/SIGTERM/SIGINT
	// sources registered with the reactor; ctx here only propagates the
	// control/status surfaces' shutdown once MainLoop returns.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := ctrl.Serve(ctx); err != nil {
			log.Warn().Err(err).Msg("control server stopped")
		}
	}()

	var statusSrv *http.Server
	if cfg.StatusHTTPAddr != "" {
		mux := status.NewMux(mgr, log)
		ln, err := net.Listen("tcp", cfg.StatusHTTPAddr)
		if err != nil {
			return fmt.Errorf("listen status http: %w", err)
		}
		statusSrv = &http.Server{Handler: mux.Handler()}
		go func() {
			if err := statusSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("status http server stopped")
			}
		}()
		log.Info().Str("addr", cfg.StatusHTTPAddr).Msg("status http listening")
	}

	loopErr := mgr.MainLoop(ctx)

	if statusSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = statusSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	if loopErr != nil {
		return fmt.Errorf("main loop: %w", loopErr)
	}
	return nil
}

// defaultPresets is the manager's built-in preset policy when no preset
// file directory is configured: the rule list is empty, so every unit
// resolves to Unspecified and keeps its existing install state.
func defaultPresets() presets.Source {
	return presets.StaticSource(nil)
}
