// Package config loads corevisor's manager-level configuration from
// environment variables (optionally via a .env file during development),
// mirroring the teacher's internal/config: environment first, CLI flags
// override, safe defaults when nothing is set.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds everything the manager shell needs before it can start
// wiring the reliability store, reactor and unit graph.
type Config struct {
	// StateDir is the well-known directory holding reliability.mdb/ (see
	// SPEC_FULL.md §6, spec.md §4.1). Overridable for tests/dev via the
	// PROCESS_LIB_LOAD_PATH environment variable (spec.md §6).
	StateDir string
	// RunDir holds the control socket and init handshake socket.
	RunDir string
	// LogLevel is passed straight to pkg/logger.
	LogLevel string
	// ControlSocketPath is the control socket's bind path (§6).
	ControlSocketPath string
	// InitHandshakeSocketPath is the PID-1 stub liveness socket (§6).
	InitHandshakeSocketPath string
	// StatusHTTPAddr, if non-empty, is the loopback address the read-only
	// status mux listens on (SPEC_FULL.md §4.6 expansion). Empty disables it.
	StatusHTTPAddr string
	// RemoteMirrorEnabled is loaded but not read anywhere: cmd/corevisor
	// builds the manager without a store.RemoteMirror, so store.Compact
	// never uploads a generation whatever this is set to.
	RemoteMirrorEnabled bool
	// DebugOutDir is the OUT_DIR debug-only override named in spec.md §6.
	DebugOutDir string
}

const (
	envStateDir   = "PROCESS_LIB_LOAD_PATH"
	envOutDir     = "OUT_DIR"
	envRunDir     = "COREVISOR_RUN_DIR"
	envLogLevel   = "COREVISOR_LOG_LEVEL"
	envStatusAddr = "COREVISOR_STATUS_ADDR"
	envMirror     = "COREVISOR_REMOTE_MIRROR"

	defaultStateDir = "/var/lib/corevisor"
	defaultRunDir   = "/run/corevisor"
)

// Load reads configuration from the environment (and a .env file in the
// working directory, if present — development convenience only, matching
// the teacher's use of joho/godotenv). stateDirFlag, when non-empty,
// overrides PROCESS_LIB_LOAD_PATH the same way the teacher's --data-dir CLI
// flag overrides TRADER_DATA_DIR.
func Load(stateDirFlag string) (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	stateDir := stateDirFlag
	if stateDir == "" {
		stateDir = os.Getenv(envStateDir)
	}
	if stateDir == "" {
		stateDir = defaultStateDir
	}
	stateDir, err := filepath.Abs(stateDir)
	if err != nil {
		return nil, fmt.Errorf("resolve state dir: %w", err)
	}

	runDir := os.Getenv(envRunDir)
	if runDir == "" {
		runDir = defaultRunDir
	}

	logLevel := os.Getenv(envLogLevel)
	if logLevel == "" {
		logLevel = "info"
	}

	mirror := false
	if v := os.Getenv(envMirror); v != "" {
		mirror, _ = strconv.ParseBool(v)
	}

	return &Config{
		StateDir:                stateDir,
		RunDir:                  runDir,
		LogLevel:                logLevel,
		ControlSocketPath:       filepath.Join(runDir, "sctl"),
		InitHandshakeSocketPath: filepath.Join(runDir, "init.sock"),
		StatusHTTPAddr:          os.Getenv(envStatusAddr),
		RemoteMirrorEnabled:     mirror,
		DebugOutDir:             os.Getenv(envOutDir),
	}, nil
}
