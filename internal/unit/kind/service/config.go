package service

import (
	"fmt"
	"strconv"
	"time"

	"github.com/corevisor/corevisor/internal/unit"
)

// Config is the parsed [Service] section. Field names mirror the unit-file
// directives directly so Parse stays a flat lookup table.
type Config struct {
	Type Type

	ExecStartPre  []unit.ExecCommand
	ExecStart     []unit.ExecCommand
	ExecStartPost []unit.ExecCommand
	ExecReload    []unit.ExecCommand
	ExecStop      []unit.ExecCommand
	ExecStopPost  []unit.ExecCommand

	Restart           Restart
	RestartSec        time.Duration
	TimeoutStartSec   time.Duration
	TimeoutStopSec    time.Duration
	WatchdogSec       time.Duration
	RemainAfterExit   bool
	IgnoreSIGPIPE     bool
	StartLimitBurst   int
	StartLimitIntvl   time.Duration
}

const (
	defaultTimeout    = 90 * time.Second
	defaultRestartSec = 100 * time.Millisecond
)

// Parse fills a Config from the raw key/value map the external unit-file
// loader hands to the adapter (spec.md §4.5's parse contract). Unknown keys
// are ignored; malformed durations/enums are reported.
func Parse(raw map[string]string) (*Config, error) {
	cfg := &Config{
		Type:            TypeSimple,
		Restart:         RestartNo,
		TimeoutStartSec: defaultTimeout,
		TimeoutStopSec:  defaultTimeout,
		RestartSec:      defaultRestartSec,
		StartLimitBurst: 5,
		StartLimitIntvl: 10 * time.Second,
	}

	if v, ok := raw["Type"]; ok {
		t, err := parseType(v)
		if err != nil {
			return nil, err
		}
		cfg.Type = t
	}
	if v, ok := raw["Restart"]; ok {
		r, err := parseRestart(v)
		if err != nil {
			return nil, err
		}
		cfg.Restart = r
	}

	for key, field := range map[string]*[]unit.ExecCommand{
		"ExecStartPre":  &cfg.ExecStartPre,
		"ExecStart":     &cfg.ExecStart,
		"ExecStartPost": &cfg.ExecStartPost,
		"ExecReload":    &cfg.ExecReload,
		"ExecStop":      &cfg.ExecStop,
		"ExecStopPost":  &cfg.ExecStopPost,
	} {
		v, ok := raw[key]
		if !ok || v == "" {
			continue
		}
		cmds, err := unit.ParseExecCommands(v)
		if err != nil {
			return nil, fmt.Errorf("service: %s: %w", key, err)
		}
		*field = cmds
	}

	if len(cfg.ExecStart) == 0 && cfg.Type != TypeOneshot {
		return nil, fmt.Errorf("service: ExecStart= is required")
	}

	if v, ok := raw["RestartSec"]; ok {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("service: RestartSec: %w", err)
		}
		cfg.RestartSec = d
	}
	if v, ok := raw["TimeoutStartSec"]; ok {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("service: TimeoutStartSec: %w", err)
		}
		cfg.TimeoutStartSec = d
	}
	if v, ok := raw["TimeoutStopSec"]; ok {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("service: TimeoutStopSec: %w", err)
		}
		cfg.TimeoutStopSec = d
	}
	if v, ok := raw["WatchdogSec"]; ok {
		d, err := parseSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("service: WatchdogSec: %w", err)
		}
		cfg.WatchdogSec = d
	}
	if v, ok := raw["RemainAfterExit"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("service: RemainAfterExit: %w", err)
		}
		cfg.RemainAfterExit = b
	}

	if cfg.RemainAfterExit && cfg.Type != TypeOneshot {
		return nil, fmt.Errorf("service: RemainAfterExit=yes is only valid with Type=oneshot")
	}

	return cfg, nil
}

func parseType(v string) (Type, error) {
	switch v {
	case "simple":
		return TypeSimple, nil
	case "oneshot":
		return TypeOneshot, nil
	case "forking":
		return TypeForking, nil
	case "notify":
		return TypeNotify, nil
	default:
		return 0, fmt.Errorf("service: unknown Type=%q", v)
	}
}

func parseRestart(v string) (Restart, error) {
	switch v {
	case "no":
		return RestartNo, nil
	case "on-success":
		return RestartOnSuccess, nil
	case "on-failure":
		return RestartOnFailure, nil
	case "on-abnormal":
		return RestartOnAbnormal, nil
	case "on-watchdog":
		return RestartOnWatchdog, nil
	case "on-abort":
		return RestartOnAbort, nil
	case "always":
		return RestartAlways, nil
	default:
		return 0, fmt.Errorf("service: unknown Restart=%q", v)
	}
}

func parseSeconds(v string) (time.Duration, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

// shouldRestart reports whether Restart= says to relaunch given the main
// process's exit outcome.
func (c *Config) shouldRestart(exitedCleanly bool) bool {
	switch c.Restart {
	case RestartAlways:
		return true
	case RestartOnSuccess:
		return exitedCleanly
	case RestartOnFailure, RestartOnAbnormal, RestartOnAbort:
		return !exitedCleanly
	default:
		return false
	}
}
