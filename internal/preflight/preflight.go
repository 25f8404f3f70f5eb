package preflight

import (
	"context"

	"laserlink/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDistinctPorts(cfg.Serial.Laser.Port, cfg.Serial.SFC.Port),
		CheckPortAccess("Laser port", cfg.Serial.Laser.Port),
		CheckPortAccess("SFC port", cfg.Serial.SFC.Port),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	if cfg.Capture.Enabled {
		results = append(results, CheckDirectoryAccess("Capture directory", cfg.Paths.CaptureDir))
	}

	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyTopic))
	}

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
