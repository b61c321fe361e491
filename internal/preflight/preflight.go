package preflight

import (
	"context"

	"storydub/internal/config"
)

// MinFreeBytes is the free space below which the work and cache
// directories are reported as failing.
const MinFreeBytes uint64 = 2 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the local preflight checks for cfg: directory access,
// free space and credential presence. Publishing credentials are only
// checked when publishing is enabled.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, MinFreeBytes),
		CheckFreeSpace("Cache directory space", cfg.Paths.CacheDir, MinFreeBytes),
		CheckAPIKey("Sarvam API key", cfg.Sarvam.APIKey),
		CheckAPIKey("LLM API key", cfg.LLM.APIKey),
		CheckAPIKey("Imagen API key", cfg.Imagen.APIKey),
	}
	if cfg.YouTube.Enabled {
		results = append(results, CheckAPIKey("YouTube access token", cfg.YouTube.AccessToken))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
