// Package deps reports whether the external binaries the media adapters
// shell out to are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"storydub/internal/config"
)

// Requirement defines an external binary a job may invoke.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Tools returns the binaries configured in tools. yt-dlp is optional: dub
// jobs fed from local files never invoke it.
func Tools(tools config.Tools) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: tools.FFmpeg, Description: "Required for audio extraction and rendering"},
		{Name: "FFprobe", Command: tools.FFprobe, Description: "Required for media inspection and validation"},
		{Name: "yt-dlp", Command: tools.YTDLP, Description: "Required for dub jobs submitted by URL", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Path = path
		status.Available = true
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the required dependencies that are unavailable.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
