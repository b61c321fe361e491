// Package ffprobe wraps ffprobe JSON output and exposes it as an
// adapters.Prober for the validation stage and dub rendering.
//
// Inspect runs the binary and decodes streams and format metadata; Prober
// converts the result into adapters.MediaInfo and classifies failures with
// the services error markers.
package ffprobe
