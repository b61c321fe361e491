// Package logs reads the daemon's log file for `storydub logs`.
//
// Snapshot returns the trailing lines with bounded memory, ReadFrom picks up
// complete lines written after an offset, and Follow polls until its context
// ends. The daemon rewrites the storydub.log pointer on every start, so a file
// shorter than the current offset is read again from the beginning.
package logs
