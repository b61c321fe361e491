// Package main hosts the storydub CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon (serve), launches and stops it
// in the background, and translates job commands into HTTP calls against the
// daemon API. Cache maintenance and configuration scaffolding run locally
// against the configured directories without a daemon.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
