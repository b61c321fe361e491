// Package config loads, normalizes, and validates storydub configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for
// provider credentials such as SARVAM_API_KEY. The Config type centralizes
// every knob the daemon and CLI need: directories, worker and retry policy,
// provider endpoints, and quality gate thresholds.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
