// Package logging assembles the structured slog loggers used across storydub.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code tags every line
// with the job ID, stage, unit index, and correlation ID. TeeLogger lets a job
// mirror its lines into a job.log inside the job working directory.
package logging
