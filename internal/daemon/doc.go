// Package daemon coordinates the long-running storydub process and its HTTP
// API.
//
// It owns the single-instance flock, starts and drains the job runner, and
// serves the chi router: job submission, snapshots, SSE progress streams,
// artifact downloads, cancellation, the catalog and daemon status. Optional
// bearer auth guards every route when paths.api_token is set.
//
// Keep orchestration logic here: pipeline behaviour lives in workflow and
// stageexec, job state in jobs.
package daemon
