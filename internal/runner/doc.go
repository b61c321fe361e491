// Package runner owns the job worker pool. Submissions are validated,
// recorded in the registry and queued in FIFO order; a dispatcher hands each
// queued job to a fixed-size ants pool where one worker drives the job to a
// terminal state.
package runner
