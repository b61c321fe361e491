// Package services defines shared utilities consumed by the pipeline stages
// and the provider integrations underneath them.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, unit indexes, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper. Kind and Details turn a
//     failure into the taxonomy label and the reason recorded on a job.
//   - StatusError and IsRetryable, which every HTTP adapter shares so the
//     executor applies a single retry policy.
package services
