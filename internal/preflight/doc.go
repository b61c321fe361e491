// Package preflight provides readiness checks for the directories,
// binaries and provider credentials a job depends on.
//
// The daemon runs RunAll at startup and logs failures; GET /api/status and
// the "storydub status" command report the same results. CheckLLM performs
// a live request and only runs for "storydub config validate --probe".
package preflight
