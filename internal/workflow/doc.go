// Package workflow turns a claimed job into a terminal state by running the
// ordered stage list for its kind.
//
// Dub jobs run acquire, extract, segment, transcribe, normalize, translate,
// synthesize, render and validate. Story jobs run acquire, breakdown,
// images, narrate, render, validate and publish. Stage definitions live in
// dub.go and story.go; file names inside a job directory are fixed in
// layout.go so a rerun lands on the same paths.
//
// The Scheduler checks for cancellation before each stage, hands every
// stage to the stage executor (cache, retry, fan-out) and records the first
// failure as the job's reason. Progress lines go to the job's event log and
// are mirrored into job.log in its work directory.
package workflow
