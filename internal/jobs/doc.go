// Package jobs owns the in-process job registry and the per-job progress bus.
//
// Every job carries an append-only event log. Subscribers attach at any time,
// replay the full history, follow live events and finally receive the done
// event, after which their channel closes. Producers never block: each
// subscriber has its own feeder goroutine and bounded channel, so a slow
// reader only delays itself.
//
// Mutation happens through a Handle obtained with Registry.Claim. Only the
// worker holding the handle changes a job; everyone else reads snapshots.
// The registry mirrors jobs and events into SQLite so a restarted daemon can
// list previous jobs and fail those interrupted mid-run.
package jobs
