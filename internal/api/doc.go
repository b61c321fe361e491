// Package api defines the HTTP wire types shared by the daemon and the CLI
// client.
//
// Request types (DubRequest, StoryRequest) convert to jobs.Params; response
// types mirror job snapshots, catalog contents and daemon status. Field names
// are snake_case to match the documented HTTP interface, and timestamps use
// RFC3339 with milliseconds.
package api
