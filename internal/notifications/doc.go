// Package notifications delivers job outcomes to an ntfy topic.
//
// NewService degrades to a no-op when no topic is configured, so callers
// never need to check whether notifications are enabled. Per-outcome toggles
// in the [notifications] config section silence completed or failed jobs.
package notifications
