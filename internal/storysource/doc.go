// Package storysource picks public-domain stories for story jobs.
//
// Each catalog theme names either a plain-text collection, split into
// stories by a title pattern, or an HTML index whose matching links are
// individual story pages. Parsed indexes are cached as JSON under the
// configured cache directory and rebuilt once older than the TTL.
package storysource
