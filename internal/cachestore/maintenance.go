package cachestore

import (
	"context"
	"fmt"
	"time"

	"storydub/internal/sqlitedb"
)

// StageStats summarizes the cache for one stage.
type StageStats struct {
	Stage   string
	Entries int
	Bytes   int64
}

// PruneResult reports what Prune removed.
type PruneResult struct {
	Entries int
	Bytes   int64
}

// List returns entries, newest first. An empty stage lists everything.
func (s *Store) List(ctx context.Context, stage string) ([]Artifact, error) {
	query := `SELECT cache_key, stage, language, fingerprint, artifact_path,
		size_bytes, meta_json, created_at, last_used_at FROM cache_entries`
	var args []any
	if stage != "" {
		query += " WHERE stage = ?"
		args = append(args, stage)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		art, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, art)
	}
	return out, rows.Err()
}

// Stats aggregates entry counts and blob sizes per stage.
func (s *Store) Stats(ctx context.Context) ([]StageStats, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT stage, COUNT(1), COALESCE(SUM(size_bytes), 0) FROM cache_entries GROUP BY stage ORDER BY stage")
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	defer rows.Close()
	var out []StageStats
	for rows.Next() {
		var st StageStats
		if err := rows.Scan(&st.Stage, &st.Entries, &st.Bytes); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Prune removes entries not used within olderThan along with their blobs.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (PruneResult, error) {
	cutoff := sqlitedb.FormatTime(s.now().Add(-olderThan))
	rows, err := s.db.QueryContext(ctx,
		"SELECT cache_key, artifact_path, size_bytes FROM cache_entries WHERE last_used_at < ?", cutoff)
	if err != nil {
		return PruneResult{}, fmt.Errorf("select stale entries: %w", err)
	}
	type stale struct {
		key  string
		path string
		size int64
	}
	var victims []stale
	for rows.Next() {
		var v stale
		if err := rows.Scan(&v.key, &v.path, &v.size); err != nil {
			rows.Close()
			return PruneResult{}, err
		}
		victims = append(victims, v)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return PruneResult{}, err
	}
	rows.Close()

	var result PruneResult
	for _, v := range victims {
		if err := s.removeBlob(v.path); err != nil {
			return result, fmt.Errorf("remove blob %s: %w", v.path, err)
		}
		if _, err := s.db.ExecWithRetry(ctx, "DELETE FROM cache_entries WHERE cache_key = ?", v.key); err != nil {
			return result, fmt.Errorf("delete cache entry %s: %w", v.key, err)
		}
		result.Entries++
		result.Bytes += v.size
	}
	return result, nil
}
