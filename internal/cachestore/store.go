package cachestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"storydub/internal/fileutil"
	"storydub/internal/sqlitedb"
)

//go:embed schema.sql
var schemaDDL string

const schemaVersion = 1

// ComputeFunc produces a stage output on a cache miss. The returned file is
// copied into the store, so callers may keep or discard it afterwards.
type ComputeFunc func(ctx context.Context) (path string, meta map[string]string, err error)

// Store indexes content-addressed stage outputs in SQLite with blobs on disk.
type Store struct {
	db      *sqlitedb.DB
	blobDir string
	group   singleflight.Group
	now     func() time.Time
}

// Open opens (creating if necessary) the cache rooted at dir.
func Open(ctx context.Context, dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("cache directory required")
	}
	db, err := sqlitedb.Open(ctx, filepath.Join(dir, "cache.db"), sqlitedb.Schema{
		Name:    "cache",
		SQL:     schemaDDL,
		Version: schemaVersion,
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, blobDir: filepath.Join(dir, "blobs"), now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the artifact for key. Rows whose blob disappeared are dropped
// and reported as misses.
func (s *Store) Get(ctx context.Context, key Key) (Artifact, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT cache_key, stage, language, fingerprint, artifact_path,
		size_bytes, meta_json, created_at, last_used_at FROM cache_entries WHERE cache_key = ?`, key.String())
	art, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, false, nil
	}
	if err != nil {
		return Artifact{}, false, fmt.Errorf("cache lookup %s: %w", key, err)
	}
	if fileutil.Size(art.Path) < 0 {
		if _, err := s.db.ExecWithRetry(ctx, "DELETE FROM cache_entries WHERE cache_key = ?", key.String()); err != nil {
			return Artifact{}, false, fmt.Errorf("drop stale cache entry %s: %w", key, err)
		}
		return Artifact{}, false, nil
	}
	now := s.now()
	if _, err := s.db.ExecWithRetry(ctx, "UPDATE cache_entries SET last_used_at = ? WHERE cache_key = ?",
		sqlitedb.FormatTime(now), key.String()); err != nil {
		return Artifact{}, false, fmt.Errorf("touch cache entry %s: %w", key, err)
	}
	art.LastUsedAt = now
	return art, true, nil
}

// Put copies srcPath into the blob tree and records it under key.
func (s *Store) Put(ctx context.Context, key Key, srcPath string, meta map[string]string) (Artifact, error) {
	if !key.Valid() {
		return Artifact{}, fmt.Errorf("invalid cache key %q", key)
	}
	dst := s.blobPath(key, filepath.Ext(srcPath))
	size, err := fileutil.CopyAtomic(srcPath, dst)
	if err != nil {
		return Artifact{}, fmt.Errorf("store cache blob %s: %w", key, err)
	}
	var metaJSON any
	if len(meta) > 0 {
		encoded, err := json.Marshal(meta)
		if err != nil {
			return Artifact{}, fmt.Errorf("encode cache metadata: %w", err)
		}
		metaJSON = string(encoded)
	}
	now := s.now()
	stamp := sqlitedb.FormatTime(now)
	_, err = s.db.ExecWithRetry(ctx, `INSERT INTO cache_entries
		(cache_key, stage, language, fingerprint, artifact_path, size_bytes, meta_json, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			artifact_path = excluded.artifact_path,
			size_bytes = excluded.size_bytes,
			meta_json = excluded.meta_json,
			created_at = excluded.created_at,
			last_used_at = excluded.last_used_at`,
		key.String(), key.Stage, key.Language, key.Fingerprint, dst, size, metaJSON, stamp, stamp)
	if err != nil {
		return Artifact{}, fmt.Errorf("index cache entry %s: %w", key, err)
	}
	return Artifact{
		Key:        key,
		Path:       dst,
		SizeBytes:  size,
		Meta:       cloneMeta(meta),
		CreatedAt:  now,
		LastUsedAt: now,
	}, nil
}

type resolution struct {
	artifact Artifact
	hit      bool
}

// Resolve returns the cached artifact for key, computing it at most once
// across concurrent callers. reused is true when the caller did not run
// compute itself, either because of a hit or because it joined another
// caller's computation.
func (s *Store) Resolve(ctx context.Context, key Key, compute ComputeFunc) (Artifact, bool, error) {
	for {
		art, ok, err := s.Get(ctx, key)
		if err != nil {
			return Artifact{}, false, err
		}
		if ok {
			return art, true, nil
		}

		leader := false
		ch := s.group.DoChan(key.String(), func() (any, error) {
			leader = true
			if art, ok, err := s.Get(ctx, key); err == nil && ok {
				return resolution{artifact: art, hit: true}, nil
			}
			path, meta, err := compute(ctx)
			if err != nil {
				return resolution{}, err
			}
			stored, err := s.Put(ctx, key, path, meta)
			if err != nil {
				return resolution{}, err
			}
			return resolution{artifact: stored}, nil
		})

		select {
		case <-ctx.Done():
			return Artifact{}, false, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				if !leader && isContextError(res.Err) && ctx.Err() == nil {
					continue
				}
				return Artifact{}, false, res.Err
			}
			out := res.Val.(resolution)
			return out.artifact, out.hit || !leader, nil
		}
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Store) blobPath(key Key, ext string) string {
	name := key.Fingerprint
	if key.Language != "" {
		name += "-" + key.Language
	}
	return filepath.Join(s.blobDir, key.Stage, key.Fingerprint[:2], name+ext)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (Artifact, error) {
	var (
		cacheKey, created, used string
		metaJSON                sql.NullString
		art                     Artifact
	)
	if err := row.Scan(&cacheKey, &art.Key.Stage, &art.Key.Language, &art.Key.Fingerprint,
		&art.Path, &art.SizeBytes, &metaJSON, &created, &used); err != nil {
		return Artifact{}, err
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &art.Meta); err != nil {
			return Artifact{}, fmt.Errorf("decode metadata for %s: %w", cacheKey, err)
		}
	}
	art.CreatedAt = sqlitedb.ParseTime(created)
	art.LastUsedAt = sqlitedb.ParseTime(used)
	return art, nil
}

func cloneMeta(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// removeBlob deletes a blob and prunes empty shard directories above it.
func (s *Store) removeBlob(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	dir := filepath.Dir(path)
	for dir != s.blobDir && strings.HasPrefix(dir, s.blobDir) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}
