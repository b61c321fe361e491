package jobs

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"storydub/internal/sqlitedb"
)

//go:embed schema.sql
var schemaDDL string

const schemaVersion = 1

const jobColumns = `id, kind, params_json, status, stage_index, stage_name, result_path,
	error_message, publish_id, work_dir, created_at, updated_at`

// Store mirrors the registry into SQLite.
type Store struct {
	db *sqlitedb.DB
}

// OpenStore opens the job database at path.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sqlitedb.Open(ctx, path, sqlitedb.Schema{Name: "jobs", SQL: schemaDDL, Version: schemaVersion})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) insert(ctx context.Context, job Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	_, err = s.db.ExecWithRetry(ctx, `INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Kind), string(params), string(job.Status), job.StageIndex,
		sqlitedb.NullableString(job.StageName), sqlitedb.NullableString(job.ResultPath),
		sqlitedb.NullableString(job.Error), sqlitedb.NullableString(job.PublishID), job.WorkDir,
		sqlitedb.FormatTime(job.CreatedAt), sqlitedb.FormatTime(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, job Job) error {
	_, err := s.db.ExecWithRetry(ctx, `UPDATE jobs SET status = ?, stage_index = ?, stage_name = ?,
		result_path = ?, error_message = ?, publish_id = ?, updated_at = ? WHERE id = ?`,
		string(job.Status), job.StageIndex, sqlitedb.NullableString(job.StageName),
		sqlitedb.NullableString(job.ResultPath), sqlitedb.NullableString(job.Error),
		sqlitedb.NullableString(job.PublishID), sqlitedb.FormatTime(job.UpdatedAt), job.ID)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) appendEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecWithRetry(ctx,
		"INSERT INTO job_events (job_id, seq, type, text, created_at) VALUES (?, ?, ?, ?, ?)",
		e.JobID, e.Seq, string(e.Type), e.Text, sqlitedb.FormatTime(e.At))
	if err != nil {
		return fmt.Errorf("append event %s#%d: %w", e.JobID, e.Seq, err)
	}
	return nil
}

// loadAll returns every stored job with its events, oldest first.
func (s *Store) loadAll(ctx context.Context) ([]Job, map[string][]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, nil, fmt.Errorf("list jobs: %w", err)
	}
	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, err
	}
	rows.Close()

	eventRows, err := s.db.QueryContext(ctx,
		"SELECT job_id, seq, type, text, created_at FROM job_events ORDER BY job_id, seq")
	if err != nil {
		return nil, nil, fmt.Errorf("list events: %w", err)
	}
	defer eventRows.Close()
	events := make(map[string][]Event)
	for eventRows.Next() {
		var (
			e       Event
			kind    string
			created string
		)
		if err := eventRows.Scan(&e.JobID, &e.Seq, &kind, &e.Text, &created); err != nil {
			return nil, nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = EventType(kind)
		e.At = sqlitedb.ParseTime(created)
		events[e.JobID] = append(events[e.JobID], e)
	}
	return jobs, events, eventRows.Err()
}

func scanJob(rows *sql.Rows) (Job, error) {
	var (
		job                                    Job
		kind, params, status, created, updated string
		stageName, result, errMsg, publishID   sql.NullString
	)
	if err := rows.Scan(&job.ID, &kind, &params, &status, &job.StageIndex, &stageName, &result,
		&errMsg, &publishID, &job.WorkDir, &created, &updated); err != nil {
		return Job{}, fmt.Errorf("scan job: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &job.Params); err != nil {
		return Job{}, fmt.Errorf("decode params for %s: %w", job.ID, err)
	}
	job.Kind = Kind(kind)
	job.Status = Status(status)
	job.StageName = stageName.String
	job.ResultPath = result.String
	job.Error = errMsg.String
	job.PublishID = publishID.String
	job.CreatedAt = sqlitedb.ParseTime(created)
	job.UpdatedAt = sqlitedb.ParseTime(updated)
	return job, nil
}
