// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history archives download tasks that reached a terminal state
// in a SQLite database, with their full transition history.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/ptengine/pkg/types"
)

const defaultMaxResults = 50

// timeLayout is fixed-width so stored times compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when no archived task has the requested id.
var ErrNotFound = errors.New("task not in history")

// Store manages the history database.
type Store struct {
	db         *sql.DB
	maxResults int
}

// Open opens or creates the history database at path and creates the
// schema if it does not exist.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, maxResults: defaultMaxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			title TEXT NOT NULL,
			site TEXT,
			client TEXT NOT NULL,
			state TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			reason TEXT,
			last_error TEXT,
			client_ref TEXT,
			progress REAL,
			record TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_fingerprint ON tasks(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state)`,
		`CREATE TABLE IF NOT EXISTS transitions (
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			at TEXT NOT NULL,
			note TEXT,
			PRIMARY KEY (task_id, seq)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// Archive stores task, replacing any earlier copy with the same id.
func (s *Store) Archive(ctx context.Context, task types.DownloadTask) error {
	record, err := json.Marshal(task.Record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, fingerprint, title, site, client, state, attempts, reason,
			last_error, client_ref, progress, record, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state=excluded.state, attempts=excluded.attempts, reason=excluded.reason,
			last_error=excluded.last_error, client_ref=excluded.client_ref,
			progress=excluded.progress, record=excluded.record, updated_at=excluded.updated_at`,
		task.ID, task.Record.Fingerprint, task.Record.Title, task.Record.Site, task.Client,
		string(task.State), task.Attempts, task.Reason, task.LastError, task.ClientRef,
		task.Progress, string(record), formatTime(task.CreatedAt), formatTime(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting task %s: %w", task.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM transitions WHERE task_id = ?`, task.ID); err != nil {
		return fmt.Errorf("clearing transitions: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transitions (task_id, seq, from_state, to_state, at, note) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()
	for i, tr := range task.History {
		if _, err := stmt.ExecContext(ctx, task.ID, i, string(tr.From), string(tr.To), formatTime(tr.At), tr.Note); err != nil {
			return fmt.Errorf("inserting transition %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// QueryOptions filters history queries. Zero fields do not filter.
type QueryOptions struct {
	// Title matches a case-insensitive substring of the release title.
	Title string

	State  types.TaskState
	Client string
	Site   string

	// Since keeps tasks updated at or after this time.
	Since time.Time

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

const taskColumns = `id, client, state, attempts, reason, last_error, client_ref, progress, record, created_at, updated_at`

// Query returns archived tasks matching opts, most recently updated first.
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]types.DownloadTask, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`)
	if opts.Title != "" {
		qb.WriteString(` AND lower(title) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(opts.Title))+"%")
	}
	if opts.State != "" {
		qb.WriteString(` AND state = ?`)
		args = append(args, string(opts.State))
	}
	if opts.Client != "" {
		qb.WriteString(` AND client = ?`)
		args = append(args, opts.Client)
	}
	if opts.Site != "" {
		qb.WriteString(` AND site = ?`)
		args = append(args, opts.Site)
	}
	if !opts.Since.IsZero() {
		qb.WriteString(` AND updated_at >= ?`)
		args = append(args, formatTime(opts.Since))
	}
	qb.WriteString(` ORDER BY updated_at DESC, id LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var tasks []types.DownloadTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tasks {
		if tasks[i].History, err = s.transitions(ctx, tasks[i].ID); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// Get returns one archived task with its transitions.
func (s *Store) Get(ctx context.Context, id string) (types.DownloadTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.DownloadTask{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return types.DownloadTask{}, err
	}
	if t.History, err = s.transitions(ctx, id); err != nil {
		return types.DownloadTask{}, err
	}
	return t, nil
}

// Completed reports whether a task for fingerprint finished successfully.
func (s *Store) Completed(ctx context.Context, fingerprint string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM tasks WHERE fingerprint = ? AND state = ?`,
		fingerprint, string(types.TaskCompleted),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking fingerprint: %w", err)
	}
	return n > 0, nil
}

// Counts returns the number of archived tasks per state.
func (s *Store) Counts(ctx context.Context) (map[types.TaskState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, count(*) FROM tasks GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("counting tasks: %w", err)
	}
	defer rows.Close()
	out := map[types.TaskState]int{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out[types.TaskState(state)] = n
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (types.DownloadTask, error) {
	var (
		t                    types.DownloadTask
		state                string
		reason, lastErr, ref sql.NullString
		progress             sql.NullFloat64
		record               string
		created, updated     string
	)
	if err := row.Scan(&t.ID, &t.Client, &state, &t.Attempts, &reason, &lastErr, &ref,
		&progress, &record, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("scanning row: %w", err)
	}
	t.State = types.TaskState(state)
	t.Reason, t.LastError, t.ClientRef = reason.String, lastErr.String, ref.String
	t.Progress = progress.Float64
	t.CreatedAt, t.UpdatedAt = parseTime(created), parseTime(updated)
	if err := json.Unmarshal([]byte(record), &t.Record); err != nil {
		return t, fmt.Errorf("decoding record of task %s: %w", t.ID, err)
	}
	return t, nil
}

func (s *Store) transitions(ctx context.Context, id string) ([]types.Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_state, to_state, at, note FROM transitions WHERE task_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()
	var out []types.Transition
	for rows.Next() {
		var from, to, at string
		var note sql.NullString
		if err := rows.Scan(&from, &to, &at, &note); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		out = append(out, types.Transition{
			From: types.TaskState(from),
			To:   types.TaskState(to),
			At:   parseTime(at),
			Note: note.String,
		})
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
