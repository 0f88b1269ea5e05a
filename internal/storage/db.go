package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"arbiscout/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  requesterId TEXT NOT NULL,
  reference TEXT NOT NULL,
  state TEXT NOT NULL,
  errKind TEXT NOT NULL DEFAULT '',
  errDetail TEXT NOT NULL DEFAULT '',
  descriptorJson TEXT,
  entriesJson TEXT NOT NULL DEFAULT '[]',
  createdAt TEXT NOT NULL,
  updatedAt TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state);
CREATE INDEX IF NOT EXISTS idx_tasks_requester ON tasks(requesterId);
CREATE INDEX IF NOT EXISTS idx_tasks_reference ON tasks(reference);

CREATE TABLE IF NOT EXISTS task_history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  taskId TEXT NOT NULL,
  state TEXT NOT NULL,
  at TEXT NOT NULL,
  FOREIGN KEY(taskId) REFERENCES tasks(id)
);
CREATE INDEX IF NOT EXISTS idx_history_task ON task_history(taskId);
`

	_, err := d.conn.Exec(schema)
	return err
}

// SaveTask upserts the full task record, last write wins per field.
func (d *DB) SaveTask(ctx context.Context, task internal.Task) error {
	var descriptorJSON any
	if task.Descriptor != nil {
		blob, err := json.Marshal(task.Descriptor)
		if err != nil {
			return err
		}
		descriptorJSON = string(blob)
	}

	entries := task.Entries
	if entries == nil {
		entries = []internal.ResultEntry{}
	}
	entriesJSON, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	_, err = d.conn.ExecContext(ctx, `
INSERT INTO tasks (id, requesterId, reference, state, errKind, errDetail, descriptorJson, entriesJson, createdAt, updatedAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  requesterId=excluded.requesterId,
  reference=excluded.reference,
  state=excluded.state,
  errKind=excluded.errKind,
  errDetail=excluded.errDetail,
  descriptorJson=excluded.descriptorJson,
  entriesJson=excluded.entriesJson,
  updatedAt=excluded.updatedAt
`,
		task.ID, task.RequesterID, task.Reference, string(task.State),
		string(task.ErrKind), task.ErrDetail, descriptorJSON, string(entriesJSON),
		encodeTime(task.CreatedAt), encodeTime(task.UpdatedAt),
	)
	return err
}

func (d *DB) LoadTask(ctx context.Context, id string) (internal.Task, error) {
	row := d.conn.QueryRowContext(ctx, `
SELECT id, requesterId, reference, state, errKind, errDetail, descriptorJson, entriesJson, createdAt, updatedAt
FROM tasks WHERE id = ?
`, id)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.Task{}, internal.ErrTaskNotFound
	}
	return task, err
}

func (d *DB) AppendHistory(ctx context.Context, taskID string, state internal.TaskState, at time.Time) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO task_history (taskId, state, at) VALUES (?, ?, ?)`,
		taskID, string(state), encodeTime(at))
	return err
}

type StateChange struct {
	State internal.TaskState
	At    time.Time
}

func (d *DB) History(ctx context.Context, taskID string) ([]StateChange, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT state, at FROM task_history WHERE taskId = ? ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StateChange
	for rows.Next() {
		var state, at string
		if err := rows.Scan(&state, &at); err != nil {
			return nil, err
		}
		parsed, err := decodeTime(at)
		if err != nil {
			return nil, err
		}
		out = append(out, StateChange{State: internal.TaskState(state), At: parsed})
	}
	return out, rows.Err()
}

func (d *DB) ListByState(ctx context.Context, state internal.TaskState, limit int) ([]internal.Task, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, requesterId, reference, state, errKind, errDetail, descriptorJson, entriesJson, createdAt, updatedAt
FROM tasks WHERE state = ? ORDER BY createdAt ASC LIMIT ?
`, string(state), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListUnfinished returns every task in a non-terminal state, oldest first.
// Used at worker startup to surface stalled pipelines.
func (d *DB) ListUnfinished(ctx context.Context) ([]internal.Task, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, requesterId, reference, state, errKind, errDetail, descriptorJson, entriesJson, createdAt, updatedAt
FROM tasks WHERE state NOT IN (?, ?, ?) ORDER BY createdAt ASC
`, string(internal.StateCompleted), string(internal.StateFailed), string(internal.StateCancelled))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (internal.Task, error) {
	var task internal.Task
	var state, errKind, createdAt, updatedAt, entriesJSON string
	var descriptorJSON sql.NullString

	if err := row.Scan(
		&task.ID, &task.RequesterID, &task.Reference, &state, &errKind,
		&task.ErrDetail, &descriptorJSON, &entriesJSON, &createdAt, &updatedAt,
	); err != nil {
		return internal.Task{}, err
	}

	task.State = internal.TaskState(state)
	task.ErrKind = internal.ErrorKind(errKind)

	if descriptorJSON.Valid && descriptorJSON.String != "" {
		var desc internal.ProductDescriptor
		if err := json.Unmarshal([]byte(descriptorJSON.String), &desc); err != nil {
			return internal.Task{}, fmt.Errorf("corrupt descriptor for task %s: %w", task.ID, err)
		}
		task.Descriptor = &desc
	}

	var entries []internal.ResultEntry
	if err := json.Unmarshal([]byte(entriesJSON), &entries); err != nil {
		return internal.Task{}, fmt.Errorf("corrupt entries for task %s: %w", task.ID, err)
	}
	if len(entries) > 0 {
		task.Entries = entries
	}

	var err error
	if task.CreatedAt, err = decodeTime(createdAt); err != nil {
		return internal.Task{}, err
	}
	if task.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return internal.Task{}, err
	}
	return task, nil
}

func collectTasks(rows *sql.Rows) ([]internal.Task, error) {
	var out []internal.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
