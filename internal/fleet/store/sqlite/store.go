// Package sqlite is a durable fleet store on modernc.org/sqlite. Multi-record
// transitions run in one transaction and every status change is a
// conditional UPDATE whose affected-row count decides success.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

var _ core.Repository = (*Store)(nil)

// Store implements core.Repository on SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create parent directories: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	return open(ctx, dsn)
}

// OpenMemory opens a named in-memory database. Connections opened with the
// same name share it.
func OpenMemory(ctx context.Context, name string) (*Store, error) {
	return open(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}

func open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes transactions inside the process, so
	// conditional updates never see SQLITE_BUSY from ourselves.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		actions TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_instances (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		task_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		current_action_index INTEGER NOT NULL DEFAULT 0 CHECK (current_action_index >= 0),
		actions TEXT NOT NULL,
		sequence TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_task_instances_queue
		ON task_instances(status, created_at, id);

	CREATE TABLE IF NOT EXISTS robots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		assigned_instance_id TEXT,
		CHECK ((status = 'Busy') = (assigned_instance_id IS NOT NULL))
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_robots_assignment
		ON robots(assigned_instance_id) WHERE assigned_instance_id IS NOT NULL;
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Task() core.TaskRepository        { return (*taskRepo)(s) }
func (s *Store) Instance() core.TaskInstanceStore { return (*instanceRepo)(s) }
func (s *Store) Robot() core.FleetRegistry        { return (*robotRepo)(s) }
func (s *Store) Assignment() core.AssignmentStore { return (*assignmentRepo)(s) }

func (s *Store) Ping(ctx context.Context) error {
	return core.Unavailable("ping", s.db.PingContext(ctx))
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a serializable transaction. Unclassified errors become
// core.ErrStoreUnavailable.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return core.Unavailable(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return core.Unavailable(op, err)
	}
	if err := tx.Commit(); err != nil {
		return core.Unavailable(op, err)
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// instanceConflict explains why a conditional update on an instance
// modified nothing.
func instanceConflict(ctx context.Context, q queryer, op, id string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM task_instances WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("task instance %q: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return &core.TransitionError{Op: op, InstanceID: id, Current: model.InstanceStatus(status), Err: core.ErrConflict}
}

func robotConflict(ctx context.Context, q queryer, op, id string) error {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM robots WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("robot %q: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%s robot %q: %w", op, id, core.ErrConflict)
}

func unixNano(t time.Time) int64 { return t.UnixNano() }

func fromUnixNano(n int64) time.Time { return time.Unix(0, n).UTC() }

func statusArgs(statuses []model.InstanceStatus) (string, []any) {
	if len(statuses) == 0 {
		return "NULL", nil
	}
	placeholders := make([]byte, 0, 2*len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = string(st)
	}
	return string(placeholders), args
}
