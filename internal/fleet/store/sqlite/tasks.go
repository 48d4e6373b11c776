package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

type taskRepo Store

func (r *taskRepo) Create(ctx context.Context, task *model.TaskDefinition) error {
	actions, err := json.Marshal(task.Actions)
	if err != nil {
		return fmt.Errorf("%w: actions: %v", core.ErrInvalidArgument, err)
	}

	return (*Store)(r).withTx(ctx, "create task", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, task.ID).Scan(&exists)
		if err == nil {
			return fmt.Errorf("task %q: %w", task.ID, core.ErrConflict)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (id, name, description, actions, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, task.ID, task.Name, task.Description, string(actions), unixNano(task.CreatedAt))
		return err
	})
}

func scanTask(row interface{ Scan(...any) error }) (*model.TaskDefinition, error) {
	var (
		t       model.TaskDefinition
		actions string
		created int64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &actions, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actions), &t.Actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions of task %s: %w", t.ID, err)
	}
	t.CreatedAt = fromUnixNano(created)
	return &t, nil
}

func (r *taskRepo) Get(ctx context.Context, id string) (*model.TaskDefinition, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `
		SELECT id, name, description, actions, created_at FROM tasks WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %q: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, core.Unavailable("get task", err)
	}
	return t, nil
}

func (r *taskRepo) List(ctx context.Context) ([]*model.TaskDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, actions, created_at FROM tasks ORDER BY created_at, id
	`)
	if err != nil {
		return nil, core.Unavailable("list tasks", err)
	}
	defer rows.Close()

	var out []*model.TaskDefinition
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, core.Unavailable("list tasks", err)
		}
		out = append(out, t)
	}
	return out, core.Unavailable("list tasks", rows.Err())
}

func (r *taskRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return core.Unavailable("delete task", err)
	}
	n, err := affected(res)
	if err != nil {
		return core.Unavailable("delete task", err)
	}
	if n == 0 {
		return fmt.Errorf("task %q: %w", id, core.ErrNotFound)
	}
	return nil
}
