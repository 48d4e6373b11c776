package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

const instanceColumns = `id, task_id, task_name, status, current_action_index, actions, sequence, created_at, updated_at`

type instanceRepo Store

func (r *instanceRepo) Create(ctx context.Context, inst *model.TaskInstance) error {
	actions, err := json.Marshal(inst.Actions)
	if err != nil {
		return fmt.Errorf("%w: actions: %v", core.ErrInvalidArgument, err)
	}
	sequence, err := json.Marshal(inst.Sequence)
	if err != nil {
		return fmt.Errorf("%w: sequence: %v", core.ErrInvalidArgument, err)
	}

	return (*Store)(r).withTx(ctx, "create task instance", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM task_instances WHERE id = ?`, inst.ID).Scan(&exists)
		if err == nil {
			return fmt.Errorf("task instance %q: %w", inst.ID, core.ErrConflict)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_instances (`+instanceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, inst.ID, inst.TaskID, inst.TaskName, string(inst.Status), inst.CurrentActionIndex,
			string(actions), string(sequence), unixNano(inst.CreatedAt), unixNano(inst.UpdatedAt))
		return err
	})
}

func scanInstance(row interface{ Scan(...any) error }) (*model.TaskInstance, error) {
	var (
		inst             model.TaskInstance
		status           string
		actions, seq     string
		created, updated int64
	)
	if err := row.Scan(&inst.ID, &inst.TaskID, &inst.TaskName, &status, &inst.CurrentActionIndex,
		&actions, &seq, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actions), &inst.Actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions of instance %s: %w", inst.ID, err)
	}
	if err := json.Unmarshal([]byte(seq), &inst.Sequence); err != nil {
		return nil, fmt.Errorf("failed to decode sequence of instance %s: %w", inst.ID, err)
	}
	inst.Status = model.InstanceStatus(status)
	inst.CreatedAt = fromUnixNano(created)
	inst.UpdatedAt = fromUnixNano(updated)
	return &inst, nil
}

func (r *instanceRepo) Get(ctx context.Context, id string) (*model.TaskInstance, error) {
	inst, err := scanInstance(r.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM task_instances WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task instance %q: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, core.Unavailable("get task instance", err)
	}
	return inst, nil
}

func (r *instanceRepo) List(ctx context.Context, filter core.InstanceFilter) ([]*model.TaskInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM task_instances`
	var args []any
	if len(filter.ExcludeStatuses) > 0 {
		placeholders, statusArgs := statusArgs(filter.ExcludeStatuses)
		query += ` WHERE status NOT IN (` + placeholders + `)`
		args = statusArgs
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.Unavailable("list task instances", err)
	}
	defer rows.Close()

	var out []*model.TaskInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, core.Unavailable("list task instances", err)
		}
		out = append(out, inst)
	}
	return out, core.Unavailable("list task instances", rows.Err())
}

func (r *instanceRepo) OldestQueued(ctx context.Context) (*model.TaskInstance, error) {
	inst, err := scanInstance(r.db.QueryRowContext(ctx, `
		SELECT `+instanceColumns+` FROM task_instances
		WHERE status = ?
		ORDER BY created_at, id
		LIMIT 1
	`, string(model.InstanceQueued)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queued task instance: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, core.Unavailable("oldest queued", err)
	}
	return inst, nil
}

func (r *instanceRepo) UpdateStatus(ctx context.Context, id string, from []model.InstanceStatus, to model.InstanceStatus, now time.Time) error {
	placeholders, args := statusArgs(from)
	args = append([]any{string(to), unixNano(now), id}, args...)

	return (*Store)(r).withTx(ctx, "update status", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE task_instances SET status = ?, updated_at = ?
			WHERE id = ? AND status IN (`+placeholders+`)
		`, args...)
		if err != nil {
			return err
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return instanceConflict(ctx, tx, "update status", id)
		}
		return nil
	})
}

func (r *instanceRepo) Advance(ctx context.Context, id string, expected int, now time.Time) error {
	return (*Store)(r).withTx(ctx, "advance", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE task_instances
			SET current_action_index = current_action_index + 1, updated_at = ?
			WHERE id = ? AND status = ? AND current_action_index = ?
				AND current_action_index + 1 < json_array_length(actions)
		`, unixNano(now), id, string(model.InstanceInProgress), expected)
		if err != nil {
			return err
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return instanceConflict(ctx, tx, "advance", id)
		}
		return nil
	})
}
