package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

type assignmentRepo Store

func (r *assignmentRepo) Assign(ctx context.Context, robotID, instanceID string, now time.Time) error {
	return (*Store)(r).withTx(ctx, "assign", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE robots SET status = ?, assigned_instance_id = ?
			WHERE id = ? AND status = ?
				AND NOT EXISTS (SELECT 1 FROM robots WHERE assigned_instance_id = ?)
		`, string(model.RobotBusy), instanceID, robotID, string(model.RobotIdle), instanceID)
		if err != nil {
			return err
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			if err := robotConflict(ctx, tx, "assign", robotID); errors.Is(err, core.ErrNotFound) {
				return err
			}
			return instanceConflict(ctx, tx, "assign", instanceID)
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE task_instances SET status = ?, current_action_index = 0, updated_at = ?
			WHERE id = ? AND status = ?
		`, string(model.InstanceInProgress), unixNano(now), instanceID, string(model.InstanceQueued))
		if err != nil {
			return err
		}
		if n, err = affected(res); err != nil {
			return err
		}
		if n == 0 {
			return instanceConflict(ctx, tx, "assign", instanceID)
		}
		return nil
	})
}

func (r *assignmentRepo) Complete(ctx context.Context, robotID, instanceID string, now time.Time) error {
	return (*Store)(r).withTx(ctx, "complete", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE task_instances SET status = ?, updated_at = ?
			WHERE id = ? AND status = ?
				AND EXISTS (SELECT 1 FROM robots WHERE id = ? AND assigned_instance_id = ?)
		`, string(model.InstanceCompleted), unixNano(now), instanceID, string(model.InstanceInProgress), robotID, instanceID)
		if err != nil {
			return err
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			if err := robotConflict(ctx, tx, "complete", robotID); errors.Is(err, core.ErrNotFound) {
				return err
			}
			return instanceConflict(ctx, tx, "complete", instanceID)
		}
		return releaseRobot(ctx, tx, robotID, instanceID)
	})
}

func (r *assignmentRepo) Release(ctx context.Context, robotID, instanceID string) error {
	return (*Store)(r).withTx(ctx, "release", func(tx *sql.Tx) error {
		return releaseRobot(ctx, tx, robotID, instanceID)
	})
}

func (r *assignmentRepo) Terminate(ctx context.Context, instanceID string, from []model.InstanceStatus, to model.InstanceStatus, now time.Time) (*model.Robot, error) {
	var released *model.Robot

	placeholders, args := statusArgs(from)
	args = append([]any{string(to), unixNano(now), instanceID}, args...)

	err := (*Store)(r).withTx(ctx, "terminate", func(tx *sql.Tx) error {
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
			return instanceConflict(ctx, tx, "terminate", instanceID)
		}

		robot, err := scanRobot(tx.QueryRowContext(ctx,
			`SELECT id, name, status, assigned_instance_id FROM robots WHERE assigned_instance_id = ?`, instanceID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := releaseRobot(ctx, tx, robot.ID, instanceID); err != nil {
			return err
		}
		robot.Status = model.RobotIdle
		robot.AssignedInstanceID = ""
		released = robot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// releaseRobot frees robotID if it still references instanceID.
func releaseRobot(ctx context.Context, tx *sql.Tx, robotID, instanceID string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE robots SET status = ?, assigned_instance_id = NULL
		WHERE id = ? AND status = ? AND assigned_instance_id = ?
	`, string(model.RobotIdle), robotID, string(model.RobotBusy), instanceID)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return robotConflict(ctx, tx, "release", robotID)
	}
	return nil
}
