package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

type robotRepo Store

func (r *robotRepo) Create(ctx context.Context, robot *model.Robot) error {
	status := robot.Status
	if status == "" {
		status = model.RobotIdle
	}
	var assigned sql.NullString
	if robot.AssignedInstanceID != "" {
		assigned = sql.NullString{String: robot.AssignedInstanceID, Valid: true}
	}

	return (*Store)(r).withTx(ctx, "create robot", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM robots WHERE id = ? OR name = ?`, robot.ID, robot.Name).Scan(&exists)
		if err == nil {
			return fmt.Errorf("robot %q (%s): %w", robot.ID, robot.Name, core.ErrConflict)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO robots (id, name, status, assigned_instance_id) VALUES (?, ?, ?, ?)
		`, robot.ID, robot.Name, string(status), assigned)
		return err
	})
}

func scanRobot(row interface{ Scan(...any) error }) (*model.Robot, error) {
	var (
		robot    model.Robot
		status   string
		assigned sql.NullString
	)
	if err := row.Scan(&robot.ID, &robot.Name, &status, &assigned); err != nil {
		return nil, err
	}
	robot.Status = model.RobotStatus(status)
	robot.AssignedInstanceID = assigned.String
	return &robot, nil
}

func (r *robotRepo) Get(ctx context.Context, id string) (*model.Robot, error) {
	robot, err := scanRobot(r.db.QueryRowContext(ctx,
		`SELECT id, name, status, assigned_instance_id FROM robots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("robot %q: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, core.Unavailable("get robot", err)
	}
	return robot, nil
}

func (r *robotRepo) List(ctx context.Context) ([]*model.Robot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, status, assigned_instance_id FROM robots ORDER BY name`)
	if err != nil {
		return nil, core.Unavailable("list robots", err)
	}
	defer rows.Close()

	var out []*model.Robot
	for rows.Next() {
		robot, err := scanRobot(rows)
		if err != nil {
			return nil, core.Unavailable("list robots", err)
		}
		out = append(out, robot)
	}
	return out, core.Unavailable("list robots", rows.Err())
}

func (r *robotRepo) ByInstance(ctx context.Context, instanceID string) (*model.Robot, error) {
	robot, err := scanRobot(r.db.QueryRowContext(ctx,
		`SELECT id, name, status, assigned_instance_id FROM robots WHERE assigned_instance_id = ?`, instanceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("robot for instance %q: %w", instanceID, core.ErrNotFound)
	}
	if err != nil {
		return nil, core.Unavailable("robot by instance", err)
	}
	return robot, nil
}
