package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gosuri/uitable"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

func validateOutput(format string) error {
	if format != outputTable && format != outputJSON {
		return fmt.Errorf("unsupported output format %q", format)
	}
	return nil
}

func newTable(header ...any) *uitable.Table {
	t := uitable.New()
	t.MaxColWidth = 48
	t.AddRow(header...)
	return t
}

func flush(w io.Writer, format string, v any, t *uitable.Table) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, t)
	return err
}

func printRobots(w io.Writer, format string, robots []*model.Robot) error {
	t := newTable("NAME", "STATUS", "INSTANCE")
	for _, r := range robots {
		t.AddRow(r.Name, r.Status, dash(r.AssignedInstanceID))
	}
	return flush(w, format, robots, t)
}

func printTasks(w io.Writer, format string, tasks []*model.TaskDefinition) error {
	t := newTable("ID", "NAME", "ACTIONS", "CREATED")
	for _, task := range tasks {
		t.AddRow(task.ID, task.Name, len(task.Actions), age(task.CreatedAt))
	}
	return flush(w, format, tasks, t)
}

func printInstances(w io.Writer, format string, instances []*model.TaskInstance) error {
	t := newTable("ID", "TASK", "STATUS", "PROGRESS", "CREATED")
	for _, ti := range instances {
		t.AddRow(ti.ID, ti.TaskName, ti.Status, progress(ti.CurrentActionIndex, ti.TotalActions()), age(ti.CreatedAt))
	}
	return flush(w, format, instances, t)
}

func printStatus(w io.Writer, format string, r *model.StatusReport) error {
	t := uitable.New()
	t.AddRow("Instance:", r.TaskInstanceID)
	t.AddRow("Status:", r.Status)
	t.AddRow("Progress:", progress(r.CurrentActionIndex, r.TotalActions))
	t.AddRow("Robot:", dash(r.RobotName))
	if r.UpdatedAt != nil {
		t.AddRow("Updated:", r.UpdatedAt.Format(time.RFC3339))
	}
	return flush(w, format, r, t)
}

func printResult(w io.Writer, format, instanceID string, st model.InstanceStatus) error {
	v := map[string]string{"taskInstanceId": instanceID, "status": string(st)}
	t := uitable.New()
	t.AddRow(instanceID, st)
	return flush(w, format, v, t)
}

func progress(index, total int) string {
	if total == 0 {
		return "0/0"
	}
	return strconv.Itoa(index+1) + "/" + strconv.Itoa(total)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func age(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Round(time.Second).String()
}
