package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/lifecycle"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/service"
)

type executeRequest struct {
	TaskID string `json:"taskId"`
}

type instanceResponse struct {
	Success        bool                 `json:"success"`
	TaskInstanceID string               `json:"taskInstanceId"`
	Status         model.InstanceStatus `json:"status"`
}

type statusResponse struct {
	Success bool `json:"success"`
	*model.StatusReport
}

type taskResponse struct {
	Success bool                  `json:"success"`
	Task    *model.TaskDefinition `json:"task"`
}

type tasksResponse struct {
	Success bool                    `json:"success"`
	Tasks   []*model.TaskDefinition `json:"tasks"`
}

type instancesResponse struct {
	Success   bool                  `json:"success"`
	Instances []*model.TaskInstance `json:"instances"`
}

type robotsResponse struct {
	Success bool           `json:"success"`
	Robots  []*model.Robot `json:"robots"`
}

type reconcileResponse struct {
	Success   bool `json:"success"`
	Triggered bool `json:"triggered"`
}

func (h *handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	task, err := h.svc.CreateTask(r.Context(), &req)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskResponse{Success: true, Task: task})
}

func (h *handler) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.ListTasks(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasksResponse{Success: true, Tasks: nonNil(tasks)})
}

func (h *handler) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.GetTask(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{Success: true, Task: task})
}

func (h *handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTask(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (h *handler) execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if req.TaskID == "" {
		writeFailure(w, http.StatusBadRequest, "taskId is required")
		return
	}
	inst, err := h.svc.Execute(r.Context(), req.TaskID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, instanceResponse{Success: true, TaskInstanceID: inst.ID, Status: inst.Status})
}

func (h *handler) listInstances(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	instances, err := h.svc.ListInstances(r.Context(), all)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, instancesResponse{Success: true, Instances: nonNil(instances)})
}

func (h *handler) queryStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.QueryStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, StatusReport: report})
}

func (h *handler) command(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	var op func(context.Context, string) (model.InstanceStatus, error)
	switch vars["op"] {
	case lifecycle.EventPause:
		op = h.svc.Pause
	case lifecycle.EventResume:
		op = h.svc.Resume
	case lifecycle.EventCancel:
		op = h.svc.Cancel
	case lifecycle.EventStop:
		op = h.svc.Stop
	}

	status, err := op(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, instanceResponse{Success: true, TaskInstanceID: id, Status: status})
}

func (h *handler) listRobots(w http.ResponseWriter, r *http.Request) {
	robots, err := h.svc.ListRobots(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, robotsResponse{Success: true, Robots: nonNil(robots)})
}

func (h *handler) reconcile(w http.ResponseWriter, r *http.Request) {
	if h.rec == nil {
		writeFailure(w, http.StatusServiceUnavailable, "scheduler is disabled")
		return
	}
	// The pass outlives the request.
	triggered := h.rec.Trigger(context.WithoutCancel(r.Context()))
	code := http.StatusAccepted
	if !triggered {
		code = http.StatusOK
	}
	writeJSON(w, code, reconcileResponse{Success: true, Triggered: triggered})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
