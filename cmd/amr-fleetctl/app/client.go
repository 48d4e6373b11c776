package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

// gateway is the part of the API that can be reached over HTTP or gRPC.
type gateway interface {
	Command(ctx context.Context, op, instanceID string) (model.InstanceStatus, error)
	Status(ctx context.Context, instanceID string) (*model.StatusReport, error)
}

// apiError is a failed response of the fleet daemon.
type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Code)
}

type httpClient struct {
	base string
	http *http.Client
}

var _ gateway = (*httpClient)(nil)

func newHTTPClient(server string, timeout time.Duration) *httpClient {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	return &httpClient{base: strings.TrimSuffix(server, "/"), http: &http.Client{Timeout: timeout}}
}

// do sends body as JSON and decodes the response into out. Error envelopes
// become *apiError.
func (c *httpClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach fleet daemon: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var env struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &env) != nil || env.Error == "" {
			env.Error = strings.TrimSpace(string(data))
		}
		return &apiError{Code: resp.StatusCode, Message: env.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *httpClient) Command(ctx context.Context, op, instanceID string) (model.InstanceStatus, error) {
	var out struct {
		Status model.InstanceStatus `json:"status"`
	}
	err := c.do(ctx, http.MethodPost, "/task-instances/"+instanceID+"/"+op, nil, &out)
	return out.Status, err
}

func (c *httpClient) Status(ctx context.Context, instanceID string) (*model.StatusReport, error) {
	var out model.StatusReport
	if err := c.do(ctx, http.MethodGet, "/task-instances/"+instanceID+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Robots(ctx context.Context) ([]*model.Robot, error) {
	var out struct {
		Robots []*model.Robot `json:"robots"`
	}
	err := c.do(ctx, http.MethodGet, "/robots", nil, &out)
	return out.Robots, err
}

func (c *httpClient) Instances(ctx context.Context, all bool) ([]*model.TaskInstance, error) {
	var out struct {
		Instances []*model.TaskInstance `json:"instances"`
	}
	path := "/task-instances"
	if all {
		path += "?all=true"
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Instances, err
}

func (c *httpClient) Tasks(ctx context.Context) ([]*model.TaskDefinition, error) {
	var out struct {
		Tasks []*model.TaskDefinition `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, "/tasks", nil, &out)
	return out.Tasks, err
}

func (c *httpClient) Execute(ctx context.Context, taskID string) (string, model.InstanceStatus, error) {
	var out struct {
		TaskInstanceID string               `json:"taskInstanceId"`
		Status         model.InstanceStatus `json:"status"`
	}
	err := c.do(ctx, http.MethodPost, "/execute-sequence", map[string]string{"taskId": taskID}, &out)
	return out.TaskInstanceID, out.Status, err
}

func (c *httpClient) Reconcile(ctx context.Context) (bool, error) {
	var out struct {
		Triggered bool `json:"triggered"`
	}
	err := c.do(ctx, http.MethodPost, "/reconcile", nil, &out)
	return out.Triggered, err
}
