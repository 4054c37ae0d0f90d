package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"plancore/internal/blob"
	"plancore/internal/core"
	"plancore/internal/infra/persistence/memory"
)

func newTestServer() *Server {
	engine := core.NewRulesEngine(core.GatePolicyAdvisory)
	store := memory.NewStore(engine)
	svc := core.NewService(store, core.WithBlobStore(blob.NewMemory()))
	return NewServer(svc, zap.NewNop(), nil)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
}

func createProjectHTTP(t *testing.T, srv *Server, name string) string {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/projects", map[string]any{"name": name}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Project struct {
			ID string `json:"id"`
		} `json:"project"`
	}
	decode(t, rec, &resp)
	return resp.Project.ID
}

func createTaskHTTP(t *testing.T, srv *Server, projectID, title string) string {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+projectID+"/tasks", map[string]any{"title": title}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Task struct {
			ID string `json:"id"`
		} `json:"task"`
	}
	decode(t, rec, &resp)
	return resp.Task.ID
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer()
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: %d", path, rec.Code)
		}
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer()
	id := createProjectHTTP(t, srv, "HTTP Project")

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/projects/"+id, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get detail: %d %s", rec.Code, rec.Body.String())
	}
	var detail struct {
		Name     string `json:"name"`
		Progress struct {
			Total int `json:"total"`
		} `json:"progress"`
	}
	decode(t, rec, &detail)
	if detail.Name != "HTTP Project" || detail.Progress.Total != 0 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/projects/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing project should be 404, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/projects", map[string]any{"name": "  "}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name should be 400, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/projects/"+id, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
}

func TestTaskFlowOverHTTP(t *testing.T) {
	srv := newTestServer()
	projectID := createProjectHTTP(t, srv, "p")
	taskID := createTaskHTTP(t, srv, projectID, "t")
	depID := createTaskHTTP(t, srv, projectID, "dep")

	rec := doJSON(t, srv, http.MethodPut, "/api/v1/tasks/"+taskID+"/dependency", map[string]any{"dependency_id": depID}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("set dependency: %d %s", rec.Code, rec.Body.String())
	}

	// Closing the cycle maps to 422.
	rec = doJSON(t, srv, http.MethodPut, "/api/v1/tasks/"+depID+"/dependency", map[string]any{"dependency_id": taskID}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("cycle should be 422, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/tasks/"+taskID+"/toggle", map[string]any{"completed": true}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: %d %s", rec.Code, rec.Body.String())
	}
	var toggled struct {
		Task struct {
			Status string `json:"status"`
		} `json:"task"`
		Warnings []struct {
			Rule string `json:"Rule"`
		} `json:"warnings"`
	}
	decode(t, rec, &toggled)
	if toggled.Task.Status != "completed" {
		t.Fatalf("toggle did not complete: %+v", toggled)
	}
	if len(toggled.Warnings) == 0 {
		t.Fatalf("completing past an open dependency should warn under advisory gate")
	}

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%s/changelog?limit=2", taskID), nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("changelog: %d", rec.Code)
	}
	var logResp struct {
		Entries []struct {
			Action string `json:"action"`
		} `json:"entries"`
	}
	decode(t, rec, &logResp)
	if len(logResp.Entries) != 2 || logResp.Entries[0].Action != "completed" {
		t.Fatalf("changelog wrong: %+v", logResp.Entries)
	}
}

func TestCommentAuthorHeadersOverHTTP(t *testing.T) {
	srv := newTestServer()
	projectID := createProjectHTTP(t, srv, "p")
	taskID := createTaskHTTP(t, srv, projectID, "t")

	author := map[string]string{"X-Actor-Kind": "teacher", "X-Actor-ID": "t1"}
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/tasks/"+taskID+"/comments", map[string]any{"body": "hello"}, author)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add comment: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Comment struct {
			ID string `json:"id"`
		} `json:"comment"`
	}
	decode(t, rec, &created)

	stranger := map[string]string{"X-Actor-Kind": "staff", "X-Actor-ID": "s1"}
	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/comments/"+created.Comment.ID, nil, stranger)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-author delete should be 400, got %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/comments/"+created.Comment.ID, nil, author)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("author delete: %d %s", rec.Code, rec.Body.String())
	}
}

func TestPhaseConflictOverHTTP(t *testing.T) {
	srv := newTestServer()
	projectID := createProjectHTTP(t, srv, "p")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+projectID+"/phases", map[string]any{"name": "one", "order": 0}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create phase: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/projects/"+projectID+"/phases", map[string]any{"name": "clash", "order": 0}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate order should be 409, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestStatsEndpointsOverHTTP(t *testing.T) {
	srv := newTestServer()
	projectID := createProjectHTTP(t, srv, "p")
	createTaskHTTP(t, srv, projectID, "t")

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/stats", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
	var stats struct {
		TotalCount       int `json:"total_count"`
		PendingTaskCount int `json:"pending_task_count"`
	}
	decode(t, rec, &stats)
	if stats.TotalCount != 1 || stats.PendingTaskCount != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/deadlines", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deadlines: %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/alerts", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("alerts: %d", rec.Code)
	}
}
