package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"orderengine/src/registry"
	"orderengine/src/taskqueue"
)

type mockTaskQueue struct {
	status    taskqueue.TaskStatus
	statusErr error
	cancelErr error
	resumeErr error
	size      int

	lastTaskID string
}

func (m *mockTaskQueue) Status(taskID string) (taskqueue.TaskStatus, error) {
	m.lastTaskID = taskID
	return m.status, m.statusErr
}

func (m *mockTaskQueue) Cancel(ctx context.Context, taskID string) error {
	m.lastTaskID = taskID
	return m.cancelErr
}

func (m *mockTaskQueue) Resume(ctx context.Context, taskID string) error {
	m.lastTaskID = taskID
	return m.resumeErr
}

func (m *mockTaskQueue) Size() int { return m.size }

type mockRegistryStats struct {
	stats map[string]registry.Stats
}

func (m *mockRegistryStats) Stats() map[string]registry.Stats { return m.stats }

func TestTaskStatusHandler_Success(t *testing.T) {
	queue := &mockTaskQueue{status: taskqueue.TaskStatus{Status: "failed", Error: "price feed down"}}
	handler := TaskStatusHandler(queue)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/tasks/analysis_3", nil), "taskID", "analysis_3")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	if queue.lastTaskID != "analysis_3" {
		t.Fatalf("expected task id analysis_3, got %q", queue.lastTaskID)
	}

	if !strings.Contains(rr.Body.String(), "price feed down") {
		t.Fatalf("expected failure detail in body, got %q", rr.Body.String())
	}
}

func TestTaskStatusHandler_Unknown(t *testing.T) {
	queue := &mockTaskQueue{statusErr: taskqueue.ErrUnknownTask}
	handler := TaskStatusHandler(queue)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/tasks/nope_1", nil), "taskID", "nope_1")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCancelTaskHandler(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"success", nil, http.StatusOK},
		{"unknown task", taskqueue.ErrUnknownTask, http.StatusNotFound},
		{"already running", taskqueue.ErrTaskNotCancelable, http.StatusConflict},
		{"internal", assert.AnError, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := CancelTaskHandler(&mockTaskQueue{cancelErr: tc.err})

			req := withURLParam(httptest.NewRequest(http.MethodDelete, "/tasks/analysis_1", nil), "taskID", "analysis_1")
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tc.wantCode {
				t.Fatalf("expected status %d, got %d", tc.wantCode, rr.Code)
			}
		})
	}
}

func TestResumeTaskHandler(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"success", nil, http.StatusOK},
		{"unknown task", taskqueue.ErrUnknownTask, http.StatusNotFound},
		{"not resumable", taskqueue.ErrTaskNotCancelable, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := ResumeTaskHandler(&mockTaskQueue{resumeErr: tc.err})

			req := withURLParam(httptest.NewRequest(http.MethodPost, "/tasks/analysis_1/resume", nil), "taskID", "analysis_1")
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tc.wantCode {
				t.Fatalf("expected status %d, got %d", tc.wantCode, rr.Code)
			}
		})
	}
}

func TestQueueSizeHandler(t *testing.T) {
	handler := QueueSizeHandler(&mockTaskQueue{size: 4})

	req := httptest.NewRequest(http.MethodGet, "/tasks/size", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	if !strings.Contains(rr.Body.String(), "4") {
		t.Fatalf("expected queue size in body, got %q", rr.Body.String())
	}
}

func TestRegistryStatsHandler(t *testing.T) {
	stats := map[string]registry.Stats{
		"accounts": {Count: 2, CountWithCachedSettings: 1},
	}
	handler := RegistryStatsHandler(&mockRegistryStats{stats: stats})

	req := httptest.NewRequest(http.MethodGet, "/registry/stats", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	if !strings.Contains(rr.Body.String(), "accounts") {
		t.Fatalf("expected registry names in body, got %q", rr.Body.String())
	}
}
