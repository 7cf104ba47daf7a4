package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"orderengine/src/repository"
	"orderengine/src/taskqueue"
)

func TestNewRouterWithQueueServesTaskRoutes(t *testing.T) {
	router := NewRouter(Dependencies{
		Queue: taskqueue.New(&repository.TaskRepository{}),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/queue/size", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 from /queue/size, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "size") {
		t.Fatalf("expected queue size payload, got %q", rr.Body.String())
	}
}

func TestNewRouterWithoutQueueOmitsTaskRoutes(t *testing.T) {
	router := NewRouter(Dependencies{})

	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/queue/size"},
		{http.MethodGet, "/tasks/analysis_1"},
		{http.MethodPost, "/tasks/analysis_1/resume"},
		{http.MethodDelete, "/tasks/analysis_1"},
		{http.MethodGet, "/registry/stats"},
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(route.method, route.path, nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected %s %s unmounted without a queue, got %d", route.method, route.path, rr.Code)
		}
	}

	// The order surface stays up regardless.
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 from /healthcheck, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 from /orders without accountId, got %d", rr.Code)
	}
}
