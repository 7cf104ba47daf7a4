package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"orderengine/src/registry"
	"orderengine/src/taskqueue"
)

type taskQueue interface {
	Status(taskID string) (taskqueue.TaskStatus, error)
	Cancel(ctx context.Context, taskID string) error
	Resume(ctx context.Context, taskID string) error
	Size() int
}

type registryStats interface {
	Stats() map[string]registry.Stats
}

// TaskStatusHandler reports one task's state, including the failure detail.
func TaskStatusHandler(queue taskQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")

		status, err := queue.Status(taskID)
		if err != nil {
			if errors.Is(err, taskqueue.ErrUnknownTask) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			logger.WithError(err).Error("task status lookup failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, status)
	}
}

// CancelTaskHandler cancels a pending task.
func CancelTaskHandler(queue taskQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")

		if err := queue.Cancel(r.Context(), taskID); err != nil {
			switch {
			case errors.Is(err, taskqueue.ErrUnknownTask):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.Is(err, taskqueue.ErrTaskNotCancelable):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				logger.WithError(err).Error("task cancel failed")
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"result": "canceled"})
	}
}

// ResumeTaskHandler is the operator confirmation that a crash-restored task
// should run again.
func ResumeTaskHandler(queue taskQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")

		if err := queue.Resume(r.Context(), taskID); err != nil {
			switch {
			case errors.Is(err, taskqueue.ErrUnknownTask):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.Is(err, taskqueue.ErrTaskNotCancelable):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				logger.WithError(err).Error("task resume failed")
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"result": "resumed"})
	}
}

// QueueSizeHandler reports the number of non-terminal tasks for monitoring.
func QueueSizeHandler(queue taskQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"size": queue.Size()})
	}
}

// RegistryStatsHandler exposes instance registry introspection.
func RegistryStatsHandler(manager registryStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, manager.Stats())
	}
}
