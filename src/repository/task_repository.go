package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"orderengine/src/database"
	"orderengine/src/model"
)

// TaskRepository persists queue items for crash recovery. Rows are inserted
// atomically with queue submission and removed once the task is terminal.
type TaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new repository instance using the main
// read/write database.
func NewTaskRepository() *TaskRepository {
	return &TaskRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *TaskRepository) WithDB(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts the persisted mirror of a queue item.
func (r *TaskRepository) Create(ctx context.Context, task *model.PersistedTask) error {
	logger.WithFields(map[string]interface{}{
		"repo":      "TaskRepository",
		"op":        "Create",
		"task_id":   task.TaskID,
		"task_type": task.TaskType,
		"priority":  task.Priority,
	}).Debug("Persisting queue task")

	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		logger.WithError(err).Error("Failed to persist queue task")
		return err
	}

	return nil
}

// FindByTaskID fetches a persisted task by its external task id. Returns
// (nil, nil) when no row exists, which callers treat as "already cleaned up".
func (r *TaskRepository) FindByTaskID(ctx context.Context, taskID string) (*model.PersistedTask, error) {
	var task model.PersistedTask

	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &task, nil
}

// FindRestorable returns all pending and running rows in ascending
// (priority, queue_counter) order, with creation time as the fallback
// tie-breaker. These are surfaced to an operator after a restart, never
// auto-resumed.
func (r *TaskRepository) FindRestorable(ctx context.Context) ([]model.PersistedTask, error) {
	var tasks []model.PersistedTask

	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{model.TaskStatusPending, model.TaskStatusRunning}).
		Order("priority ASC, queue_counter ASC, created_at ASC").
		Find(&tasks).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TaskRepository",
			"op":   "FindRestorable",
		}).WithError(err).Error("Failed to fetch restorable tasks")
		return nil, err
	}

	return tasks, nil
}

// MarkRunning flips the row to running and stamps the start time.
func (r *TaskRepository) MarkRunning(ctx context.Context, taskID string) error {
	now := time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.PersistedTask{}).
		Where("task_id = ? AND status = ?", taskID, model.TaskStatusPending).
		Updates(map[string]interface{}{
			"status":     model.TaskStatusRunning,
			"started_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("pending task %q: %w", taskID, ErrNotFound)
	}

	return nil
}

// MarkFailed records the failure message on the row. The row is kept until the
// caller-visible reporting window closes, then deleted.
func (r *TaskRepository) MarkFailed(ctx context.Context, taskID string, message string) error {
	result := r.db.WithContext(ctx).
		Model(&model.PersistedTask{}).
		Where("task_id = ?", taskID).
		Updates(map[string]interface{}{
			"status":        model.TaskStatusFailed,
			"error_message": message,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	}

	return nil
}

// DeleteByTaskID removes the persisted row. Called on cancellation and after
// terminal completion; the order audit trail, not this table, is the durable
// history.
func (r *TaskRepository) DeleteByTaskID(ctx context.Context, taskID string) error {
	result := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Delete(&model.PersistedTask{})
	if result.Error != nil {
		return result.Error
	}

	return nil
}

// MaxQueueCounter returns the highest queue counter ever persisted, so a
// restarted process continues the sequence instead of reusing counters.
func (r *TaskRepository) MaxQueueCounter(ctx context.Context) (uint64, error) {
	var max *uint64

	err := r.db.WithContext(ctx).
		Model(&model.PersistedTask{}).
		Select("MAX(queue_counter)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}

	return *max, nil
}
