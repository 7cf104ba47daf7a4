package taskqueue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"

	logger "github.com/sirupsen/logrus"

	"orderengine/src/model"
	"orderengine/src/repository"
)

var (
	// ErrDuplicateActiveTask is returned when a task with the same
	// type+identity tuple is already pending or running. Duplicates are
	// rejected at submission, never silently merged.
	ErrDuplicateActiveTask = errors.New("duplicate active task")

	// ErrTaskNotCancelable is returned when Cancel is called on a task that
	// already started; a running task must finish or fail on its own.
	ErrTaskNotCancelable = errors.New("task is not pending, cannot cancel")

	// ErrUnknownTask is returned by Status and Cancel for unknown task ids.
	ErrUnknownTask = errors.New("unknown task")
)

// Handler executes one task type. Handlers run inside worker goroutines.
type Handler func(ctx context.Context, task *model.PersistedTask) error

// TaskStatus is the caller-visible state of a submitted task.
type TaskStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Queue is the durable, priority-ordered work queue. Every in-memory item is
// mirrored by a persisted row so pending and running work survives a crash;
// within the same priority, tasks run in submission order.
type Queue struct {
	repo *repository.TaskRepository

	mu       sync.Mutex
	pending  taskHeap
	items    map[string]*queueItem // by task id
	active   map[string]string     // identity key -> task id, pending or running
	terminal []string              // terminal task ids, oldest first
	retain   int                   // terminal results kept for Status
	handlers map[string]Handler
	counter  uint64
	notify   chan struct{}
}

type queueItem struct {
	task     model.PersistedTask
	status   string
	err      error
	canceled bool
	enqueued bool // currently sitting in the heap
	restored bool // crash-restored, awaiting operator resume
}

// New creates a queue over the given task repository.
func New(repo *repository.TaskRepository) *Queue {
	return &Queue{
		repo:     repo,
		items:    make(map[string]*queueItem),
		active:   make(map[string]string),
		retain:   256,
		handlers: make(map[string]Handler),
		notify:   make(chan struct{}, 1),
	}
}

// RegisterHandler binds the executor for one task type. Must be called before
// Run.
func (q *Queue) RegisterHandler(taskType string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = handler
}

// Submit assigns the task id and queue counter, persists the row and enqueues
// the task. A task whose type+identity tuple is already pending or running is
// rejected with ErrDuplicateActiveTask.
func (q *Queue) Submit(ctx context.Context, task *model.PersistedTask) (string, error) {
	q.mu.Lock()

	identity := task.IdentityKey()
	if existing, ok := q.active[identity]; ok {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: %s already submitted as %s",
			ErrDuplicateActiveTask, identity, existing)
	}

	q.counter++
	task.QueueCounter = q.counter
	task.TaskID = fmt.Sprintf("%s_%d", task.TaskType, q.counter)
	task.Status = model.TaskStatusPending

	// Reserve the identity before releasing the lock so a concurrent submit
	// of the same work cannot slip in while the row is being written.
	q.active[identity] = task.TaskID
	q.mu.Unlock()

	if err := q.repo.Create(ctx, task); err != nil {
		q.mu.Lock()
		delete(q.active, identity)
		q.mu.Unlock()
		return "", err
	}

	q.mu.Lock()
	item := &queueItem{task: *task, status: model.TaskStatusPending, enqueued: true}
	q.items[task.TaskID] = item
	heap.Push(&q.pending, item)
	q.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"queue":     "taskqueue",
		"task_id":   task.TaskID,
		"task_type": task.TaskType,
		"priority":  task.Priority,
	}).Info("Task submitted")

	q.wake()
	return task.TaskID, nil
}

// Cancel removes a pending task from the queue and deletes its persisted row.
// Cancellation is cooperative: a running task cannot be canceled.
func (q *Queue) Cancel(ctx context.Context, taskID string) error {
	q.mu.Lock()
	item, ok := q.items[taskID]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%q: %w", taskID, ErrUnknownTask)
	}
	if item.status != model.TaskStatusPending {
		q.mu.Unlock()
		return fmt.Errorf("%q is %s: %w", taskID, item.status, ErrTaskNotCancelable)
	}

	// Lazy removal: the heap entry stays but is skipped on pop.
	item.canceled = true
	delete(q.items, taskID)
	delete(q.active, item.task.IdentityKey())
	q.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"queue":   "taskqueue",
		"task_id": taskID,
	}).Info("Task canceled")

	return q.repo.DeleteByTaskID(ctx, taskID)
}

// Status reports the task's current state, with the error detail when failed.
func (q *Queue) Status(taskID string) (TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[taskID]
	if !ok {
		return TaskStatus{}, fmt.Errorf("%q: %w", taskID, ErrUnknownTask)
	}

	status := TaskStatus{Status: item.status}
	if item.err != nil {
		status.Error = item.err.Error()
	}
	return status, nil
}

// Size returns the number of non-terminal tasks, for backpressure and
// monitoring.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, item := range q.items {
		if item.status == model.TaskStatusPending || item.status == model.TaskStatusRunning {
			count++
		}
	}
	return count
}

// RestoreOnStartup reloads all pending and running rows in ascending
// (priority, queue_counter) order and returns them for operator review. They
// are NOT auto-resumed: running rows may represent work that already had side
// effects before the crash. The queue counter continues past the highest
// persisted value.
func (q *Queue) RestoreOnStartup(ctx context.Context) ([]model.PersistedTask, error) {
	tasks, err := q.repo.FindRestorable(ctx)
	if err != nil {
		return nil, err
	}

	maxCounter, err := q.repo.MaxQueueCounter(ctx)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	if maxCounter > q.counter {
		q.counter = maxCounter
	}
	for i := range tasks {
		task := tasks[i]
		if _, exists := q.items[task.TaskID]; exists {
			continue
		}
		q.items[task.TaskID] = &queueItem{task: task, status: task.Status, restored: true}
		q.active[task.IdentityKey()] = task.TaskID
	}
	q.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"queue":    "taskqueue",
		"restored": len(tasks),
	}).Info("Restorable tasks loaded, awaiting operator resume")

	return tasks, nil
}

// Resume re-enqueues a crash-restored task after explicit operator
// confirmation. Only restored items that are not yet scheduled qualify:
// resuming a live task would run it twice.
func (q *Queue) Resume(ctx context.Context, taskID string) error {
	q.mu.Lock()
	item, ok := q.items[taskID]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%q: %w", taskID, ErrUnknownTask)
	}
	if !item.restored || item.enqueued {
		q.mu.Unlock()
		return fmt.Errorf("%q is already scheduled: %w", taskID, ErrTaskNotCancelable)
	}
	if item.status == model.TaskStatusRunning {
		// Crash-recovered running row: ambiguous, operator chose to re-run.
		item.status = model.TaskStatusPending
		item.task.Status = model.TaskStatusPending
	}
	item.enqueued = true
	heap.Push(&q.pending, item)
	q.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"queue":   "taskqueue",
		"task_id": taskID,
	}).Info("Task resumed by operator")

	q.wake()
	return nil
}

// Run executes tasks with the given number of workers until the context is
// canceled. Each worker pulls the most urgent task, runs its handler to
// completion, and records the outcome.
func (q *Queue) Run(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				item := q.next(ctx)
				if item == nil {
					return
				}
				q.execute(ctx, worker, item)
			}
		}(i)
	}
	wg.Wait()
}

// next blocks until a pending task is available or the context is canceled.
func (q *Queue) next(ctx context.Context) *queueItem {
	for {
		q.mu.Lock()
		for q.pending.Len() > 0 {
			item := heap.Pop(&q.pending).(*queueItem)
			item.enqueued = false
			if item.canceled {
				continue
			}
			item.restored = false
			item.status = model.TaskStatusRunning
			item.task.Status = model.TaskStatusRunning
			more := q.pending.Len() > 0
			q.mu.Unlock()
			// Chain the wakeup so a burst of submissions fans out across
			// idle workers instead of draining through one.
			if more {
				q.wake()
			}
			return item
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-q.notify:
		}
	}
}

func (q *Queue) execute(ctx context.Context, worker int, item *queueItem) {
	task := item.task

	log := logger.WithFields(map[string]interface{}{
		"queue":     "taskqueue",
		"worker":    worker,
		"task_id":   task.TaskID,
		"task_type": task.TaskType,
	})

	if err := q.repo.MarkRunning(ctx, task.TaskID); err != nil {
		log.WithError(err).Warn("Failed to mark task running")
	}

	q.mu.Lock()
	handler, ok := q.handlers[task.TaskType]
	q.mu.Unlock()

	if !ok {
		q.finish(ctx, item, fmt.Errorf("no handler registered for task type %q", task.TaskType))
		return
	}

	log.Info("Task started")
	err := handler(ctx, &task)
	q.finish(ctx, item, err)

	if err != nil {
		log.WithError(err).Error("Task failed")
	} else {
		log.Info("Task completed")
	}
}

// finish records the terminal state and removes the persisted row: rows exist
// only for restart recovery, the entity store keeps the durable audit trail.
// Terminal results stay visible to Status for the retention window, then the
// oldest are evicted so a long-lived worker does not accumulate them forever.
func (q *Queue) finish(ctx context.Context, item *queueItem, err error) {
	q.mu.Lock()
	if err != nil {
		item.status = model.TaskStatusFailed
		item.err = err
	} else {
		item.status = model.TaskStatusCompleted
	}
	delete(q.active, item.task.IdentityKey())

	q.terminal = append(q.terminal, item.task.TaskID)
	for len(q.terminal) > q.retain {
		delete(q.items, q.terminal[0])
		q.terminal = q.terminal[1:]
	}
	q.mu.Unlock()

	if err != nil {
		if markErr := q.repo.MarkFailed(ctx, item.task.TaskID, err.Error()); markErr != nil {
			logger.WithError(markErr).Warn("Failed to record task failure")
		}
	}
	if delErr := q.repo.DeleteByTaskID(ctx, item.task.TaskID); delErr != nil {
		logger.WithError(delErr).Warn("Failed to delete persisted task row")
	}
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
