package taskqueue

// taskHeap orders items by (priority, queue_counter): lower priority numbers
// execute first, and within a priority, submission order wins. Creation time
// is the fallback tie-breaker for rows with indistinguishable counters.
type taskHeap []*queueItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	a, b := h[i].task, h[j].task
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.QueueCounter != b.QueueCounter {
		return a.QueueCounter < b.QueueCounter
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*queueItem))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
