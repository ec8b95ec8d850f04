package runner

import "sync"

// CancelRegistry holds the cooperative cancellation flags, keyed by task ID.
// Flags are in-memory only: they are lost on crash, which is why the
// recovery scanner treats any still-running job as failed rather than
// assuming cancellation.
type CancelRegistry struct {
	mu    sync.Mutex
	flags map[string]bool
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{flags: make(map[string]bool)}
}

// Register adds a task so it can later be cancelled.
func (r *CancelRegistry) Register(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[taskID] = false
}

// Cancel sets the flag for a task. Returns false if the task is not
// registered (already finished or never started here).
func (r *CancelRegistry) Cancel(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flags[taskID]; !ok {
		return false
	}
	r.flags[taskID] = true
	return true
}

// IsCancelled reports whether cancellation was requested for a task.
// Polled by the runner at chunk boundaries only, so cancellation latency
// is bounded by one in-flight chunk's fetch duration.
func (r *CancelRegistry) IsCancelled(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags[taskID]
}

// Unregister removes a task once it reaches a terminal state.
func (r *CancelRegistry) Unregister(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, taskID)
}
