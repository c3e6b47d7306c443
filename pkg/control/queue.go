package control

import "sync"

// Update is one pending parameter write.
type Update struct {
	Name  string
	Value float32
}

// Queue serializes parameter writes from concurrent producers (UI thread,
// timeline, network). Updates are applied in arrival order by Drain, which the
// rig calls once before each evaluation.
type Queue struct {
	mu      sync.Mutex
	pending []Update
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push enqueues a write. It never blocks on evaluation.
func (q *Queue) Push(name string, value float32) {
	q.mu.Lock()
	q.pending = append(q.pending, Update{Name: name, Value: value})
	q.mu.Unlock()
}

// Len returns the number of pending updates.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain applies all pending updates to set and returns those that failed
// (undeclared names) together with their errors.
func (q *Queue) Drain(set *Set) []error {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	var errs []error
	for _, u := range batch {
		if err := set.Set(u.Name, u.Value); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
