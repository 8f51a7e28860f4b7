package spool

import "sync"

// waitlist is a per-device FIFO of job IDs whose toolpath is ready but
// whose device is busy. FIFO order is a correctness requirement: it gives
// deterministic fairness across clients contending on one device.
type waitlist struct {
	mu   sync.Mutex
	ids  []string
	wake chan struct{}
}

func newWaitlist() *waitlist {
	return &waitlist{wake: make(chan struct{}, 1)}
}

func (w *waitlist) push(id string) {
	w.mu.Lock()
	w.ids = append(w.ids, id)
	w.mu.Unlock()
	w.notify()
}

func (w *waitlist) pop() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.ids) == 0 {
		return "", false
	}
	id := w.ids[0]
	w.ids = w.ids[1:]
	return id, true
}

// remove deletes a waiting job, preserving the order of the rest.
func (w *waitlist) remove(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, candidate := range w.ids {
		if candidate == id {
			w.ids = append(w.ids[:i], w.ids[i+1:]...)
			return true
		}
	}
	return false
}

// position returns the 1-based wait-list position of a job, or 0 when the
// job is not waiting.
func (w *waitlist) position(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, candidate := range w.ids {
		if candidate == id {
			return i + 1
		}
	}
	return 0
}

func (w *waitlist) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}
