package selector

import "sync"

// Selector is the state shared between the button callback, the HTTP API and
// the control loop: the requested source address and whether a change is
// still pending. Requests overwrite each other; the loop drains the newest.
type Selector struct {
	mu        sync.Mutex
	requested string
	pending   bool
}

type Snapshot struct {
	Requested string `json:"requested"`
	Pending   bool   `json:"pending"`
}

// New returns a selector with initial already pending, so the first drain
// connects to the default source.
func New(initial string) *Selector {
	return &Selector{
		requested: initial,
		pending:   initial != "",
	}
}

// RequestChange marks address as the pending target, replacing any earlier
// target that was not drained yet.
func (r *Selector) RequestChange(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requested = address
	r.pending = true
}

// TakeIfPending reads and clears the pending request in one step.
func (r *Selector) TakeIfPending() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.pending {
		return "", false
	}
	r.pending = false

	return r.requested, true
}

func (r *Selector) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{Requested: r.requested, Pending: r.pending}
}
