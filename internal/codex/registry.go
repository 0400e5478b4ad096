package codex

import (
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// RunningProcess is the registry entry for one conversation's live child.
type RunningProcess struct {
	ConversationID string
	Process        *Process
	StartedAt      time.Time

	span trace.Span
}

// Registry maps conversation ids to their live process. All methods are
// safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	procs map[string]*RunningProcess
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]*RunningProcess)}
}

// Put stores rp and returns the entry it replaced, if any.
func (r *Registry) Put(rp *RunningProcess) *RunningProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.procs[rp.ConversationID]
	r.procs[rp.ConversationID] = rp
	return prev
}

// Get returns the entry for cid.
func (r *Registry) Get(cid string) (*RunningProcess, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, ok := r.procs[cid]
	return rp, ok
}

// Remove deletes and returns the entry for cid.
func (r *Registry) Remove(cid string) (*RunningProcess, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, ok := r.procs[cid]
	if ok {
		delete(r.procs, cid)
	}
	return rp, ok
}

// RemoveIf deletes the entry for cid only when it still holds p. An exiting
// process must not evict the replacement that superseded it.
func (r *Registry) RemoveIf(cid string, p *Process) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, ok := r.procs[cid]
	if !ok || rp.Process != p {
		return false
	}
	delete(r.procs, cid)
	return true
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// IDs returns the conversation ids with a live process, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.procs))
	for id := range r.procs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Drain removes and returns every entry.
func (r *Registry) Drain() []*RunningProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*RunningProcess, 0, len(r.procs))
	for id, rp := range r.procs {
		out = append(out, rp)
		delete(r.procs, id)
	}
	return out
}
