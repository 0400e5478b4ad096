package codex

import (
	"sort"
	"sync"
)

// ApprovalBroker tracks outstanding approval requests by id.
type ApprovalBroker struct {
	mu      sync.Mutex
	pending map[string]string // request id -> conversation id
}

// NewApprovalBroker returns an empty broker.
func NewApprovalBroker() *ApprovalBroker {
	return &ApprovalBroker{pending: make(map[string]string)}
}

// Register records that requestID belongs to cid.
func (b *ApprovalBroker) Register(requestID, cid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[requestID] = cid
}

// Take removes requestID and returns its conversation id.
func (b *ApprovalBroker) Take(requestID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cid, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
	}
	return cid, ok
}

// ClearConversation drops every request owned by cid and returns how many
// were removed.
func (b *ApprovalBroker) ClearConversation(cid string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id, owner := range b.pending {
		if owner == cid {
			delete(b.pending, id)
			n++
		}
	}
	return n
}

// Pending returns the request ids owned by cid, sorted.
func (b *ApprovalBroker) Pending(cid string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ids []string
	for id, owner := range b.pending {
		if owner == cid {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the total number of outstanding requests.
func (b *ApprovalBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
