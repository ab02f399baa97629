package peer

import (
	"sync"
	"time"
)

// PendingParentRequest is an advisory hierarchy-change ask awaiting a
// PARENT_RESPONSE. It never auto-applies: approval still requires a
// separate NODE_PARENT_UPDATE event submitted through the normal chain
// (SPEC_FULL.md §5 supplemented feature).
type PendingParentRequest struct {
	NodeID    string
	ParentID  string
	Reason    string
	Metadata  map[string]any
	Requested time.Time
}

// ParentRequestPool tracks outstanding PARENT_REQUESTs keyed by the
// requesting node id.
type ParentRequestPool struct {
	mu      sync.Mutex
	pending map[string]PendingParentRequest
}

// NewParentRequestPool constructs an empty pool.
func NewParentRequestPool() *ParentRequestPool {
	return &ParentRequestPool{pending: make(map[string]PendingParentRequest)}
}

// Add records a new PARENT_REQUEST, replacing any prior pending request
// from the same node.
func (p *ParentRequestPool) Add(req PendingParentRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[req.NodeID] = req
}

// Resolve removes and returns the pending request for nodeID, if any. A
// PARENT_RESPONSE (approved or not) clears the pending entry; the caller
// decides separately whether to submit a NODE_PARENT_UPDATE event.
func (p *ParentRequestPool) Resolve(nodeID string) (PendingParentRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.pending[nodeID]
	if ok {
		delete(p.pending, nodeID)
	}
	return req, ok
}

// Pending returns a snapshot of every outstanding request.
func (p *ParentRequestPool) Pending() []PendingParentRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PendingParentRequest, 0, len(p.pending))
	for _, req := range p.pending {
		out = append(out, req)
	}
	return out
}
