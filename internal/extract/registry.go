package extract

import (
	"sync"

	"github.com/docufill/docufill/internal/common"
)

// Status is the fill state of a slot.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusFilled  Status = "FILLED"
	StatusSkipped Status = "SKIPPED"
)

// Resolved reports whether the status counts toward completion progress.
func (s Status) Resolved() bool {
	return s == StatusFilled || s == StatusSkipped
}

// Slot is one placeholder occurrence extracted from a document.
//
// IDs are a strictly increasing sequence starting at 0 in document order,
// scoped to the owning document, and are never reused: a re-extraction
// replaces the document's slot set as a whole.
type Slot struct {
	ID       int64    `json:"id"`
	Start    int      `json:"start"` // [Start, End) into the original text
	End      int      `json:"end"`
	RawToken string   `json:"raw_token"`
	Type     SlotType `json:"inferred_type"`
	Prompt   string   `json:"prompt"`
	Value    string   `json:"value,omitempty"`
	Status   Status   `json:"status"`
}

// Registry is the canonical, ordered slot list for one document. All
// mutation goes through Update/MarkSkipped, which serialize on an internal
// mutex so concurrent sessions cannot leave a slot with a torn
// (value, status) pair.
type Registry struct {
	mu    sync.Mutex
	slots []Slot
}

// NewRegistry wraps an already-ordered slot list (typically loaded from the
// persistence collaborator) in a Registry.
func NewRegistry(slots []Slot) *Registry {
	return &Registry{slots: slots}
}

// Len returns the total slot count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Slots returns a copy of every slot in document order.
func (r *Registry) Slots() []Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Slot, len(r.slots))
	copy(out, r.slots)
	return out
}

// Get returns the slot with the given id.
func (r *Registry) Get(id int64) (Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= int64(len(r.slots)) {
		return Slot{}, common.NotFoundf("slot %d", id)
	}
	return r.slots[id], nil
}

// Update sets the slot's value and marks it FILLED. It is the only value
// mutation entry point and is idempotent: re-updating a FILLED slot
// overwrites the value and leaves the status unchanged.
func (r *Registry) Update(id int64, value string) (Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= int64(len(r.slots)) {
		return Slot{}, common.NotFoundf("slot %d", id)
	}
	r.slots[id].Value = value
	r.slots[id].Status = StatusFilled
	return r.slots[id], nil
}

// MarkSkipped marks the slot SKIPPED without touching its value.
func (r *Registry) MarkSkipped(id int64) (Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= int64(len(r.slots)) {
		return Slot{}, common.NotFoundf("slot %d", id)
	}
	r.slots[id].Status = StatusSkipped
	return r.slots[id], nil
}

// NextPending returns the lowest-id slot that is still PENDING, establishing
// the deterministic document-order fill sequence.
func (r *Registry) NextPending() (Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.Status == StatusPending {
			return s, true
		}
	}
	return Slot{}, false
}

// Progress returns the resolved (filled or skipped) and total slot counts.
// It is recomputed on every call, never cached.
func (r *Registry) Progress() (resolved, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.Status.Resolved() {
			resolved++
		}
	}
	return resolved, len(r.slots)
}

// Filled returns every FILLED slot in document order. Used by the dialogue
// layer to suggest reusing a previously accepted value.
func (r *Registry) Filled() []Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Slot
	for _, s := range r.slots {
		if s.Status == StatusFilled {
			out = append(out, s)
		}
	}
	return out
}
