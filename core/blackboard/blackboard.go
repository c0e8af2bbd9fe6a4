// Package blackboard implements the orchestrator's authoritative runtime
// state: per-concept status, per-item status and execution counts, and
// completion timestamps (§3 "Blackboard state").
package blackboard

import (
	"sync"
	"time"
)

// ConceptStatus is the lifecycle state of a concept's Reference.
type ConceptStatus string

const (
	ConceptEmpty    ConceptStatus = "empty"
	ConceptPending  ConceptStatus = "pending"
	ConceptComplete ConceptStatus = "complete"
)

// ItemStatus is the lifecycle state of a waitlist item.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemInProgress ItemStatus = "in_progress"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
)

// Blackboard holds the mutable scheduling state. It is written exclusively by
// the orchestrator's main loop (§5); the mutex below guards against
// concurrent reads from an event sink or an HTTP status endpoint running on
// their own goroutines, not against concurrent writers.
type Blackboard struct {
	mu sync.RWMutex

	conceptStatus map[string]ConceptStatus
	conceptStamp  map[string]time.Time

	itemStatus map[string]ItemStatus
	itemCount  map[string]int
	itemResult map[string]string
}

// New returns an empty Blackboard. Callers populate it via InitConcept /
// InitItem during orchestrator initialization (§4.7.1).
func New() *Blackboard {
	return &Blackboard{
		conceptStatus: make(map[string]ConceptStatus),
		conceptStamp:  make(map[string]time.Time),
		itemStatus:    make(map[string]ItemStatus),
		itemCount:     make(map[string]int),
		itemResult:    make(map[string]string),
	}
}

// InitConcept sets a concept's initial status (§4.7.1 step 2/3).
func (b *Blackboard) InitConcept(name string, status ConceptStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conceptStatus[name] = status
	if status == ConceptComplete {
		b.conceptStamp[name] = now()
	}
}

// InitItem sets an item's initial status and zeroes its execution count
// (§4.7.1 step 2).
func (b *Blackboard) InitItem(flowIndex string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.itemStatus[flowIndex] = ItemPending
	b.itemCount[flowIndex] = 0
}

// ConceptStatus returns the named concept's status ("" if unknown).
func (b *Blackboard) ConceptStatus(name string) ConceptStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conceptStatus[name]
}

// SetConceptComplete transitions a concept to complete, recording the
// completion timestamp only on the first empty/pending→complete transition
// (§3: "never overwritten").
func (b *Blackboard) SetConceptComplete(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, stamped := b.conceptStamp[name]; !stamped {
		b.conceptStamp[name] = now()
	}
	b.conceptStatus[name] = ConceptComplete
}

// SetConceptPending resets a concept to pending, used by the quantifying
// support-reset protocol (§4.7.5). It does not touch the completion
// timestamp field; a later completion keeps the first recorded timestamp.
func (b *Blackboard) SetConceptPending(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conceptStatus[name] = ConceptPending
}

// CompletedAt returns the recorded completion timestamp and whether one was
// ever recorded.
func (b *Blackboard) CompletedAt(name string) (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.conceptStamp[name]
	return t, ok
}

// ItemStatus returns the named item's status ("" if unknown).
func (b *Blackboard) ItemStatus(flowIndex string) ItemStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.itemStatus[flowIndex]
}

// SetItemStatus overwrites an item's status.
func (b *Blackboard) SetItemStatus(flowIndex string, status ItemStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.itemStatus[flowIndex] = status
}

// IncrementExecutionCount bumps an item's execution count and returns the new
// value. Called once per dispatch, before the step runs (§4.7.3 step 2).
func (b *Blackboard) IncrementExecutionCount(flowIndex string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.itemCount[flowIndex]++
	return b.itemCount[flowIndex]
}

// ExecutionCount returns an item's current execution count.
func (b *Blackboard) ExecutionCount(flowIndex string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.itemCount[flowIndex]
}

// SetItemResult overwrites an item's last observed outcome payload.
func (b *Blackboard) SetItemResult(flowIndex, result string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.itemResult[flowIndex] = result
}

// ItemResult returns an item's last observed outcome payload.
func (b *Blackboard) ItemResult(flowIndex string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.itemResult[flowIndex]
}

// Snapshot captures every field the checkpoint subsystem persists (§4.8.1).
type Snapshot struct {
	ConceptStatus map[string]ConceptStatus
	ItemStatus    map[string]ItemStatus
	ItemCount     map[string]int
	ItemResult    map[string]string
}

// Snapshot returns a deep copy of the current state for checkpointing.
func (b *Blackboard) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Snapshot{
		ConceptStatus: make(map[string]ConceptStatus, len(b.conceptStatus)),
		ItemStatus:    make(map[string]ItemStatus, len(b.itemStatus)),
		ItemCount:     make(map[string]int, len(b.itemCount)),
		ItemResult:    make(map[string]string, len(b.itemResult)),
	}
	for k, v := range b.conceptStatus {
		s.ConceptStatus[k] = v
	}
	for k, v := range b.itemStatus {
		s.ItemStatus[k] = v
	}
	for k, v := range b.itemCount {
		s.ItemCount[k] = v
	}
	for k, v := range b.itemResult {
		s.ItemResult[k] = v
	}
	return s
}

// now is overridden in tests that need deterministic timestamps.
var now = time.Now
