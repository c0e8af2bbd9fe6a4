// Package waitlist implements the flow-index-sorted list of items awaiting
// dispatch, and descendant ("supporting item") lookup used by the
// quantifying support-reset protocol (§3 WaitlistItem, §4.7.5).
package waitlist

import (
	"sort"

	"github.com/flowstate/orchestrator/core/flowindex"
	"github.com/flowstate/orchestrator/core/inference"
)

// Item wraps one InferenceEntry; identity is the entry's flow index.
type Item struct {
	Entry *inference.Entry
}

// FlowIndex is a convenience accessor over the wrapped entry's flow index.
func (it Item) FlowIndex() flowindex.Index { return it.Entry.FlowInfo.FlowIndex }

// Waitlist is the flow-index-ordered list of items, one per inference entry.
type Waitlist struct {
	items []Item
}

// New builds a Waitlist from every entry in repo, sorted by flow index
// (§4.7.1 step 1).
func New(entries []*inference.Entry) *Waitlist {
	items := make([]Item, len(entries))
	for i, e := range entries {
		items[i] = Item{Entry: e}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].FlowIndex().Less(items[j].FlowIndex())
	})
	return &Waitlist{items: items}
}

// Items returns the items in flow-index order.
func (w *Waitlist) Items() []Item {
	out := make([]Item, len(w.items))
	copy(out, w.items)
	return out
}

// Len returns the number of items on the waitlist.
func (w *Waitlist) Len() int { return len(w.items) }

// Supporting returns every item whose flow index is a strict descendant of
// parent's (§4.7.5 "flow_index begins with P + '.'").
func (w *Waitlist) Supporting(parent flowindex.Index) []Item {
	var out []Item
	for _, it := range w.items {
		if it.FlowIndex().IsDescendantOf(parent) {
			out = append(out, it)
		}
	}
	return out
}
