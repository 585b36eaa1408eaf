package page

import (
	"sync/atomic"

	"github.com/ryogrid/pagekv/pkgerr"
)

// HazardTable is a per-session, append-only, bounded list of pages the
// session currently asserts "may not be evicted while I read it" (spec.md
// §3 GLOSSARY, §5). Grounded on the teacher's per-thread pin accounting in
// BufMgr (latch.pin, ClockBit) generalized from "pin count on a buffer pool
// slot" to "hazard pointer on a materialized Page", which is the same
// protocol at a different granularity: both license a reader to dereference
// a page and both must hit zero before an evictor may reclaim it.
type HazardTable struct {
	slots []*Page
}

// DefaultHazardCapacity bounds a session's simultaneously-held hazard
// pointers. Spec.md's scenario 5 relies on this bound for progress
// guarantees ("hazards are bounded per session").
const DefaultHazardCapacity = 16

// NewHazardTable allocates a bounded hazard table for one session.
func NewHazardTable() *HazardTable {
	return &HazardTable{slots: make([]*Page, 0, DefaultHazardCapacity)}
}

// Install publishes a hazard pointer on pg. It fails with Busy only when the
// session's bounded list is exhausted; the page-level hazard count itself
// has no capacity limit (many sessions may protect the same page).
func (h *HazardTable) Install(pg *Page) error {
	if len(h.slots) >= cap(h.slots) {
		return pkgerr.New("HazardTable.Install", pkgerr.Busy)
	}
	atomic.AddInt32(&pg.hazards, 1)
	h.slots = append(h.slots, pg)
	return nil
}

// Clear releases the most recently installed hazard pointer on pg. Hazard
// pointers are released in the scope-exit discipline spec.md §7/§9 require,
// so sessions release in LIFO order relative to a matching Install.
func (h *HazardTable) Clear(pg *Page) {
	for i := len(h.slots) - 1; i >= 0; i-- {
		if h.slots[i] == pg {
			atomic.AddInt32(&pg.hazards, -1)
			h.slots = append(h.slots[:i], h.slots[i+1:]...)
			return
		}
	}
}

// ClearAll releases every hazard pointer this session holds, used when a
// session aborts mid-operation (scoped-acquisition discipline, spec.md §9).
func (h *HazardTable) ClearAll() {
	for _, pg := range h.slots {
		atomic.AddInt32(&pg.hazards, -1)
	}
	h.slots = h.slots[:0]
}

// hazardCount returns the page's current hazard refcount.
func (p *Page) hazardCount() int32 { return atomic.LoadInt32(&p.hazards) }

// tryLockForEviction attempts the evictor's MEM->LOCKED CAS. It observes zero
// hazards before proceeding; if any hazard exists the CAS is never attempted
// and Busy is returned (spec.md §5: "An evictor's MEM->LOCKED CAS observes
// zero hazards on the page before it may proceed; if any hazard exists, the
// CAS fails and the evictor surrenders").
func tryLockForEviction(ref *Ref) error {
	if ref.Page() == nil {
		return pkgerr.New("tryLockForEviction", pkgerr.Busy)
	}
	pg := ref.Page()
	if pg.hazardCount() > 0 {
		return pkgerr.New("tryLockForEviction", pkgerr.Busy)
	}
	if !ref.casState(StateMem, StateLocked) {
		return pkgerr.New("tryLockForEviction", pkgerr.Busy)
	}
	// Re-check after winning the CAS: a racing Install between the load
	// above and the CAS would otherwise let us evict a page someone is
	// about to read.
	if pg.hazardCount() > 0 {
		ref.state.Store(StateMem)
		return pkgerr.New("tryLockForEviction", pkgerr.Busy)
	}
	return nil
}
