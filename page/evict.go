package page

import (
	"context"
	"sync/atomic"
)

// Evictor is the out-of-scope eviction subsystem C3 and C2 consult: C3 asks
// whether an immediate eviction of a flagged page is feasible, C2's
// release_and_evict step asks it to actually perform one, and the DISK/
// DELETED branch of the page-in loop asks it to relieve cache pressure
// before issuing a new read (spec.md §4.2, §4.3).
type Evictor interface {
	// Feasible reports whether pg can be evicted right now. Called only
	// after the forced-eviction predicate has already matched.
	Feasible(ctx context.Context, pg *Page) bool
	// Evict performs the actual eviction of ref's page, transitioning the
	// Ref back toward DISK. Returns Busy if a concurrent hazard or CAS race
	// prevents it (spec.md scenario 5).
	Evict(ctx context.Context, ref *Ref) error
	// ReducePressure is consulted before a fresh page-in read when the cache
	// is over its pressure threshold (spec.md §4.2: "ensure the cache is
	// under pressure threshold, evicting if needed").
	ReducePressure(ctx context.Context) error
}

// TreeConfig carries the per-tree knobs C3's gate and C2's eviction-disable
// rule consult (spec.md §4.3, §5: "Eviction of a primary chunk's in-memory
// B-tree is disabled while the chunk is primary").
type TreeConfig struct {
	MaxMemPage uint64

	evictionDisabled int32 // atomic bool
	noCache          int32 // atomic bool
}

// DisableEviction and EnableEviction toggle the tree-wide eviction gate,
// used around a chunk's tenure as primary (spec.md §5).
func (t *TreeConfig) DisableEviction() { atomic.StoreInt32(&t.evictionDisabled, 1) }
func (t *TreeConfig) EnableEviction()  { atomic.StoreInt32(&t.evictionDisabled, 0) }

func (t *TreeConfig) evictionDisabledNow() bool {
	return atomic.LoadInt32(&t.evictionDisabled) != 0
}

// SetSuppressCaching toggles the session-level "don't bother keeping pages
// I read around" hint (spec.md §4.2 step 3: "the session suppresses
// caching"). A session with this set treats every page it pages in as
// WONT_NEED for generation-update purposes, regardless of the per-call flag.
func (t *TreeConfig) SetSuppressCaching(v bool) {
	if v {
		atomic.StoreInt32(&t.noCache, 1)
	} else {
		atomic.StoreInt32(&t.noCache, 0)
	}
}

func (t *TreeConfig) suppressesCaching() bool {
	return t != nil && atomic.LoadInt32(&t.noCache) != 0
}

// ForcedEvictionCheck implements C3 (spec.md §4.3). It returns true only
// when the base predicate holds (oversized, leaf, not NO_EVICT, eviction not
// disabled, dirty) and either no Evictor is supplied or the eviction
// subsystem itself agrees an immediate eviction is feasible. Internal pages always return false, even over
// budget, because force-evicting one would destabilize in-flight descents.
func ForcedEvictionCheck(ctx context.Context, pg *Page, cfg *TreeConfig, noEvict bool, ev Evictor) bool {
	if cfg == nil || pg.MemoryFootprint < cfg.MaxMemPage {
		return false
	}
	if !pg.Type.IsLeaf() {
		return false
	}
	if noEvict {
		return false
	}
	if cfg.evictionDisabledNow() {
		return false
	}
	if pg.Modify == nil {
		return false
	}
	// Flag for soft eviction before consulting the subsystem, even if it
	// declines an immediate eviction: the page is now a better LRU
	// candidate regardless of whether C2 manages to evict it this attempt.
	pg.ReadGen = ReadGenOldest
	if ev == nil {
		return true
	}
	return ev.Feasible(ctx, pg)
}

// releaseAndEvict is C2's step 1 follow-through: the hazard on ref's page
// has already been released by the caller; this asks the eviction
// subsystem to actually reclaim it.
func releaseAndEvict(ctx context.Context, ref *Ref, ev Evictor) error {
	if ev == nil {
		return nil
	}
	return ev.Evict(ctx, ref)
}
