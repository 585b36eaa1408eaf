// Package page implements the page materialization and residency control
// subsystem (PMRC, spec.md §4.1-§4.3): C1 builds an in-memory Page from a
// disk image, C2 drives a Ref to a hazard-protected MEM state, and C3 decides
// when a live leaf must be evicted before use.
//
// Grounded throughout on the teacher's page/buffer-pool idiom
// (_examples/ryogrid-bltree-go-for-embedding/bufmgr.go PinLatch/UnpinLatch
// clock-sweep pin protocol, and the phase-fair locks it shares with
// _examples/hmarui66-blink-tree-go/latchmgr.go), generalized from one
// physical B-tree leaf shape to the four variants spec.md §3 names.
package page

import (
	"sync/atomic"

	"github.com/ryogrid/pagekv/interfaces"
	"github.com/ryogrid/pagekv/latch"
)

// RefState is the state a Ref occupies, drawn from spec.md §3's closed set.
type RefState uint32

const (
	StateDisk RefState = iota
	StateDeleted
	StateReading
	StateLocked
	StateMem
	StateSplit
)

func (s RefState) String() string {
	switch s {
	case StateDisk:
		return "DISK"
	case StateDeleted:
		return "DELETED"
	case StateReading:
		return "READING"
	case StateLocked:
		return "LOCKED"
	case StateMem:
		return "MEM"
	case StateSplit:
		return "SPLIT"
	default:
		return "UNKNOWN"
	}
}

// Read generation sentinels (spec.md §6).
const (
	ReadGenNotSet uint64 = 0
	ReadGenOldest uint64 = 1
	// ReadGenStart is the first value handed out by a cache epoch counter;
	// kept strictly above ReadGenOldest so "oldest" always sorts first for
	// eviction, mirroring the teacher's 1-based page numbering convention
	// (page 0 reserved, page 1 = root) applied here to generations instead.
	ReadGenStart uint64 = 2
)

// PageType is the physical page type tag (spec.md §3), aliasing the codec's
// on-disk PhysicalType so the materializer and the codec speak one vocabulary.
type PageType = interfaces.PhysicalType

const (
	TypeColFixedLeaf    = interfaces.PhysicalColFixedLeaf
	TypeColInternal     = interfaces.PhysicalColInternal
	TypeRowInternal     = interfaces.PhysicalRowInternal
	TypeColVariableLeaf = interfaces.PhysicalColVariableLeaf
	TypeRowLeaf         = interfaces.PhysicalRowLeaf
)

// Ref is the edge from a parent internal page to a child (spec.md §3).
// State transitions are the only legal way to alter Page; see CAS below.
type Ref struct {
	state RefState32 // atomic state word

	Addr     interfaces.Addr // opaque block locator
	HomePage *Page           // parent page this Ref is a slot of

	// Page is valid to read only while the caller holds a hazard pointer on
	// it and State() == StateMem. Exactly one Ref owns any MEM Page.
	page atomic.Pointer[Page]

	// parentLock is not acquired by any code in this package; state
	// transitions are serialized by the CAS on state instead.
	parentLock latch.SpinLatch

	// overflowKey holds a page-owned copy of an overflow key's bytes,
	// populated only for row-internal KEY_OVFL cells (spec.md §4.1).
	overflowKey []byte

	// Key is the child's separator key (row-internal) or starting record
	// number (column-internal), set by materialization.
	Key RowKey
}

// RowKey is the inlined key carried by a row-internal Ref for the KEY cell
// case (spec.md §4.1: "on KEY, inline the key reference into the current
// Ref"). ColRecNo is used instead for column-internal Refs.
type RowKey struct {
	Bytes    []byte
	ColRecNo uint64
}

// RefState32 wraps atomic uint32 access with the RefState type.
type RefState32 struct{ v uint32 }

func (s *RefState32) Load() RefState            { return RefState(atomic.LoadUint32(&s.v)) }
func (s *RefState32) Store(v RefState)          { atomic.StoreUint32(&s.v, uint32(v)) }
func (s *RefState32) CAS(old, new RefState) bool {
	return atomic.CompareAndSwapUint32(&s.v, uint32(old), uint32(new))
}

// NewRef builds a Ref pointing at a not-yet-materialized disk page.
func NewRef(addr interfaces.Addr, home *Page) *Ref {
	r := &Ref{Addr: addr, HomePage: home}
	r.state.Store(StateDisk)
	return r
}

// State returns the Ref's current state.
func (r *Ref) State() RefState { return r.state.Load() }

// Page returns the currently-installed Page, or nil if the Ref is not MEM.
// Valid only under a held hazard pointer; see PageIn.
func (r *Ref) Page() *Page { return r.page.Load() }

// casState attempts a state transition, the sole synchronizing primitive for
// Ref lifecycle changes (spec.md §5: "Every Ref state transition is a CAS on
// the state word").
func (r *Ref) casState(from, to RefState) bool {
	return r.state.CAS(from, to)
}

// installMem installs pg and transitions the Ref to MEM. Caller must already
// hold the transitional state (READING or LOCKED) via casState.
func (r *Ref) installMem(pg *Page) {
	r.page.Store(pg)
	if pg != nil && pg.Type.IsInternal() {
		pg.OwnerRef = r
	}
	r.state.Store(StateMem)
}

// clearMem discards the owning pointer, e.g. on eviction. Caller must hold
// LOCKED and transition onward (typically to StateDisk) immediately after.
func (r *Ref) clearMem() {
	r.page.Store(nil)
}

// ModifyRecord is present on a Page iff it has been updated since load
// (spec.md §3). Its presence, not its contents, is what C3's forced-eviction
// gate inspects; contents are owned by the (out of scope) higher layers that
// actually mutate page bytes.
type ModifyRecord struct {
	Dirty bool
}

// RowSlotTag is the small tag set spec.md §3 names for row-leaf slots.
type RowSlotTag uint8

const (
	KeyOnPage RowSlotTag = iota
	KeyCell
	KeyValueCell
)

// RepeatEntry is one row of a column-variable-leaf's run-length table
// (spec.md §3).
type RepeatEntry struct {
	Index      uint32
	StartRecNo uint64
	RunLength  uint64
}

// RowSlot encodes one row-leaf entry: either an inlined key (KeyOnPage) or a
// pointer to a disk cell, optionally carrying a value (spec.md §3).
type RowSlot struct {
	Tag   RowSlotTag
	Key   []byte
	Value []byte // non-nil only when Tag == KeyValueCell
}

// Index is the ordered sequence of owned Refs inside an internal page
// (spec.md §3).
type Index struct {
	Refs []*Ref
}

// ColFixedLeaf is the column-fixed-leaf physical variant (spec.md §3).
type ColFixedLeaf struct {
	StartRecNo  uint64
	NumEntries  uint32
	Bitfield    []byte // points into the page's disk image data region
}

// ColInternal is the column-internal physical variant (spec.md §3).
type ColInternal struct {
	StartRecNo uint64
	Index      *Index
}

// RowInternal is the row-internal physical variant (spec.md §3).
type RowInternal struct {
	Index *Index
}

// ColVariableLeaf is the column-variable-leaf physical variant (spec.md §3).
type ColVariableLeaf struct {
	NumEntries  uint32
	CellOffsets []uint32 // page-relative offsets, one per cell
	Repeats     []RepeatEntry // nil unless some cell has rle > 1
}

// RowLeaf is the row-leaf physical variant (spec.md §3).
type RowLeaf struct {
	NumEntries uint32
	Slots      []RowSlot
}

// Page is an in-memory materialization of one disk page (spec.md §3).
// Exactly one of the ColFixLeaf/ColInt/RowInt/ColVarLeaf/RowLeaf fields is
// populated, selected by Type; this is a closed sum type implemented as
// mutually-exclusive fields rather than subclass polymorphism (spec.md
// Design Notes), matching the teacher's own single concrete Page struct
// whose interpretation of Data also varies by page.Lvl/page type.
type Page struct {
	Type PageType

	ColFixLeaf *ColFixedLeaf
	ColInt     *ColInternal
	RowInt     *RowInternal
	ColVarLeaf *ColVariableLeaf
	RowLeafPg  *RowLeaf

	ReadGen         uint64
	MemoryFootprint uint64
	Modify          *ModifyRecord
	OwnerRef        *Ref // back-reference, internal pages only
	Image           []byte
	OwnsImage       bool

	hazards int32 // atomic hazard refcount, see hazard.go
}

// IsDirty reports whether the page has a modify record (spec.md §4.3).
func (p *Page) IsDirty() bool { return p.Modify != nil }
