// Package interfaces collects the collaborator contracts that spec.md §6
// declares out of scope for the core: the block manager, the cell codec, the
// transaction manager, the schema/handle registry, the Bloom filter library,
// the checkpointer, the background LSM worker, and the process-wide cache
// accountant. The core (packages page and lsm) depends only on these
// interfaces, never on a concrete collaborator, the same way the teacher's
// BufMgr depends only on interfaces.ParentBufMgr / interfaces.ParentPage
// (_examples/ryogrid-bltree-go-for-embedding/interfaces) and never on a
// concrete SamehadaDB buffer pool.
package interfaces

import "context"

// Addr is the opaque block locator carried by a Ref (spec.md §3, "an address
// cookie"). The core never interprets its bytes; only the BlockManager does.
type Addr uint64

// BlockManager turns bytes on disk into page images and back. It works on
// addresses only and never sees or changes a Ref's state; the
// DISK->READING->MEM transitions around Read are made by page.PageIn.
type BlockManager interface {
	// Read fetches the disk image for addr. On success the returned bytes
	// are page-owned (safe for the caller to retain) and size reports the
	// on-disk footprint in bytes.
	Read(ctx context.Context, addr Addr) (image []byte, size uint32, err error)
	// Write persists image at addr, allocating a fresh address when addr is
	// the zero value.
	Write(ctx context.Context, addr Addr, image []byte) (Addr, error)
	// Free releases addr for reuse. The core calls this only for pages it
	// has already unlinked from the tree.
	Free(ctx context.Context, addr Addr) error
}

// CellType is the closed tagged union of on-page cell kinds (spec.md §6).
type CellType uint8

const (
	CellKey CellType = iota
	CellKeyOverflow
	CellValue
	CellValueOverflow
	CellAddrInternal
	CellAddrLeaf
	CellAddrLeafNoOverflow
	CellAddrDeleted
)

// UnpackedCell is what CellCodec.Unpack returns: the parsed view of one cell
// inside a page image (spec.md §6).
type UnpackedCell struct {
	Type       CellType
	Value      []byte
	RLE        uint64
	PrefixLen  uint32
	RecordNo   uint64
	IsOverflow bool
}

// CellCodec frames and parses the key/value cells inside a page image. It is
// the sole interpreter of on-page bytes; the core never parses a cell itself.
type CellCodec interface {
	Unpack(cell []byte) (UnpackedCell, error)
	RLE(u UnpackedCell) uint64
	// Cells slices image's cell region into count framed cells, in page
	// order, ready for Unpack. The materializer never parses framing
	// itself; this is the codec's sole concern (spec.md §6).
	Cells(image []byte, count uint32) ([][]byte, error)
	// HeaderSize reports the fixed on-disk header length in bytes, so the
	// materializer can locate the data region (e.g. a column-fixed leaf's
	// packed bitfield) without knowing the header's internal layout.
	HeaderSize() int
	// UnpackHeader parses the fixed on-disk page image header spec.md §6
	// names (physical type, entry count, starting record number, and the
	// EMPTY_V_ALL/EMPTY_V_NONE flags). Exact byte layout is the codec's
	// concern, not the materializer's.
	UnpackHeader(image []byte) (Header, error)
}

// PhysicalType is the on-disk page type tag (spec.md §3).
type PhysicalType uint8

const (
	PhysicalColFixedLeaf PhysicalType = iota
	PhysicalColInternal
	PhysicalRowInternal
	PhysicalColVariableLeaf
	PhysicalRowLeaf
)

// IsLeaf reports whether t is one of the three leaf physical types.
func (t PhysicalType) IsLeaf() bool {
	return t == PhysicalColFixedLeaf || t == PhysicalColVariableLeaf || t == PhysicalRowLeaf
}

// IsInternal reports whether t is one of the two internal physical types.
func (t PhysicalType) IsInternal() bool {
	return t == PhysicalColInternal || t == PhysicalRowInternal
}

// HeaderFlags are the on-disk page header flags the materializer consults
// (spec.md §6).
type HeaderFlags uint8

const (
	HeaderEmptyVAll HeaderFlags = 1 << iota
	HeaderEmptyVNone
)

// Header is the on-disk page image header (spec.md §6).
type Header struct {
	Type    PhysicalType
	Entries uint32
	RecNo   uint64
	Flags   HeaderFlags
}

// SnapshotID identifies a transaction's point-in-time view (spec.md §6).
type SnapshotID uint64

// Snapshot is the subset of transaction-manager-owned state the core reads
// when it must decide visibility (spec.md §3 LMC Cursor, §4.4, §4.6).
type Snapshot struct {
	ID        SnapshotID
	SnapMin   SnapshotID
	Isolation IsolationLevel
}

type IsolationLevel uint8

const (
	IsolationReadUncommitted IsolationLevel = iota
	IsolationSnapshot
	IsolationReadCommitted
)

// TxnManager exposes the visibility and autocommit checks the core needs
// without owning any transaction state itself (spec.md §6).
type TxnManager interface {
	AutocommitCheck(ctx context.Context) error
	TxnIDCheck(ctx context.Context) (SnapshotID, error)
	Visible(ctx context.Context, id SnapshotID) bool
	VisibleToAll(ctx context.Context, id SnapshotID) bool
	CurrentSnapshot(ctx context.Context) Snapshot
}

// BloomFilter is the per-chunk membership filter consulted by lookup()
// (spec.md §4.5). HashGet answers "definitely absent" (ok=false) or "maybe
// present" (ok=true); it never false-negatives.
type BloomFilter interface {
	Hash(key []byte) uint64
	HashGet(digest uint64) (maybePresent bool)
	Close() error
}

// BloomOpener opens (or builds) the Bloom filter backing a sealed chunk.
type BloomOpener interface {
	Open(ctx context.Context, uri string) (BloomFilter, error)
}

// WorkKind enumerates the background work items the core can enqueue
// (spec.md §4.5, §6: "push_entry(WORK_SWITCH, 0, tree)").
type WorkKind uint8

const (
	WorkSwitch WorkKind = iota
	WorkMerge
)

// LSMWorker is the background worker collaborator. Enqueue must not block
// the caller beyond admission into the worker's queue.
type LSMWorker interface {
	Enqueue(kind WorkKind, priority int, tree any) error
}

// Checkpointer opens a read-only, point-in-time cursor against a sealed
// chunk's checkpoint image, used by C4 when opening an ONDISK chunk.
type Checkpointer interface {
	OpenCheckpoint(ctx context.Context, chunkURI string) (ChildCursor, error)
}

// CursorOpener opens a live child B-tree cursor against a chunk URI, the
// collaborator C4 calls for every chunk that isn't served from a checkpoint
// (spec.md §4.4).
type CursorOpener interface {
	OpenCursor(ctx context.Context, uri string, raw bool) (ChildCursor, error)
}

// MemoryProbe reports the in-memory size of a chunk's B-tree, the
// collaborator write-admission (spec.md §4.5) probes against chunk_size.
type MemoryProbe interface {
	MemoryBytes(ctx context.Context) uint64
}

// SchemaHandle names a resolved B-tree handle for a chunk URI, as returned
// by the schema/handle registry collaborator.
type SchemaHandle interface {
	URI() string
}

// SchemaRegistry resolves chunk URIs to live B-tree handles and holds the
// single global schema lock that C4's open() wraps its work in (spec.md §5).
type SchemaRegistry interface {
	Resolve(ctx context.Context, uri string) (SchemaHandle, error)
	Lock()
	Unlock()
}

// ChildCursor is the per-chunk B-tree cursor contract (spec.md §6): the only
// shape the LMC merge view needs from a component chunk.
type ChildCursor interface {
	Search(ctx context.Context, key []byte) (ok bool, value []byte, err error)
	SearchNear(ctx context.Context, key []byte) (cmp int, foundKey, value []byte, err error)
	Next(ctx context.Context) (ok bool, key, value []byte, err error)
	Prev(ctx context.Context) (ok bool, key, value []byte, err error)
	Insert(ctx context.Context, key, value []byte) error
	Update(ctx context.Context, key, value []byte) error
	Reset(ctx context.Context) error
	Close(ctx context.Context) error
	// SetInsertHook installs the conflict-checking insert variant C4 wires
	// onto every non-primary child cursor (spec.md §4.4, §4.6).
	SetInsertHook(hook func(ctx context.Context, key, value []byte) error)
}

// CacheAccountant is the process-wide, atomically-updated byte/page counter
// spec.md's Design Notes call for: "model as an explicit object passed by
// reference with atomic increment/decrement and a snapshot method."
type CacheAccountant interface {
	AddBytes(delta int64)
	AddPages(delta int64)
	Snapshot() CacheStats
	// PressureRatio reports used/capacity in [0,1], consulted by C2's
	// "ensure the cache is under pressure threshold (<=95% full)" check.
	PressureRatio() float64
}

// CacheStats is a point-in-time read of the cache accountant.
type CacheStats struct {
	BytesUsed int64
	PagesUsed int64
	Capacity  int64
}
