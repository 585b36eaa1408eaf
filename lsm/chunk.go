// Package lsm implements the LSM merge-view cursor subsystem (LMC,
// spec.md §4.4-§4.6): C4 opens and closes per-chunk B-tree cursors to match
// the tree's current shape, C5 presents a unified merged view across them
// with tombstone elision, and C6 routes writes to the primary chunk plus
// enough older chunks to preserve snapshot-isolation conflict detection.
//
// Grounded on the teacher's descent/split protocol in
// _examples/ryogrid-bltree-go-for-embedding/bltree.go generalized one level
// up: where BLTree walks one physical tree page by page, Tree here walks a
// sequence of whole component B-trees (chunks), and Cursor plays the role
// BLTree's own traversal state plays, but merged across chunks instead of
// across pages of one tree.
package lsm

import (
	"sync"
	"sync/atomic"

	"github.com/ryogrid/pagekv/interfaces"
	"github.com/ryogrid/pagekv/page"
)

// ChunkFlags are the chunk-level flags spec.md §3 names.
type ChunkFlags uint8

const (
	ChunkOnDisk ChunkFlags = 1 << iota
	ChunkBloom
)

// SwitchTxnNone means the chunk is still open and accepting writes
// (spec.md §3: "switch_txn (... NONE means still open)").
const SwitchTxnNone interfaces.SnapshotID = 0

// Chunk is one component B-tree within an LSM tree (spec.md §3).
type Chunk struct {
	ID        uint64
	URI       string
	BloomURI  string
	SwitchTxn interfaces.SnapshotID
	Flags     ChunkFlags
	Empty     bool
	Count     uint64

	// Config is the chunk's underlying B-tree's residency knobs; C4 disables
	// eviction on it while the chunk is primary (spec.md §5).
	Config *page.TreeConfig

	// BulkLoad mirrors a leftover bulk-load flag C4 clears when a chunk
	// becomes primary (spec.md §4.4: "clears any leftover bulk-load flag").
	BulkLoad bool

	// Probe reports the chunk's in-memory B-tree size, consulted by
	// write-admission while this chunk is primary (spec.md §4.5).
	Probe interfaces.MemoryProbe
}

// IsOpen reports whether the chunk is still accepting writes.
func (c *Chunk) IsOpen() bool { return c.SwitchTxn == SwitchTxnNone }

// IsOnDisk reports the ONDISK flag.
func (c *Chunk) IsOnDisk() bool { return c.Flags&ChunkOnDisk != 0 }

// HasBloom reports the BLOOM flag.
func (c *Chunk) HasBloom() bool { return c.Flags&ChunkBloom != 0 }

// Tree is the ordered sequence of Chunks spec.md §3 describes, indexed
// 0..n-1 with the newest (the primary) at n-1.
type Tree struct {
	mu sync.RWMutex

	chunks     []*Chunk
	dskGen     uint64
	needSwitch int32 // atomic bool
	ChunkSize  uint64
}

// NewTree builds an empty tree with the given per-chunk memory overflow
// threshold (spec.md §4.5 "chunk_size").
func NewTree(chunkSize uint64) *Tree {
	return &Tree{ChunkSize: chunkSize}
}

// RLock/RUnlock/Lock/Unlock expose the tree reader-writer lock spec.md §5
// names: "the tree handle is protected by a reader-writer lock; C4 takes the
// read lock and drops it only around potentially-blocking child-cursor
// close operations."
func (t *Tree) RLock()   { t.mu.RLock() }
func (t *Tree) RUnlock() { t.mu.RUnlock() }
func (t *Tree) Lock()    { t.mu.Lock() }
func (t *Tree) Unlock()  { t.mu.Unlock() }

// DskGen returns the current generation counter. Caller should hold at
// least the read lock.
func (t *Tree) DskGen() uint64 { return atomic.LoadUint64(&t.dskGen) }

// Chunks returns a snapshot slice of the current chunk array. Caller should
// hold at least the read lock for the duration it inspects the result.
func (t *Tree) Chunks() []*Chunk {
	out := make([]*Chunk, len(t.chunks))
	copy(out, t.chunks)
	return out
}

// NChunks returns len(chunks) under the read lock's discipline.
func (t *Tree) NChunks() int { return len(t.chunks) }

// Primary returns the newest chunk iff it is open and not on disk, else nil
// (spec.md §4.4: "The last chunk becomes primary_chunk iff it is not ONDISK
// and has switch_txn == NONE").
func (t *Tree) Primary() *Chunk {
	if len(t.chunks) == 0 {
		return nil
	}
	last := t.chunks[len(t.chunks)-1]
	if last.IsOnDisk() || !last.IsOpen() {
		return nil
	}
	return last
}

// NeedSwitch reports the NEED_SWITCH flag (spec.md §3).
func (t *Tree) NeedSwitch() bool { return atomic.LoadInt32(&t.needSwitch) != 0 }

// SetNeedSwitch CASes the flag from false to true, returning whether this
// call was the one that set it (spec.md §4.5: "set NEED_SWITCH (only if not
// already set)").
func (t *Tree) SetNeedSwitch() bool {
	return atomic.CompareAndSwapInt32(&t.needSwitch, 0, 1)
}

// ClearNeedSwitch resets the flag once a switch has completed.
func (t *Tree) ClearNeedSwitch() { atomic.StoreInt32(&t.needSwitch, 0) }

// bumpDskGen advances the generation counter. Caller must hold the write
// lock: every reshape of the chunk array bumps it exactly once.
func (t *Tree) bumpDskGen() { atomic.AddUint64(&t.dskGen, 1) }

// AppendSwitch seals the current primary (if any) at txn and appends a new
// open chunk, the shape change a SWITCH work item performs. Caller must not
// hold any lock; AppendSwitch takes the write lock itself.
func (t *Tree) AppendSwitch(txn interfaces.SnapshotID, next *Chunk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p := t.Primary(); p != nil {
		p.SwitchTxn = txn
	}
	t.chunks = append(t.chunks, next)
	t.bumpDskGen()
	t.ClearNeedSwitch()
}

// ReplaceChunks installs a merged chunk array, the shape change a merge
// work item performs. Caller must not hold any lock.
func (t *Tree) ReplaceChunks(next []*Chunk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chunks = next
	t.bumpDskGen()
}
