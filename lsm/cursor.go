package lsm

import (
	"context"

	"github.com/ryogrid/pagekv/interfaces"
)

// DirFlags are the LMC direction/multiplicity flags (spec.md §3).
type DirFlags uint8

const (
	IterateNext DirFlags = 1 << iota
	IteratePrev
	Multiple
)

// ModeFlags are the LMC mode flags (spec.md §3).
type ModeFlags uint8

const (
	OpenRead ModeFlags = 1 << iota
	OpenSnapshot
	MergeMode
	MinorMerge
	Active
)

// child is one chunk cursor slot of an LMC Cursor (spec.md §3: "an array of
// chunk cursors... a parallel array of Bloom handles... a parallel array of
// each chunk's observed switch_txn").
type child struct {
	chunk     *Chunk
	cursor    interfaces.ChildCursor
	bloom     interfaces.BloomFilter
	switchTxn interfaces.SnapshotID
	uri       string

	key, value []byte
	positioned bool
}

// Stats accumulates the counters spec.md §8 scenario 3 and §4.5 `lookup`
// name: bloom_miss, bloom_false_positive, lsm_lookup_no_bloom.
type Stats struct {
	BloomMiss         uint64
	BloomFalsePos     uint64
	LookupNoBloom     uint64
	MergeThrottleUsec int64
	CkptThrottleUsec  int64
}

// Cursor is the per-session LMC cursor (spec.md §3).
type Cursor struct {
	Tree *Tree

	dskGen int64 // -1 means never synchronized

	children   []*child
	primaryIdx int // index into children, -1 if none
	current    int // index into children, -1 if none

	nupdates int

	Dir  DirFlags
	Mode ModeFlags

	// Overwrite mirrors the cursor-level OVERWRITE config spec.md §4.6
	// checks before insert/update/remove; it is a per-cursor setting, not
	// one of the LMC mode flags enumerated in spec.md §3.
	Overwrite bool

	key, value []byte

	TxnID interfaces.SnapshotID
	Snap  interfaces.Snapshot

	Txn          interfaces.TxnManager
	Registry     interfaces.SchemaRegistry
	Checkpointer interfaces.Checkpointer
	Opener       interfaces.CursorOpener
	BloomOpener  interfaces.BloomOpener
	Worker       interfaces.LSMWorker

	Stats Stats

	writeCount   int
	primaryCount int
}

// NewCursor builds an unsynchronized cursor bound to tree. Collaborators
// (Txn, Registry, Checkpointer, Opener, BloomOpener, Worker) must be set by
// the caller before the first Enter.
func NewCursor(tree *Tree, mode ModeFlags) *Cursor {
	return &Cursor{
		Tree:       tree,
		dskGen:     -1,
		primaryIdx: -1,
		current:    -1,
		Mode:       mode,
	}
}

// Key/Value return the cursor's current merged position.
func (c *Cursor) Key() []byte   { return c.key }
func (c *Cursor) Value() []byte { return c.value }

// Close releases every child cursor and Bloom handle the session holds.
func (c *Cursor) Close(ctx context.Context) error {
	return closeRange(ctx, c, 0, len(c.children))
}
