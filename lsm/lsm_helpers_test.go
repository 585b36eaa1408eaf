package lsm

import (
	"context"
	"sync"

	"github.com/ryogrid/pagekv/interfaces"
	"github.com/ryogrid/pagekv/page"
	"github.com/ryogrid/pagekv/storage"
)

// wiredCursor builds a Cursor against a fresh Tree with one open primary
// chunk, using the storage package's reference collaborators throughout so
// the LMC stack runs end to end without a real on-disk B-tree.
func wiredCursor(mode ModeFlags, chunkSize uint64) (*Cursor, *Tree, *storage.Registry, *storage.TxnManager) {
	reg := storage.NewRegistry()
	txn := storage.NewTxnManager(interfaces.IsolationSnapshot)
	tree := NewTree(chunkSize)
	tree.AppendSwitch(SwitchTxnNone, &Chunk{ID: 1, URI: "chunk-1", Probe: reg.Probe("chunk-1"), Config: &page.TreeConfig{MaxMemPage: 1 << 20}})

	cur := NewCursor(tree, mode)
	cur.Txn = txn
	cur.Registry = reg
	cur.Opener = reg
	cur.Checkpointer = reg
	cur.BloomOpener = storage.NewBloomOpener()
	return cur, tree, reg, txn
}

// countingOpener wraps a storage.Registry's OpenCursor so tests can observe
// how many times a given URI's underlying Search was actually invoked.
type countingOpener struct {
	*storage.Registry
	byURI map[string]*countingCursor
}

func newCountingOpener(reg *storage.Registry) *countingOpener {
	return &countingOpener{Registry: reg, byURI: make(map[string]*countingCursor)}
}

func (o *countingOpener) OpenCursor(ctx context.Context, uri string, raw bool) (interfaces.ChildCursor, error) {
	inner, err := o.Registry.OpenCursor(ctx, uri, raw)
	if err != nil {
		return nil, err
	}
	cc := &countingCursor{inner: inner}
	o.byURI[uri] = cc
	return cc, nil
}

// countingCursor wraps a storage.MemCursor (via the generic ChildCursor
// interface) to count Search calls, letting tests assert the merge view
// skipped a child entirely on a Bloom miss.
type countingCursor struct {
	mu          sync.Mutex
	inner       interfaces.ChildCursor
	searchCalls int
}

func (c *countingCursor) Search(ctx context.Context, key []byte) (bool, []byte, error) {
	c.mu.Lock()
	c.searchCalls++
	c.mu.Unlock()
	return c.inner.Search(ctx, key)
}
func (c *countingCursor) SearchNear(ctx context.Context, key []byte) (int, []byte, []byte, error) {
	return c.inner.SearchNear(ctx, key)
}
func (c *countingCursor) Next(ctx context.Context) (bool, []byte, []byte, error) { return c.inner.Next(ctx) }
func (c *countingCursor) Prev(ctx context.Context) (bool, []byte, []byte, error) { return c.inner.Prev(ctx) }
func (c *countingCursor) Insert(ctx context.Context, key, value []byte) error    { return c.inner.Insert(ctx, key, value) }
func (c *countingCursor) Update(ctx context.Context, key, value []byte) error    { return c.inner.Update(ctx, key, value) }
func (c *countingCursor) Reset(ctx context.Context) error                       { return c.inner.Reset(ctx) }
func (c *countingCursor) Close(ctx context.Context) error                       { return c.inner.Close(ctx) }
func (c *countingCursor) SetInsertHook(hook func(ctx context.Context, key, value []byte) error) {
	c.inner.SetInsertHook(hook)
}

func (c *countingCursor) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchCalls
}
