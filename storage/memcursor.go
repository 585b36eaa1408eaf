package storage

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ryogrid/pagekv/pkgerr"
)

type kv struct{ key, value []byte }

// MemCursor is a minimal ordered interfaces.ChildCursor over a sorted
// key/value slice shared by a memChunk, sufficient to exercise the LMC
// merge-view cursor end to end. Grounded on the teacher's index-position
// iteration idiom (RangeScan/GetRangeItr, bltree.go), generalized from
// walking one physical page's slots to walking one in-memory chunk's
// sorted entries.
type MemCursor struct {
	mu      *sync.RWMutex
	entries *[]kv
	pos     int // meaningful only when !unset
	unset   bool
	hook    func(ctx context.Context, key, value []byte) error
}

// NewMemCursor builds a cursor sharing mu/entries with its owning chunk.
func NewMemCursor(mu *sync.RWMutex, entries *[]kv) *MemCursor {
	return &MemCursor{mu: mu, entries: entries, unset: true}
}

func (c *MemCursor) find(es []kv, key []byte) int {
	return sort.Search(len(es), func(i int) bool { return bytes.Compare(es[i].key, key) >= 0 })
}

// Search implements interfaces.ChildCursor.
func (c *MemCursor) Search(ctx context.Context, key []byte) (bool, []byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	es := *c.entries
	i := c.find(es, key)
	if i < len(es) && bytes.Equal(es[i].key, key) {
		c.pos, c.unset = i, false
		return true, append([]byte(nil), es[i].value...), nil
	}
	return false, nil, pkgerr.New("MemCursor.Search", pkgerr.NotFound)
}

// SearchNear implements interfaces.ChildCursor.
func (c *MemCursor) SearchNear(ctx context.Context, key []byte) (int, []byte, []byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	es := *c.entries
	i := c.find(es, key)
	switch {
	case i < len(es) && bytes.Equal(es[i].key, key):
		c.pos, c.unset = i, false
		return 0, es[i].key, es[i].value, nil
	case i < len(es):
		c.pos, c.unset = i, false
		return 1, es[i].key, es[i].value, nil
	case len(es) > 0:
		c.pos, c.unset = len(es)-1, false
		return -1, es[c.pos].key, es[c.pos].value, nil
	default:
		return 0, nil, nil, pkgerr.New("MemCursor.SearchNear", pkgerr.NotFound)
	}
}

// Next implements interfaces.ChildCursor. From an unset (freshly
// constructed or Reset) cursor it lands on the first entry, mirroring
// Prev's symmetric landing on the last.
func (c *MemCursor) Next(ctx context.Context) (bool, []byte, []byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	es := *c.entries
	if c.unset {
		c.pos, c.unset = -1, false
	}
	c.pos++
	if c.pos >= len(es) {
		c.pos = len(es)
		return false, nil, nil, nil
	}
	return true, es[c.pos].key, es[c.pos].value, nil
}

// Prev implements interfaces.ChildCursor.
func (c *MemCursor) Prev(ctx context.Context) (bool, []byte, []byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	es := *c.entries
	if c.unset {
		c.pos, c.unset = len(es), false
	}
	c.pos--
	if c.pos < 0 {
		c.pos = -1
		return false, nil, nil, nil
	}
	return true, es[c.pos].key, es[c.pos].value, nil
}

// Insert implements interfaces.ChildCursor, running the replaceable
// conflict-checking hook (if any) before mutating the slice.
func (c *MemCursor) Insert(ctx context.Context, key, value []byte) error {
	if c.hook != nil {
		if err := c.hook(ctx, key, value); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	es := *c.entries
	i := c.find(es, key)
	if i < len(es) && bytes.Equal(es[i].key, key) {
		es[i].value = append([]byte(nil), value...)
		return nil
	}
	es = append(es, kv{})
	copy(es[i+1:], es[i:])
	es[i] = kv{key: append([]byte(nil), key...), value: append([]byte(nil), value...)}
	*c.entries = es
	return nil
}

// Update implements interfaces.ChildCursor; this reference store keeps a
// single slot per key, so update and insert share the same code path.
func (c *MemCursor) Update(ctx context.Context, key, value []byte) error {
	return c.Insert(ctx, key, value)
}

// Reset implements interfaces.ChildCursor.
func (c *MemCursor) Reset(ctx context.Context) error {
	c.unset = true
	return nil
}

// Close implements interfaces.ChildCursor; nothing to release.
func (c *MemCursor) Close(ctx context.Context) error { return nil }

// SetInsertHook implements interfaces.ChildCursor.
func (c *MemCursor) SetInsertHook(hook func(ctx context.Context, key, value []byte) error) {
	c.hook = hook
}
