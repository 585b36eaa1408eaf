package lsm

import (
	"context"

	"github.com/ryogrid/pagekv/interfaces"
	"github.com/ryogrid/pagekv/pkgerr"
)

// Open is C4's open() (spec.md §4.4). updateMode selects the write-path
// sizing rules; read paths pass false. Acquires and releases the tree's
// read lock itself, dropping it only around the potentially-blocking
// close-range step.
func (c *Cursor) Open(ctx context.Context, updateMode bool) error {
	c.Registry.Lock()
	defer c.Registry.Unlock()

	for {
		c.Tree.RLock()
		chunks := c.Tree.Chunks()
		n := len(chunks)

		ngood, nupdates := c.planReopen(ctx, chunks, updateMode)
		ngood = c.walkGoodPrefix(chunks, ngood)

		closeStart, closeEnd := c.closeRange(n, ngood, nupdates, updateMode)

		snapshotGen := c.Tree.DskGen()
		c.Tree.RUnlock()

		if closeEnd > closeStart {
			if err := closeRange(ctx, c, closeStart, closeEnd); err != nil {
				return err
			}
		}

		c.Tree.RLock()
		if c.Tree.DskGen() != snapshotGen {
			c.Tree.RUnlock()
			continue
		}
		defer c.Tree.RUnlock()

		chunks = c.Tree.Chunks()
		n = len(chunks)
		if err := c.reallocate(n); err != nil {
			return err
		}

		for i := ngood; i < n; i++ {
			if err := c.openChild(ctx, i, chunks[i]); err != nil {
				return err
			}
		}

		c.nupdates = nupdates
		c.primaryIdx = -1
		if p := c.Tree.Primary(); p != nil {
			last := n - 1
			if chunks[last] == p {
				c.primaryIdx = last
				if p.Config != nil {
					p.Config.DisableEviction()
				}
				p.BulkLoad = false
			}
		}
		c.dskGen = int64(c.Tree.DskGen())
		return nil
	}
}

// planReopen implements the snapshot/update sizing rule (spec.md §4.4).
func (c *Cursor) planReopen(ctx context.Context, chunks []*Chunk, updateMode bool) (ngood, nupdates int) {
	n := len(chunks)
	if !updateMode {
		if c.Mode&OpenSnapshot == 0 {
			return 0, 0
		}
		return c.snapshotBoundary(ctx, chunks)
	}
	if c.Mode&OpenSnapshot != 0 {
		return c.snapshotBoundary(ctx, chunks)
	}
	if n == 0 {
		return 0, 0
	}
	return n - 1, 1
}

// snapshotBoundary scans from the newest chunk backward, stopping at the
// first chunk whose switch_txn is visible to all live transactions
// (spec.md §4.4).
func (c *Cursor) snapshotBoundary(ctx context.Context, chunks []*Chunk) (ngood, nupdates int) {
	n := len(chunks)
	for i := n - 1; i >= 0; i-- {
		sw := chunks[i].SwitchTxn
		if sw != SwitchTxnNone && c.Txn != nil && c.Txn.VisibleToAll(ctx, sw) {
			return i + 1, n - (i + 1)
		}
	}
	return 0, n
}

// walkGoodPrefix drops the first existing child cursor in [0, ngood) that
// no longer matches its chunk, per spec.md §4.4's four disqualifying
// conditions, returning the surviving prefix length.
func (c *Cursor) walkGoodPrefix(chunks []*Chunk, ngood int) int {
	for i := 0; i < ngood && i < len(c.children); i++ {
		ch := c.children[i]
		want := chunks[i]
		switch {
		case ch == nil || ch.cursor == nil:
			return i
		case ch.uri != want.URI:
			return i
		case want.IsOnDisk() && !want.Empty && ch.chunk != nil && !ch.chunk.IsOnDisk():
			return i
		case want.HasBloom() && ch.bloom == nil:
			return i
		}
	}
	if ngood > len(c.children) {
		return len(c.children)
	}
	return ngood
}

// closeRange computes [close_start, close_end) (spec.md §4.4): for reads and
// no-nupdates updates, close everything from ngood upward; for writes with
// nupdates>0, close the tail behind the conflict-check window.
func (c *Cursor) closeRange(n, ngood, nupdates int, updateMode bool) (int, int) {
	prev := len(c.children)
	if !updateMode || nupdates == 0 {
		if ngood < prev {
			return ngood, prev
		}
		return prev, prev
	}
	limit := n
	if prev < limit {
		limit = prev
	}
	end := limit - nupdates
	if end < 0 {
		end = 0
	}
	return 0, end
}

func (c *Cursor) reallocate(n int) error {
	next := make([]*child, n)
	copy(next, c.children)
	c.children = next
	return nil
}

func (c *Cursor) openChild(ctx context.Context, i int, ch *Chunk) error {
	slot := &child{chunk: ch, uri: ch.URI}

	if ch.IsOnDisk() && !ch.Empty && c.Checkpointer != nil {
		cur, err := c.Checkpointer.OpenCheckpoint(ctx, ch.URI)
		if err != nil {
			if !pkgerr.Is(err, pkgerr.NotFound) {
				return err
			}
			ch.Empty = true
		} else {
			slot.cursor = cur
		}
	}
	if slot.cursor == nil && c.Opener != nil {
		cur, err := c.Opener.OpenCursor(ctx, ch.URI, true)
		if err != nil {
			return err
		}
		slot.cursor = cur
	}

	isPrimary := i == len(c.Tree.Chunks())-1 && ch.IsOpen() && !ch.IsOnDisk()
	if !isPrimary && slot.cursor != nil {
		slot.cursor.SetInsertHook(c.conflictCheckInsert(ch, &ch.SwitchTxn))
	}

	if ch.HasBloom() && c.BloomOpener != nil && ch.BloomURI != "" {
		bf, err := c.BloomOpener.Open(ctx, ch.BloomURI)
		if err != nil {
			return err
		}
		slot.bloom = bf
	}

	slot.switchTxn = ch.SwitchTxn
	c.children[i] = slot
	return nil
}

// closeRange closes child cursors and Bloom handles in [start, end).
func closeRange(ctx context.Context, c *Cursor, start, end int) error {
	for i := start; i < end && i < len(c.children); i++ {
		ch := c.children[i]
		if ch == nil {
			continue
		}
		if ch.cursor != nil {
			if err := ch.cursor.Close(ctx); err != nil {
				return err
			}
		}
		if ch.bloom != nil {
			if err := ch.bloom.Close(); err != nil {
				return err
			}
		}
		c.children[i] = nil
	}
	return nil
}

// conflictCheckInsert is the replaceable insert hook C4 installs on every
// non-primary child cursor (spec.md §4.4, §4.6): it fails with CONFLICT when
// the chunk's switchTxn is not visible to this session's transaction. The key
// itself is not examined, so every insert into such a chunk conflicts until
// the switch transaction is visible, whether or not the key was written.
func (c *Cursor) conflictCheckInsert(ch *Chunk, switchTxn *interfaces.SnapshotID) func(context.Context, []byte, []byte) error {
	return func(ctx context.Context, key, value []byte) error {
		if c.Txn == nil {
			return nil
		}
		if !c.Txn.Visible(ctx, *switchTxn) {
			return pkgerr.New("conflictCheckInsert", pkgerr.Conflict)
		}
		return nil
	}
}
