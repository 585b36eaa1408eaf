package lsm

import (
	"context"
	"time"

	"github.com/ryogrid/pagekv/interfaces"
)

// Enter is called on every public cursor operation (spec.md §4.5). reset
// resets positioned child cursors; update additionally runs the autocommit
// check, txn-id acquisition, and write-admission protocol.
func (c *Cursor) Enter(ctx context.Context, reset bool, update bool) error {
	if c.Mode&MergeMode != 0 {
		return nil
	}
	if reset {
		c.resetChildren(ctx)
	}

	for {
		if c.dskGen < 0 || uint64(c.dskGen) != c.Tree.DskGen() || len(c.children) == 0 {
			if err := c.Open(ctx, update); err != nil {
				return err
			}
		}

		if update {
			if c.Txn != nil {
				if err := c.Txn.AutocommitCheck(ctx); err != nil {
					return err
				}
				id, err := c.Txn.TxnIDCheck(ctx)
				if err != nil {
					return err
				}
				c.TxnID = id
			}
			if err := c.admitWrite(ctx); err != nil {
				return err
			}
			if uint64(c.dskGen) != c.Tree.DskGen() {
				if err := c.Open(ctx, update); err != nil {
					return err
				}
			}
		}

		if c.Mode&OpenSnapshot != 0 {
			if c.Txn != nil {
				c.Snap = c.Txn.CurrentSnapshot(ctx)
			}
			c.extendNupdatesForSnapshot()
		}

		upToDate := uint64(c.dskGen) == c.Tree.DskGen() && len(c.children) > 0
		if !upToDate {
			continue
		}
		if update && c.primaryIdx < 0 {
			// write-admission above guarantees a primary exists by the time
			// it returns; one more reopen picks it up.
			continue
		}
		if !update && c.Mode&OpenRead == 0 {
			continue
		}
		return nil
	}
}

// resetChildren resets every positioned child cursor (spec.md §4.5 step 2).
func (c *Cursor) resetChildren(ctx context.Context) {
	for _, ch := range c.children {
		if ch == nil || ch.cursor == nil || !ch.positioned {
			continue
		}
		_ = ch.cursor.Reset(ctx)
		ch.positioned = false
		ch.key, ch.value = nil, nil
	}
	c.current = -1
}

// extendNupdatesForSnapshot walks the tail past the conflict-check window,
// pulling in any chunk whose switch_txn is older than the session's
// snapshot minimum (spec.md §4.5): "these must be read from for conflict
// checking even though they appear sealed."
func (c *Cursor) extendNupdatesForSnapshot() {
	n := len(c.children)
	for n-c.nupdates-1 >= 0 {
		idx := n - c.nupdates - 1
		ch := c.children[idx]
		if ch == nil || ch.chunk == nil {
			break
		}
		sw := ch.chunk.SwitchTxn
		if sw != SwitchTxnNone && sw < c.Snap.SnapMin {
			c.nupdates++
			continue
		}
		break
	}
}

// admitWrite is write-admission (spec.md §4.5).
func (c *Cursor) admitWrite(ctx context.Context) error {
	tree := c.Tree
	primary := tree.Primary()
	if primary != nil {
		var size uint64
		if primary.Probe != nil {
			size = primary.Probe.MemoryBytes(ctx)
		}
		softThreshold := tree.ChunkSize
		hardThreshold := tree.ChunkSize * 2
		threshold := softThreshold
		if tree.NeedSwitch() {
			threshold = hardThreshold
		}
		if size < threshold {
			return nil
		}
		if tree.SetNeedSwitch() && c.Worker != nil {
			_ = c.Worker.Enqueue(interfaces.WorkSwitch, 0, tree)
		}
		if size < hardThreshold {
			// Past the soft limit with a primary: proceed.
			return nil
		}
		// Past the hard limit even with a primary: fall through to spin.
	}
	return c.spinUntilChunkExists(ctx, tree)
}

// spinUntilChunkExists is write-admission's no-primary / hard-limit branch
// (spec.md §4.5, §8 boundary case "an LSM with zero chunks").
func (c *Cursor) spinUntilChunkExists(ctx context.Context, tree *Tree) error {
	startGen := tree.DskGen()
	spins := 0
	for {
		if tree.NChunks() > 0 && tree.DskGen() != startGen {
			return nil
		}
		spins++
		if spins%1000 == 0 {
			if tree.SetNeedSwitch() && c.Worker != nil {
				_ = c.Worker.Enqueue(interfaces.WorkSwitch, 0, tree)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Microsecond):
		}
	}
}
