package lsm

import (
	"context"
	"time"

	"github.com/ryogrid/pagekv/pkgerr"
)

// throttleCheckInterval is spec.md §4.6's "every 100 primary inserts or
// every 100 writes cursor-wide" throttle sampling cadence.
const throttleCheckInterval = 100

// Put implements put(key, value, position) (spec.md §4.6).
func (c *Cursor) Put(ctx context.Context, key, value []byte, position bool) error {
	if err := c.Enter(ctx, false, true); err != nil {
		return err
	}
	if c.primaryIdx < 0 {
		return pkgerr.New("Put", pkgerr.Fatal)
	}
	primary := c.children[c.primaryIdx]
	if primary.chunk.SwitchTxn != SwitchTxnNone && primary.chunk.SwitchTxn <= c.TxnID {
		return pkgerr.New("Put", pkgerr.Restart)
	}

	for i, ch := range c.children {
		if i == c.primaryIdx || ch == nil || ch.cursor == nil {
			continue
		}
		_ = ch.cursor.Reset(ctx)
		ch.positioned = false
	}
	if position {
		c.current = c.primaryIdx
	}

	for step := 0; step < c.nupdates; step++ {
		slot := c.primaryIdx - step
		if slot < 0 {
			break
		}
		ch := c.children[slot]
		if ch == nil || ch.cursor == nil {
			continue
		}
		if step > 0 && c.Txn != nil && ch.chunk.SwitchTxn != SwitchTxnNone && c.Txn.VisibleToAll(ctx, ch.chunk.SwitchTxn) {
			// This chunk's switch point has already committed and nothing
			// can see before it; no need to touch it for conflict
			// detection (spec.md §4.6).
			c.nupdates = step
			break
		}

		var err error
		if step == 0 && position {
			err = ch.cursor.Update(ctx, key, value)
		} else {
			err = ch.cursor.Insert(ctx, key, value)
		}
		if err != nil {
			return err
		}
		c.writeCount++
	}

	c.primaryCount++
	return c.maybeThrottle(ctx)
}

// maybeThrottle implements the write-side throttle (spec.md §4.6): "This is
// the sole mechanism by which foreground writers pay for background work."
func (c *Cursor) maybeThrottle(ctx context.Context) error {
	if c.primaryCount%throttleCheckInterval != 0 && c.writeCount%throttleCheckInterval != 0 {
		return nil
	}
	total := c.Stats.MergeThrottleUsec + c.Stats.CkptThrottleUsec
	if total <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(total) * time.Microsecond):
		return nil
	}
}

// lookupForWrite enters in update mode and calls lookup directly rather
// than the public Search, so the write-sized nupdates/ngood this call
// establishes is what the following Put observes, instead of the
// read-only sizing a public Search would leave behind (spec.md §4.6:
// insert/update/remove "call lookup", not search).
func (c *Cursor) lookupForWrite(ctx context.Context, key []byte) (bool, []byte, error) {
	c.key = key
	if err := c.Enter(ctx, true, true); err != nil {
		return false, nil, err
	}
	return c.lookup(ctx)
}

// Insert implements insert(k,v) (spec.md §4.6).
func (c *Cursor) Insert(ctx context.Context, key, value []byte) error {
	if !c.Overwrite {
		if _, _, err := c.lookupForWrite(ctx, key); err == nil {
			return pkgerr.New("Insert", pkgerr.DuplicateKey)
		} else if !pkgerr.Is(err, pkgerr.NotFound) {
			return err
		}
	}
	return c.Put(ctx, key, encodeValue(value), false)
}

// Update implements update(k,v) (spec.md §4.6).
func (c *Cursor) Update(ctx context.Context, key, value []byte) error {
	if !c.Overwrite {
		if _, _, err := c.lookupForWrite(ctx, key); err != nil {
			return err
		}
	}
	return c.Put(ctx, key, encodeValue(value), true)
}

// Remove implements remove(k) (spec.md §4.6).
func (c *Cursor) Remove(ctx context.Context, key []byte) error {
	if !c.Overwrite {
		if _, _, err := c.lookupForWrite(ctx, key); err != nil {
			return err
		}
	}
	return c.Put(ctx, key, Tombstone, true)
}
