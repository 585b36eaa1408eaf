package lsm

import (
	"bytes"
	"context"

	"github.com/ryogrid/pagekv/pkgerr"
)

func compareKeys(a, b []byte) int { return bytes.Compare(a, b) }

// getCurrent implements the `smallest`/`largest` get_current helper
// (spec.md §4.5): it scans every positioned child, picks the extremum
// under the collator, and sets Multiple iff two or more children tie.
func (c *Cursor) getCurrent(smallest bool) (bool, error) {
	best := -1
	c.Dir &^= Multiple
	for i, ch := range c.children {
		if ch == nil || !ch.positioned {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		cmp := compareKeys(ch.key, c.children[best].key)
		if smallest {
			switch {
			case cmp < 0:
				best = i
				c.Dir &^= Multiple
			case cmp == 0:
				c.Dir |= Multiple
			}
		} else {
			switch {
			case cmp > 0:
				best = i
				c.Dir &^= Multiple
			case cmp == 0:
				c.Dir |= Multiple
			}
		}
	}
	if best == -1 {
		c.current = -1
		c.key, c.value = nil, nil
		return false, nil
	}
	c.current = best
	c.key = c.children[best].key
	c.value = c.children[best].value
	return true, nil
}

// primeForward positions every child relative to the LMC's last known key
// before resuming forward iteration, the priming step of next()
// (spec.md §4.5). Children already at or past the key are left as-is;
// children that would tie or lag are advanced past it, since a tie means
// the key was the one already returned to the caller.
func (c *Cursor) primeForward(ctx context.Context) error {
	for _, ch := range c.children {
		if ch == nil || ch.cursor == nil {
			continue
		}
		if c.key == nil {
			// Starting a fresh scan: the underlying cursor may still be
			// sitting wherever a prior lookup left it, so reset it before
			// asking for the first element.
			if err := ch.cursor.Reset(ctx); err != nil {
				return err
			}
			ok, k, v, err := ch.cursor.Next(ctx)
			if err != nil {
				return err
			}
			ch.positioned = ok
			if ok {
				ch.key, ch.value = k, v
			}
			continue
		}
		cmp, k, v, err := ch.cursor.SearchNear(ctx, c.key)
		if err != nil {
			if pkgerr.Is(err, pkgerr.NotFound) {
				ch.positioned = false
				continue
			}
			return err
		}
		ch.key, ch.value, ch.positioned = k, v, true
		if cmp <= 0 {
			ok, k2, v2, err := ch.cursor.Next(ctx)
			if err != nil {
				return err
			}
			ch.positioned = ok
			if ok {
				ch.key, ch.value = k2, v2
			}
		}
	}
	return nil
}

// primeBackward is primeForward's mirror for prev().
func (c *Cursor) primeBackward(ctx context.Context) error {
	for _, ch := range c.children {
		if ch == nil || ch.cursor == nil {
			continue
		}
		if c.key == nil {
			if err := ch.cursor.Reset(ctx); err != nil {
				return err
			}
			ok, k, v, err := ch.cursor.Prev(ctx)
			if err != nil {
				return err
			}
			ch.positioned = ok
			if ok {
				ch.key, ch.value = k, v
			}
			continue
		}
		cmp, k, v, err := ch.cursor.SearchNear(ctx, c.key)
		if err != nil {
			if pkgerr.Is(err, pkgerr.NotFound) {
				ch.positioned = false
				continue
			}
			return err
		}
		ch.key, ch.value, ch.positioned = k, v, true
		if cmp >= 0 {
			ok, k2, v2, err := ch.cursor.Prev(ctx)
			if err != nil {
				return err
			}
			ch.positioned = ok
			if ok {
				ch.key, ch.value = k2, v2
			}
		}
	}
	return nil
}

// advanceTies advances every child currently tied with c.current, then
// advances current itself (spec.md §4.5: "if MULTIPLE, advance every child
// that currently ties with current; then advance current itself").
func (c *Cursor) advanceTies(ctx context.Context, forward bool) error {
	if c.current < 0 {
		return nil
	}
	key := c.key
	if c.Dir&Multiple != 0 {
		for i, ch := range c.children {
			if ch == nil || !ch.positioned || i == c.current {
				continue
			}
			if !bytes.Equal(ch.key, key) {
				continue
			}
			if err := c.advanceOne(ctx, ch, forward); err != nil {
				return err
			}
		}
	}
	return c.advanceOne(ctx, c.children[c.current], forward)
}

func (c *Cursor) advanceOne(ctx context.Context, ch *child, forward bool) error {
	var ok bool
	var k, v []byte
	var err error
	if forward {
		ok, k, v, err = ch.cursor.Next(ctx)
	} else {
		ok, k, v, err = ch.cursor.Prev(ctx)
	}
	if err != nil {
		return err
	}
	ch.positioned = ok
	if ok {
		ch.key, ch.value = k, v
	}
	return nil
}

// Next implements next() (spec.md §4.5).
func (c *Cursor) Next(ctx context.Context) (bool, error) {
	if err := c.Enter(ctx, false, false); err != nil {
		return false, err
	}
	for {
		if c.current < 0 || c.Dir&IterateNext == 0 {
			if err := c.primeForward(ctx); err != nil {
				return false, err
			}
		} else {
			if err := c.advanceTies(ctx, true); err != nil {
				return false, err
			}
		}
		c.Dir |= IterateNext
		c.Dir &^= IteratePrev

		ok, err := c.getCurrent(true)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if IsTombstone(c.value) && c.Mode&MinorMerge == 0 {
			continue
		}
		c.value = decodeValue(c.value)
		return true, nil
	}
}

// Prev implements prev() (spec.md §4.5), symmetric to Next.
func (c *Cursor) Prev(ctx context.Context) (bool, error) {
	if err := c.Enter(ctx, false, false); err != nil {
		return false, err
	}
	for {
		if c.current < 0 || c.Dir&IteratePrev == 0 {
			if err := c.primeBackward(ctx); err != nil {
				return false, err
			}
		} else {
			if err := c.advanceTies(ctx, false); err != nil {
				return false, err
			}
		}
		c.Dir |= IteratePrev
		c.Dir &^= IterateNext

		ok, err := c.getCurrent(false)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if IsTombstone(c.value) && c.Mode&MinorMerge == 0 {
			continue
		}
		c.value = decodeValue(c.value)
		return true, nil
	}
}

// Search implements search() (spec.md §4.5): Enter(reset=1, update=0) then
// lookup(&value).
func (c *Cursor) Search(ctx context.Context, key []byte) (bool, []byte, error) {
	c.key = key
	if err := c.Enter(ctx, true, false); err != nil {
		return false, nil, err
	}
	return c.lookup(ctx)
}

// lookup implements lookup(out_value) (spec.md §4.5): newest-to-oldest scan
// with Bloom-filter short-circuiting and delete masking.
func (c *Cursor) lookup(ctx context.Context) (bool, []byte, error) {
	var hash uint64
	var hashed bool
	for i := len(c.children) - 1; i >= 0; i-- {
		ch := c.children[i]
		if ch == nil || ch.cursor == nil {
			continue
		}
		if ch.bloom != nil {
			if !hashed {
				hash = ch.bloom.Hash(c.key)
				hashed = true
			}
			if !ch.bloom.HashGet(hash) {
				c.Stats.BloomMiss++
				continue
			}
		}
		ok, v, err := ch.cursor.Search(ctx, c.key)
		if err != nil {
			return false, nil, err
		}
		if !ok {
			if ch.bloom != nil {
				c.Stats.BloomFalsePos++
			} else {
				c.Stats.LookupNoBloom++
			}
			continue
		}
		if IsTombstone(v) {
			// The key was deleted in a newer chunk; older chunks must not
			// be consulted (this is how LSM achieves delete semantics
			// without physical removal).
			return false, nil, pkgerr.New("lookup", pkgerr.NotFound)
		}
		return true, decodeValue(v), nil
	}
	return false, nil, pkgerr.New("lookup", pkgerr.NotFound)
}

// SearchNear implements search_near(&exact) (spec.md §4.5).
func (c *Cursor) SearchNear(ctx context.Context, key []byte) (int, []byte, []byte, error) {
	c.key = key
	if err := c.Enter(ctx, true, false); err != nil {
		return 0, nil, nil, err
	}

	exactIdx := -1
	var fallbackKey, fallbackValue []byte
	haveFallback := false
	for i, ch := range c.children {
		if ch == nil || ch.cursor == nil {
			continue
		}
		cmp, k, v, err := ch.cursor.SearchNear(ctx, key)
		if err != nil {
			ch.positioned = false
			continue
		}
		if cmp == 0 {
			ch.key, ch.value, ch.positioned = k, v, true
			exactIdx = i
			break
		}
		if cmp > 0 {
			ch.key, ch.value, ch.positioned = k, v, true
			continue
		}
		// cmp < 0: k is this child's largest key below key. Keep it as a
		// fallback in case no child has anything at or above key, then try
		// to advance past it to get an actual >= candidate from this child.
		if !haveFallback || compareKeys(k, fallbackKey) > 0 {
			fallbackKey, fallbackValue, haveFallback = k, v, true
		}
		ok, k2, v2, err := ch.cursor.Next(ctx)
		if err != nil {
			return 0, nil, nil, err
		}
		ch.positioned = ok
		if ok {
			ch.key, ch.value = k2, v2
		}
	}

	if exactIdx >= 0 {
		c.current = exactIdx
		c.key = c.children[exactIdx].key
		c.value = c.children[exactIdx].value
	} else {
		ok, err := c.getCurrent(true)
		if err != nil {
			return 0, nil, nil, err
		}
		if !ok {
			if !haveFallback {
				return 0, nil, nil, pkgerr.New("SearchNear", pkgerr.NotFound)
			}
			c.key, c.value = fallbackKey, fallbackValue
		}
	}

	if IsTombstone(c.value) {
		if ok, err := c.Next(ctx); err == nil && ok {
			return 1, c.key, c.value, nil
		}
		if ok, err := c.Prev(ctx); err == nil && ok {
			return -1, c.key, c.value, nil
		}
		return 0, nil, nil, pkgerr.New("SearchNear", pkgerr.NotFound)
	}

	result := c.value
	c.value = decodeValue(result)
	cmp := 1
	switch {
	case bytes.Equal(c.key, key):
		cmp = 0
	case bytes.Compare(c.key, key) < 0:
		cmp = -1
	}
	return cmp, c.key, c.value, nil
}
