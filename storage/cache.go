package storage

import (
	"sync/atomic"

	"github.com/ryogrid/pagekv/interfaces"
)

// CacheAccountant is the reference interfaces.CacheAccountant (spec.md's
// Design Notes: "model as an explicit object passed by reference with
// atomic increment/decrement and a snapshot method").
type CacheAccountant struct {
	bytesUsed int64
	pagesUsed int64
	capacity  int64
}

// NewCacheAccountant builds an accountant with the given byte capacity.
func NewCacheAccountant(capacity int64) *CacheAccountant {
	return &CacheAccountant{capacity: capacity}
}

// AddBytes implements interfaces.CacheAccountant.
func (c *CacheAccountant) AddBytes(delta int64) { atomic.AddInt64(&c.bytesUsed, delta) }

// AddPages implements interfaces.CacheAccountant.
func (c *CacheAccountant) AddPages(delta int64) { atomic.AddInt64(&c.pagesUsed, delta) }

// Snapshot implements interfaces.CacheAccountant.
func (c *CacheAccountant) Snapshot() interfaces.CacheStats {
	return interfaces.CacheStats{
		BytesUsed: atomic.LoadInt64(&c.bytesUsed),
		PagesUsed: atomic.LoadInt64(&c.pagesUsed),
		Capacity:  atomic.LoadInt64(&c.capacity),
	}
}

// PressureRatio implements interfaces.CacheAccountant.
func (c *CacheAccountant) PressureRatio() float64 {
	capacity := atomic.LoadInt64(&c.capacity)
	if capacity <= 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&c.bytesUsed)) / float64(capacity)
}
