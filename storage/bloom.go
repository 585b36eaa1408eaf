package storage

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/ryogrid/pagekv/interfaces"
	"github.com/ryogrid/pagekv/pkgerr"
)

// BloomFilter adapts bits-and-blooms/bloom/v3 to interfaces.BloomFilter
// (wired per SPEC_FULL.md §C, grounded on the bitset/bloom dependency the
// wider retrieval pack's manifests declare).
type BloomFilter struct {
	filter *bloom.BloomFilter
}

// NewBloomFilter sizes a filter for expectedItems at the given false
// positive rate.
func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	return &BloomFilter{filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate)}
}

// Add inserts key into the filter, called while sealing a chunk. It hashes
// through the same digest HashGet tests against, so membership checks never
// depend on whether the caller held the raw key or only its cached hash.
func (b *BloomFilter) Add(key []byte) {
	b.filter.Add(digestBytes(b.Hash(key)))
}

// Hash implements interfaces.BloomFilter. The digest is cached by the
// caller across children within one lookup (spec.md §4.5).
func (b *BloomFilter) Hash(key []byte) uint64 {
	h := fnv.New64a()
	h.Write(key)
	return h.Sum64()
}

// HashGet implements interfaces.BloomFilter. By construction this never
// false-negatives: a miss here means the key is definitely absent.
func (b *BloomFilter) HashGet(digest uint64) bool {
	return b.filter.Test(digestBytes(digest))
}

func digestBytes(digest uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], digest)
	return buf[:]
}

// Close implements interfaces.BloomFilter; an in-memory bitset needs no
// teardown.
func (b *BloomFilter) Close() error { return nil }

// BloomOpener is a reference interfaces.BloomOpener backed by a URI-keyed
// registry of sealed filters.
type BloomOpener struct {
	mu      sync.RWMutex
	filters map[string]*BloomFilter
}

// NewBloomOpener builds an empty Bloom filter registry.
func NewBloomOpener() *BloomOpener {
	return &BloomOpener{filters: make(map[string]*BloomFilter)}
}

// Register associates uri with a built filter, called once a chunk seal
// finishes writing its Bloom image.
func (o *BloomOpener) Register(uri string, f *BloomFilter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.filters[uri] = f
}

// Open implements interfaces.BloomOpener.
func (o *BloomOpener) Open(ctx context.Context, uri string) (interfaces.BloomFilter, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	f, ok := o.filters[uri]
	if !ok {
		return nil, pkgerr.New("BloomOpener.Open", pkgerr.NotFound)
	}
	return f, nil
}
