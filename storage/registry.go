package storage

import (
	"context"
	"sync"

	"github.com/ryogrid/pagekv/interfaces"
	"github.com/ryogrid/pagekv/pkgerr"
)

// memChunk is one chunk's in-memory backing store: a sorted slice of
// key/value pairs shared by every MemCursor opened against it.
type memChunk struct {
	mu      sync.RWMutex
	entries []kv
}

// MemoryBytes implements interfaces.MemoryProbe by summing key/value
// lengths, the stand-in for a real B-tree's in-memory footprint.
func (m *memChunk) MemoryBytes(ctx context.Context) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total uint64
	for _, e := range m.entries {
		total += uint64(len(e.key) + len(e.value))
	}
	return total
}

// handle is the reference interfaces.SchemaHandle: a resolved chunk URI.
type handle struct{ uri string }

func (h *handle) URI() string { return h.uri }

// Registry is the reference interfaces.SchemaRegistry, interfaces.CursorOpener
// and interfaces.Checkpointer: URI-keyed in-memory chunks standing in for the
// real B-tree handle table spec.md §6 declares out of scope. Grounded on the
// teacher's catalog/metadata page pattern (interfaces.ParentBufMgr's handle
// resolution), generalized from on-disk page handles to chunk URIs.
type Registry struct {
	globalMu sync.Mutex // the single schema lock spec.md §5 names
	mu       sync.RWMutex
	chunks   map[string]*memChunk
}

// NewRegistry builds an empty chunk registry.
func NewRegistry() *Registry {
	return &Registry{chunks: make(map[string]*memChunk)}
}

// Lock implements interfaces.SchemaRegistry.
func (r *Registry) Lock() { r.globalMu.Lock() }

// Unlock implements interfaces.SchemaRegistry.
func (r *Registry) Unlock() { r.globalMu.Unlock() }

func (r *Registry) chunkFor(uri string) *memChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chunks[uri]
	if !ok {
		c = &memChunk{}
		r.chunks[uri] = c
	}
	return c
}

// Resolve implements interfaces.SchemaRegistry.
func (r *Registry) Resolve(ctx context.Context, uri string) (interfaces.SchemaHandle, error) {
	r.chunkFor(uri)
	return &handle{uri: uri}, nil
}

// Probe returns the interfaces.MemoryProbe for uri, for a Chunk's Probe
// field to be wired against (lsm.Chunk.Probe).
func (r *Registry) Probe(uri string) interfaces.MemoryProbe {
	return r.chunkFor(uri)
}

// OpenCursor implements interfaces.CursorOpener, returning a live cursor
// over the chunk's shared entry slice.
func (r *Registry) OpenCursor(ctx context.Context, uri string, raw bool) (interfaces.ChildCursor, error) {
	c := r.chunkFor(uri)
	return NewMemCursor(&c.mu, &c.entries), nil
}

// OpenCheckpoint implements interfaces.Checkpointer: it snapshots the
// chunk's current entries into a frozen, independent copy so the returned
// cursor's view cannot change underneath a concurrent writer on the live
// chunk (spec.md §4.4's "served from a checkpoint" fallback).
func (r *Registry) OpenCheckpoint(ctx context.Context, chunkURI string) (interfaces.ChildCursor, error) {
	r.mu.RLock()
	c, ok := r.chunks[chunkURI]
	r.mu.RUnlock()
	if !ok {
		return nil, pkgerr.New("Registry.OpenCheckpoint", pkgerr.NotFound)
	}
	c.mu.RLock()
	frozen := append([]kv(nil), c.entries...)
	c.mu.RUnlock()
	var mu sync.RWMutex
	return NewMemCursor(&mu, &frozen), nil
}
