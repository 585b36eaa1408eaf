package storage

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/dsnet/golib/memfile"
	"github.com/ryogrid/pagekv/interfaces"
	"github.com/ryogrid/pagekv/pkgerr"
)

// lengthPrefixSize is the size of the record-length prefix MemBlockManager
// writes before every image.
const lengthPrefixSize = 4

// MemBlockManager is an in-memory interfaces.BlockManager backed by
// memfile, used for ephemeral primary chunks whose pages never need to
// survive a process restart (wired per SPEC_FULL.md §C: "the domain
// dependency the pack's go.mod declares but never imports").
type MemBlockManager struct {
	mu   sync.Mutex
	file *memfile.File
	next int64
}

// NewMemBlockManager builds an empty in-memory block manager.
func NewMemBlockManager() *MemBlockManager {
	return &MemBlockManager{file: memfile.New(nil), next: 1}
}

// Read implements interfaces.BlockManager.
func (m *MemBlockManager) Read(ctx context.Context, addr interfaces.Addr) ([]byte, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lenBuf [lengthPrefixSize]byte
	if _, err := m.file.ReadAt(lenBuf[:], int64(addr)); err != nil {
		return nil, 0, pkgerr.Wrap("MemBlockManager.Read", pkgerr.IO, err)
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, size)
	if size > 0 {
		if _, err := m.file.ReadAt(buf, int64(addr)+lengthPrefixSize); err != nil {
			return nil, 0, pkgerr.Wrap("MemBlockManager.Read", pkgerr.IO, err)
		}
	}
	return buf, size, nil
}

// Write implements interfaces.BlockManager. addr == 0 allocates a fresh
// address at the end of the backing file.
func (m *MemBlockManager) Write(ctx context.Context, addr interfaces.Addr, image []byte) (interfaces.Addr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := int64(addr)
	if at == 0 {
		at = m.next
		m.next += int64(lengthPrefixSize + len(image))
	}

	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(image)))
	if _, err := m.file.WriteAt(lenBuf[:], at); err != nil {
		return 0, pkgerr.Wrap("MemBlockManager.Write", pkgerr.IO, err)
	}
	if len(image) > 0 {
		if _, err := m.file.WriteAt(image, at+lengthPrefixSize); err != nil {
			return 0, pkgerr.Wrap("MemBlockManager.Write", pkgerr.IO, err)
		}
	}
	return interfaces.Addr(at), nil
}

// Free implements interfaces.BlockManager. The in-memory backing store is
// discarded wholesale when the chunk is dropped, so there is no freelist
// to maintain here.
func (m *MemBlockManager) Free(ctx context.Context, addr interfaces.Addr) error { return nil }
