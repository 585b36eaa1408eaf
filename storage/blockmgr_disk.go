package storage

import (
	"context"
	"encoding/binary"
	"os"
	"sync"

	"github.com/ncw/directio"
	"github.com/ryogrid/pagekv/interfaces"
	"github.com/ryogrid/pagekv/pkgerr"
)

// DiskBlockManager is an O_DIRECT-backed interfaces.BlockManager for sealed
// chunks, where page images are written once and read back many times
// under memory pressure the OS page cache wouldn't relieve anyway (wired
// per SPEC_FULL.md §C).
type DiskBlockManager struct {
	mu        sync.Mutex
	file      *os.File
	blockSize int
	next      int64
}

// OpenDiskBlockManager opens (creating if necessary) path for aligned
// direct I/O.
func OpenDiskBlockManager(path string) (*DiskBlockManager, error) {
	f, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, pkgerr.Wrap("OpenDiskBlockManager", pkgerr.IO, err)
	}
	return &DiskBlockManager{file: f, blockSize: directio.BlockSize, next: int64(directio.BlockSize)}, nil
}

func (d *DiskBlockManager) alignedSize(n int) int {
	if n%d.blockSize == 0 {
		return n
	}
	return (n/d.blockSize + 1) * d.blockSize
}

// Read implements interfaces.BlockManager.
func (d *DiskBlockManager) Read(ctx context.Context, addr interfaces.Addr) ([]byte, uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	block := directio.AlignedBlock(d.blockSize)
	if _, err := d.file.ReadAt(block, int64(addr)); err != nil {
		return nil, 0, pkgerr.Wrap("DiskBlockManager.Read", pkgerr.IO, err)
	}
	size := binary.BigEndian.Uint32(block[:4])
	if int(size) <= len(block)-4 {
		return append([]byte(nil), block[4:4+size]...), size, nil
	}

	full := directio.AlignedBlock(d.alignedSize(int(size) + 4))
	if _, err := d.file.ReadAt(full, int64(addr)); err != nil {
		return nil, 0, pkgerr.Wrap("DiskBlockManager.Read", pkgerr.IO, err)
	}
	return full[4 : 4+size], size, nil
}

// Write implements interfaces.BlockManager.
func (d *DiskBlockManager) Write(ctx context.Context, addr interfaces.Addr, image []byte) (interfaces.Addr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	total := 4 + len(image)
	aligned := d.alignedSize(total)
	at := int64(addr)
	if at == 0 {
		at = d.next
		d.next += int64(aligned)
	}

	block := directio.AlignedBlock(aligned)
	binary.BigEndian.PutUint32(block[:4], uint32(len(image)))
	copy(block[4:], image)
	if _, err := d.file.WriteAt(block, at); err != nil {
		return 0, pkgerr.Wrap("DiskBlockManager.Write", pkgerr.IO, err)
	}
	return interfaces.Addr(at), nil
}

// Free implements interfaces.BlockManager. Physical block reclamation is a
// declared Non-goal; freed extents simply become dead space until the
// chunk itself is deleted.
func (d *DiskBlockManager) Free(ctx context.Context, addr interfaces.Addr) error { return nil }

// Close releases the underlying file descriptor.
func (d *DiskBlockManager) Close() error { return d.file.Close() }
