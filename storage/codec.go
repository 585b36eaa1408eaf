// Package storage provides reference implementations of the collaborators
// spec.md §6 declares out of scope for the core: the cell codec, the block
// manager (in-memory and on-disk), the transaction manager, the cache
// accountant, the Bloom filter library, the schema registry/checkpointer,
// and the background LSM worker. None of these are part of the PMRC/LMC
// core itself; they exist so the core in packages page and lsm has
// something concrete to run against.
package storage

import (
	"encoding/binary"

	"github.com/ryogrid/pagekv/interfaces"
	"github.com/ryogrid/pagekv/pkgerr"
)

// headerSize is the fixed on-disk page header length this codec uses: type
// (1) + entry count (4) + starting recno (8) + flags (1).
const headerSize = 1 + 4 + 8 + 1

// Codec is the reference interfaces.CellCodec. Every cell shares one
// uniform varint framing (type, rle, prefix length, record number, value
// length, value bytes) regardless of cell type, generalized from the
// teacher's fixed-width Slot framing
// (_examples/hmarui66-blink-tree-go/page.go SetKeyOffset/KeyOffset) to the
// variable per-cell metadata spec.md's materializer needs (rle, prefix,
// recno).
type Codec struct{}

// NewCodec returns the reference cell codec.
func NewCodec() *Codec { return &Codec{} }

// HeaderSize implements interfaces.CellCodec.
func (Codec) HeaderSize() int { return headerSize }

// UnpackHeader implements interfaces.CellCodec.
func (Codec) UnpackHeader(image []byte) (interfaces.Header, error) {
	if len(image) < headerSize {
		return interfaces.Header{}, pkgerr.New("Codec.UnpackHeader", pkgerr.IO)
	}
	return interfaces.Header{
		Type:    interfaces.PhysicalType(image[0]),
		Entries: binary.BigEndian.Uint32(image[1:5]),
		RecNo:   binary.BigEndian.Uint64(image[5:13]),
		Flags:   interfaces.HeaderFlags(image[13]),
	}, nil
}

// PackHeader is the codec's write-side counterpart, used by tests and by
// any writer that builds a page image (not part of interfaces.CellCodec,
// since the core never constructs images itself).
func PackHeader(hdr interfaces.Header) []byte {
	buf := make([]byte, headerSize)
	buf[0] = byte(hdr.Type)
	binary.BigEndian.PutUint32(buf[1:5], hdr.Entries)
	binary.BigEndian.PutUint64(buf[5:13], hdr.RecNo)
	buf[13] = byte(hdr.Flags)
	return buf
}

func readUvarint(b []byte) (uint64, int) { return binary.Uvarint(b) }

// Cells implements interfaces.CellCodec. It slices image's cell region,
// starting just past the header, into count framed cells in page order.
func (Codec) Cells(image []byte, count uint32) ([][]byte, error) {
	off := headerSize
	out := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if off >= len(image) {
			return nil, pkgerr.New("Codec.Cells", pkgerr.IO)
		}
		start := off
		off++ // type byte
		for f := 0; f < 3; f++ { // rle, prefix, recno
			_, n := readUvarint(image[off:])
			if n <= 0 {
				return nil, pkgerr.New("Codec.Cells", pkgerr.IO)
			}
			off += n
		}
		vlen, n := readUvarint(image[off:])
		if n <= 0 {
			return nil, pkgerr.New("Codec.Cells", pkgerr.IO)
		}
		off += n
		end := off + int(vlen)
		if end > len(image) {
			return nil, pkgerr.New("Codec.Cells", pkgerr.IO)
		}
		out = append(out, image[start:end])
		off = end
	}
	return out, nil
}

// Unpack implements interfaces.CellCodec.
func (Codec) Unpack(cell []byte) (interfaces.UnpackedCell, error) {
	if len(cell) < 1 {
		return interfaces.UnpackedCell{}, pkgerr.New("Codec.Unpack", pkgerr.IO)
	}
	typ := interfaces.CellType(cell[0])
	off := 1

	rle, n := readUvarint(cell[off:])
	if n <= 0 {
		return interfaces.UnpackedCell{}, pkgerr.New("Codec.Unpack", pkgerr.IO)
	}
	off += n

	prefix, n := readUvarint(cell[off:])
	if n <= 0 {
		return interfaces.UnpackedCell{}, pkgerr.New("Codec.Unpack", pkgerr.IO)
	}
	off += n

	recno, n := readUvarint(cell[off:])
	if n <= 0 {
		return interfaces.UnpackedCell{}, pkgerr.New("Codec.Unpack", pkgerr.IO)
	}
	off += n

	vlen, n := readUvarint(cell[off:])
	if n <= 0 {
		return interfaces.UnpackedCell{}, pkgerr.New("Codec.Unpack", pkgerr.IO)
	}
	off += n

	if off+int(vlen) > len(cell) {
		return interfaces.UnpackedCell{}, pkgerr.New("Codec.Unpack", pkgerr.IO)
	}

	return interfaces.UnpackedCell{
		Type:       typ,
		Value:      cell[off : off+int(vlen)],
		RLE:        rle,
		PrefixLen:  uint32(prefix),
		RecordNo:   recno,
		IsOverflow: typ == interfaces.CellKeyOverflow || typ == interfaces.CellValueOverflow,
	}, nil
}

// RLE implements interfaces.CellCodec; a cell with no recorded run is a
// run of one.
func (Codec) RLE(u interfaces.UnpackedCell) uint64 {
	if u.RLE == 0 {
		return 1
	}
	return u.RLE
}

// PackCell is the write-side counterpart to Unpack, used by tests building
// synthetic page images.
func PackCell(typ interfaces.CellType, value []byte, rle uint64, prefix uint32, recno uint64) []byte {
	buf := make([]byte, 0, len(value)+1+4*binary.MaxVarintLen64)
	buf = append(buf, byte(typ))
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], rle)
	buf = append(buf, tmp[:n]...)
	n = binary.PutUvarint(tmp[:], uint64(prefix))
	buf = append(buf, tmp[:n]...)
	n = binary.PutUvarint(tmp[:], recno)
	buf = append(buf, tmp[:n]...)
	n = binary.PutUvarint(tmp[:], uint64(len(value)))
	buf = append(buf, tmp[:n]...)
	buf = append(buf, value...)
	return buf
}
