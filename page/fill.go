package page

import (
	"encoding/binary"

	"github.com/ryogrid/pagekv/interfaces"
	"github.com/ryogrid/pagekv/pkgerr"
)

// MaterializeFlags controls Materialize's per-type fillers (spec.md §4.1,
// §4.2's "flags" parameter threaded through from the caller).
type MaterializeFlags uint8

const (
	// TreeModified mirrors spec.md's "if the tree is marked modified":
	// row-internal ADDR_DEL cells eagerly allocate a modify record and mark
	// the page dirty only when the owning tree is already in modified state.
	TreeModified MaterializeFlags = 1 << iota
)

func decodeAddr(value []byte) interfaces.Addr {
	var buf [8]byte
	copy(buf[8-len(value):], value)
	return interfaces.Addr(binary.BigEndian.Uint64(buf[:]))
}

func fillColFixedLeaf(pg *Page, image []byte, codec interfaces.CellCodec) error {
	off := codec.HeaderSize()
	if off < 0 || off > len(image) {
		return pkgerr.New("fillColFixedLeaf", pkgerr.IO)
	}
	pg.ColFixLeaf.Bitfield = image[off:]
	return nil
}

func fillColInternal(pg *Page, image []byte, codec interfaces.CellCodec) error {
	cells, err := codec.Cells(image, pg.ColInt.Index.len())
	if err != nil {
		return pkgerr.Wrap("fillColInternal", pkgerr.IO, err)
	}
	refs := pg.ColInt.Index.Refs
	if len(cells) != len(refs) {
		return pkgerr.New("fillColInternal", pkgerr.Fatal)
	}
	for i, cell := range cells {
		u, err := codec.Unpack(cell)
		if err != nil {
			return pkgerr.Wrap("fillColInternal", pkgerr.IO, err)
		}
		r := refs[i]
		r.HomePage = pg
		r.Addr = decodeAddr(u.Value)
		r.Key.ColRecNo = u.RecordNo
	}
	return nil
}

func fillRowInternal(pg *Page, image []byte, codec interfaces.CellCodec, rawEntries uint32, flags MaterializeFlags) error {
	cells, err := codec.Cells(image, rawEntries)
	if err != nil {
		return pkgerr.Wrap("fillRowInternal", pkgerr.IO, err)
	}
	refs := pg.RowInt.Index.Refs
	slot := 0
	for _, cell := range cells {
		u, err := codec.Unpack(cell)
		if err != nil {
			return pkgerr.Wrap("fillRowInternal", pkgerr.IO, err)
		}
		if slot >= len(refs) {
			return pkgerr.New("fillRowInternal", pkgerr.Fatal)
		}
		r := refs[slot]
		r.HomePage = pg
		switch u.Type {
		case interfaces.CellKey:
			r.Key.Bytes = u.Value
			// A KEY cell sets up the current ref but does not by itself
			// consume the slot; the paired ADDR-kind cell that follows does.
			continue
		case interfaces.CellKeyOverflow:
			cp := make([]byte, len(u.Value))
			copy(cp, u.Value)
			r.overflowKey = cp
			r.Key.Bytes = cp
			continue
		case interfaces.CellAddrDeleted:
			r.Addr = decodeAddr(u.Value)
			r.state.Store(StateDeleted)
			if flags&TreeModified != 0 {
				pg.Modify = &ModifyRecord{Dirty: true}
			}
		case interfaces.CellAddrInternal, interfaces.CellAddrLeaf, interfaces.CellAddrLeafNoOverflow:
			r.Addr = decodeAddr(u.Value)
		default:
			return pkgerr.New("fillRowInternal", pkgerr.Fatal)
		}
		slot++
	}
	if slot != len(refs) {
		return pkgerr.New("fillRowInternal", pkgerr.Fatal)
	}
	return nil
}

func fillColVariableLeaf(pg *Page, image []byte, codec interfaces.CellCodec) error {
	v := pg.ColVarLeaf
	cells, err := codec.Cells(image, v.NumEntries)
	if err != nil {
		return pkgerr.Wrap("fillColVariableLeaf", pkgerr.IO, err)
	}
	unpacked := make([]interfaces.UnpackedCell, len(cells))
	nRepeats := 0
	for i, cell := range cells {
		u, err := codec.Unpack(cell)
		if err != nil {
			return pkgerr.Wrap("fillColVariableLeaf", pkgerr.IO, err)
		}
		unpacked[i] = u
		if codec.RLE(u) > 1 {
			nRepeats++
		}
	}

	recno := v.StartRecNoOrZero()
	if nRepeats > 0 {
		// Allocate the repeat table at exact size (n_repeats+1), the "+1"
		// slot closing the final run so lookups can binary-search a
		// half-open range (spec.md §4.1).
		v.Repeats = make([]RepeatEntry, 0, nRepeats+1)
	}

	for i, u := range unpacked {
		v.CellOffsets[i] = offsetOf(image, cells[i], codec)
		rle := codec.RLE(u)
		if rle > 1 {
			v.Repeats = append(v.Repeats, RepeatEntry{Index: uint32(i), StartRecNo: recno, RunLength: rle})
		}
		recno += rle
	}
	if nRepeats > 0 {
		v.Repeats = append(v.Repeats, RepeatEntry{Index: uint32(len(cells)), StartRecNo: recno, RunLength: 0})
	}
	return nil
}

func (v *ColVariableLeaf) StartRecNoOrZero() uint64 { return 0 }

func offsetOf(image, cell []byte, _ interfaces.CellCodec) uint32 {
	// Cells returned by codec.Cells alias image's backing array; the
	// page-relative offset is the pointer delta into that array.
	return uint32(cap(image) - cap(cell))
}

func fillRowLeaf(pg *Page, image []byte, codec interfaces.CellCodec) error {
	rl := pg.RowLeafPg
	hdr, err := codec.UnpackHeader(image)
	if err != nil {
		return pkgerr.Wrap("fillRowLeaf", pkgerr.IO, err)
	}
	cells, err := codec.Cells(image, hdr.Entries)
	if err != nil {
		return pkgerr.Wrap("fillRowLeaf", pkgerr.IO, err)
	}
	slot := -1
	for _, cell := range cells {
		u, err := codec.Unpack(cell)
		if err != nil {
			return pkgerr.Wrap("fillRowLeaf", pkgerr.IO, err)
		}
		switch u.Type {
		case interfaces.CellKeyOverflow:
			slot++
			if slot >= len(rl.Slots) {
				return pkgerr.New("fillRowLeaf", pkgerr.Fatal)
			}
			cp := make([]byte, len(u.Value))
			copy(cp, u.Value)
			rl.Slots[slot] = RowSlot{Tag: KeyCell, Key: cp}
		case interfaces.CellKey:
			slot++
			if slot >= len(rl.Slots) {
				return pkgerr.New("fillRowLeaf", pkgerr.Fatal)
			}
			tag := KeyCell
			if u.PrefixLen == 0 {
				tag = KeyOnPage
			}
			rl.Slots[slot] = RowSlot{Tag: tag, Key: u.Value}
		case interfaces.CellValue:
			if slot < 0 || slot >= len(rl.Slots) {
				return pkgerr.New("fillRowLeaf", pkgerr.Fatal)
			}
			s := rl.Slots[slot]
			s.Value = u.Value
			if s.Tag == KeyOnPage {
				s.Tag = KeyValueCell
			}
			rl.Slots[slot] = s
		default:
			return pkgerr.New("fillRowLeaf", pkgerr.Fatal)
		}
	}
	return nil
}

func (idx *Index) len() uint32 { return uint32(len(idx.Refs)) }
