package lsm

// Tombstone is the distinguished stored value denoting a logical deletion
// (spec.md §3, §6 sentinel values).
var Tombstone = []byte{0x14, 0x14}

// IsTombstone reports whether v is exactly the tombstone sentinel.
func IsTombstone(v []byte) bool {
	return len(v) == len(Tombstone) && v[0] == Tombstone[0] && v[1] == Tombstone[1]
}

func hasTombstonePrefix(v []byte) bool {
	return len(v) >= 2 && v[0] == Tombstone[0] && v[1] == Tombstone[1]
}

// encodeValue implements spec.md §4.6's tombstone escape: an application
// value that begins with the tombstone prefix is lengthened by one byte so
// it no longer compares equal to the sentinel, and can never be confused
// with a real deletion.
func encodeValue(v []byte) []byte {
	if !hasTombstonePrefix(v) {
		return v
	}
	out := make([]byte, len(v)+1)
	copy(out, v)
	out[len(v)] = Tombstone[0]
	return out
}

// decodeValue is encodeValue's inverse, applied on every successful read
// except during merges (spec.md §4.6).
func decodeValue(v []byte) []byte {
	if len(v) > len(Tombstone) && hasTombstonePrefix(v) {
		return v[:len(v)-1]
	}
	return v
}
