package lsm

import "testing"

func TestIsTombstone(t *testing.T) {
	tests := []struct {
		name string
		v    []byte
		want bool
	}{
		{name: "exact sentinel", v: []byte{0x14, 0x14}, want: true},
		{name: "sentinel prefix but longer", v: []byte{0x14, 0x14, 0x14}, want: false},
		{name: "unrelated value", v: []byte("hello"), want: false},
		{name: "empty value", v: []byte{}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTombstone(tt.v); got != tt.want {
				t.Errorf("IsTombstone(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeValue_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    []byte
	}{
		{name: "plain value untouched", v: []byte("hello")},
		{name: "value colliding with tombstone prefix gets escaped", v: []byte{0x14, 0x14}},
		{name: "longer value sharing the prefix gets escaped", v: []byte{0x14, 0x14, 0x99}},
		{name: "empty value", v: []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := encodeValue(tt.v)
			if hasTombstonePrefix(tt.v) && len(encoded) != len(tt.v)+1 {
				t.Fatalf("encodeValue(%v) = %v, want length %d", tt.v, encoded, len(tt.v)+1)
			}
			if IsTombstone(encoded) {
				t.Fatalf("encodeValue(%v) = %v still compares equal to the tombstone sentinel", tt.v, encoded)
			}
			decoded := decodeValue(encoded)
			if string(decoded) != string(tt.v) {
				t.Errorf("decodeValue(encodeValue(%v)) = %v, want %v", tt.v, decoded, tt.v)
			}
		})
	}
}

func TestEncodeValue_NonCollidingValueIsUnchanged(t *testing.T) {
	v := []byte("plain")
	if got := encodeValue(v); string(got) != string(v) {
		t.Errorf("encodeValue(%q) = %q, want unchanged", v, got)
	}
}
