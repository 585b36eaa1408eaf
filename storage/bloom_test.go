package storage

import (
	"context"
	"testing"

	"github.com/ryogrid/pagekv/pkgerr"
)

func TestBloomFilter_AddAndTest(t *testing.T) {
	tests := []struct {
		name    string
		added   []string
		probe   string
		wantHit bool
	}{
		{name: "added key is maybe present", added: []string{"alpha", "beta"}, probe: "alpha", wantHit: true},
		{name: "never-added key is usually absent", added: []string{"alpha", "beta"}, probe: "never-added-zzz", wantHit: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewBloomFilter(100, 0.001)
			for _, k := range tt.added {
				f.Add([]byte(k))
			}
			got := f.HashGet(f.Hash([]byte(tt.probe)))
			if got != tt.wantHit {
				t.Errorf("HashGet() = %v, want %v", got, tt.wantHit)
			}
		})
	}
}

func TestBloomOpener_OpenUnregistered(t *testing.T) {
	o := NewBloomOpener()
	if _, err := o.Open(context.Background(), "missing"); !pkgerr.Is(err, pkgerr.NotFound) {
		t.Errorf("Open() error = %v, want NotFound", err)
	}
}

func TestBloomOpener_RegisterThenOpen(t *testing.T) {
	o := NewBloomOpener()
	f := NewBloomFilter(10, 0.01)
	f.Add([]byte("k"))
	o.Register("chunk-1", f)

	got, err := o.Open(context.Background(), "chunk-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !got.HashGet(got.Hash([]byte("k"))) {
		t.Errorf("opened filter lost its membership data")
	}
}
