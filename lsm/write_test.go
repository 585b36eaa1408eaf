package lsm

import (
	"context"
	"testing"

	"github.com/ryogrid/pagekv/interfaces"
	"github.com/ryogrid/pagekv/page"
	"github.com/ryogrid/pagekv/pkgerr"
	"github.com/ryogrid/pagekv/storage"
)

func TestCursor_InsertSearchRemove_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cur, _, _, _ := wiredCursor(OpenRead, 1<<20)

	if err := cur.Insert(ctx, []byte("a"), []byte("1")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	ok, v, err := cur.Search(ctx, []byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("Search() = (%v, %q, %v), want (true, \"1\", nil)", ok, v, err)
	}
	if err := cur.Remove(ctx, []byte("a")); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, _, err := cur.Search(ctx, []byte("a")); !pkgerr.Is(err, pkgerr.NotFound) {
		t.Errorf("Search() after Remove error = %v, want NotFound", err)
	}
}

func TestCursor_Insert_DuplicateWithoutOverwriteFails(t *testing.T) {
	ctx := context.Background()
	cur, _, _, _ := wiredCursor(OpenRead, 1<<20)

	if err := cur.Insert(ctx, []byte("a"), []byte("1")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	err := cur.Insert(ctx, []byte("a"), []byte("2"))
	if !pkgerr.Is(err, pkgerr.DuplicateKey) {
		t.Errorf("second Insert() error = %v, want DuplicateKey", err)
	}
}

func TestCursor_Remove_MasksOlderChunkWithoutErasingIt(t *testing.T) {
	ctx := context.Background()
	reg := storage.NewRegistry()
	txn := storage.NewTxnManager(interfaces.IsolationSnapshot)
	tree := NewTree(1 << 20)

	chunk1 := &Chunk{URI: "chunk-1", Config: &page.TreeConfig{MaxMemPage: 1 << 20}, Probe: reg.Probe("chunk-1")}
	tree.AppendSwitch(SwitchTxnNone, chunk1)

	cur := NewCursor(tree, OpenRead)
	cur.Txn, cur.Registry, cur.Opener, cur.Checkpointer = txn, reg, reg, reg
	cur.BloomOpener = storage.NewBloomOpener()

	if err := cur.Insert(ctx, []byte("a"), []byte("old")); err != nil {
		t.Fatalf("Insert() into chunk1 error = %v", err)
	}

	sealID := txn.Begin()
	txn.Commit(sealID)
	chunk2 := &Chunk{URI: "chunk-2", Config: &page.TreeConfig{MaxMemPage: 1 << 20}, Probe: reg.Probe("chunk-2")}
	tree.AppendSwitch(sealID, chunk2)

	if err := cur.Remove(ctx, []byte("a")); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, _, err := cur.Search(ctx, []byte("a")); !pkgerr.Is(err, pkgerr.NotFound) {
		t.Errorf("Search() after Remove on newer chunk error = %v, want NotFound (masked)", err)
	}

	raw, err := reg.OpenCursor(ctx, "chunk-1", true)
	if err != nil {
		t.Fatalf("OpenCursor(chunk-1) error = %v", err)
	}
	found, v, err := raw.Search(ctx, []byte("a"))
	if err != nil || !found || string(v) != "old" {
		t.Fatalf("older chunk's stored value = (%v, %q, %v), want (true, \"old\", nil): delete must mask, not erase", found, v, err)
	}
}

func TestCursor_BloomMiss_SkipsUnderlyingSearch(t *testing.T) {
	ctx := context.Background()
	reg := storage.NewRegistry()
	txn := storage.NewTxnManager(interfaces.IsolationSnapshot)
	tree := NewTree(1 << 20)

	filter := storage.NewBloomFilter(10, 0.01)
	filter.Add([]byte("present"))
	bloomOpener := storage.NewBloomOpener()
	bloomOpener.Register("bloom-1", filter)

	chunk := &Chunk{URI: "chunk-1", BloomURI: "bloom-1", Flags: ChunkBloom, Config: &page.TreeConfig{MaxMemPage: 1 << 20}, Probe: reg.Probe("chunk-1")}
	tree.AppendSwitch(SwitchTxnNone, chunk)

	opener := newCountingOpener(reg)
	cur := NewCursor(tree, OpenRead)
	cur.Txn, cur.Registry, cur.Opener, cur.Checkpointer, cur.BloomOpener = txn, reg, opener, reg, bloomOpener

	if _, _, err := cur.Search(ctx, []byte("present")); !pkgerr.Is(err, pkgerr.NotFound) {
		t.Fatalf("Search(present) error = %v, want NotFound (bloom false positive, chunk empty)", err)
	}
	cc := opener.byURI["chunk-1"]
	if cc == nil {
		t.Fatalf("chunk-1 cursor was never opened")
	}
	afterPresent := cc.calls()
	if afterPresent == 0 {
		t.Fatalf("calls() = 0 after a bloom hit, want at least 1")
	}

	if _, _, err := cur.Search(ctx, []byte("zzz")); !pkgerr.Is(err, pkgerr.NotFound) {
		t.Fatalf("Search(zzz) error = %v, want NotFound", err)
	}
	if got := cc.calls(); got != afterPresent {
		t.Errorf("calls() after bloom-miss key = %d, want unchanged %d: bloom miss must skip the underlying Search", got, afterPresent)
	}
}

func TestCursor_Put_ConflictsOnUncommittedSwitchBoundary(t *testing.T) {
	ctx := context.Background()
	reg := storage.NewRegistry()
	txn := storage.NewTxnManager(interfaces.IsolationSnapshot)
	tree := NewTree(1 << 20)

	chunk1 := &Chunk{URI: "chunk-1", Config: &page.TreeConfig{MaxMemPage: 1 << 20}, Probe: reg.Probe("chunk-1")}
	tree.AppendSwitch(SwitchTxnNone, chunk1)

	cur := NewCursor(tree, OpenSnapshot)
	cur.Txn, cur.Registry, cur.Opener, cur.Checkpointer = txn, reg, reg, reg
	cur.BloomOpener = storage.NewBloomOpener()
	cur.Overwrite = true

	if err := cur.Insert(ctx, []byte("a"), []byte("1")); err != nil {
		t.Fatalf("Insert() into chunk1 error = %v", err)
	}

	s1 := txn.Begin() // left uncommitted
	chunk2 := &Chunk{URI: "chunk-2", Config: &page.TreeConfig{MaxMemPage: 1 << 20}, Probe: reg.Probe("chunk-2")}
	tree.AppendSwitch(s1, chunk2)

	err := cur.Insert(ctx, []byte("b"), []byte("2"))
	if !pkgerr.Is(err, pkgerr.Conflict) {
		t.Fatalf("Insert() across an uncommitted switch boundary error = %v, want Conflict", err)
	}
}
