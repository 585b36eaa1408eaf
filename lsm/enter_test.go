package lsm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ryogrid/pagekv/interfaces"
)

type fakeProbe struct{ bytes uint64 }

func (p *fakeProbe) MemoryBytes(ctx context.Context) uint64 { return p.bytes }

type fakeWorker struct {
	mu    sync.Mutex
	calls []interfaces.WorkKind
}

func (w *fakeWorker) Enqueue(kind interfaces.WorkKind, priority int, tree any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, kind)
	return nil
}

func (w *fakeWorker) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

func TestAdmitWrite_UnderSoftThreshold_ProceedsWithoutEnqueueing(t *testing.T) {
	tree := NewTree(100)
	tree.AppendSwitch(SwitchTxnNone, &Chunk{URI: "c1", Probe: &fakeProbe{bytes: 10}})
	w := &fakeWorker{}
	c := &Cursor{Tree: tree, Worker: w}

	if err := c.admitWrite(context.Background()); err != nil {
		t.Fatalf("admitWrite() error = %v", err)
	}
	if w.count() != 0 {
		t.Errorf("Enqueue called %d times, want 0", w.count())
	}
}

func TestAdmitWrite_PastSoftButUnderHard_EnqueuesSwitchAndProceeds(t *testing.T) {
	tree := NewTree(100)
	tree.AppendSwitch(SwitchTxnNone, &Chunk{URI: "c1", Probe: &fakeProbe{bytes: 150}})
	w := &fakeWorker{}
	c := &Cursor{Tree: tree, Worker: w}

	if err := c.admitWrite(context.Background()); err != nil {
		t.Fatalf("admitWrite() error = %v", err)
	}
	if w.count() != 1 || w.calls[0] != interfaces.WorkSwitch {
		t.Errorf("calls = %v, want exactly one WorkSwitch", w.calls)
	}
	if !tree.NeedSwitch() {
		t.Errorf("NeedSwitch() = false, want true after crossing the soft limit")
	}
}

func TestAdmitWrite_AlreadyNeedingSwitch_DoesNotEnqueueTwice(t *testing.T) {
	tree := NewTree(100)
	tree.AppendSwitch(SwitchTxnNone, &Chunk{URI: "c1", Probe: &fakeProbe{bytes: 150}})
	tree.SetNeedSwitch()
	w := &fakeWorker{}
	c := &Cursor{Tree: tree, Worker: w}

	if err := c.admitWrite(context.Background()); err != nil {
		t.Fatalf("admitWrite() error = %v", err)
	}
	if w.count() != 0 {
		t.Errorf("Enqueue called %d times, want 0 (already set)", w.count())
	}
}

func TestAdmitWrite_PastHardLimit_SpinsUntilNewPrimaryAppears(t *testing.T) {
	tree := NewTree(100)
	tree.AppendSwitch(SwitchTxnNone, &Chunk{URI: "c1", Probe: &fakeProbe{bytes: 250}})
	tree.SetNeedSwitch()
	w := &fakeWorker{}
	c := &Cursor{Tree: tree, Worker: w}

	var spun int32
	go func() {
		time.Sleep(5 * time.Millisecond)
		atomic.StoreInt32(&spun, 1)
		tree.AppendSwitch(SwitchTxnNone, &Chunk{URI: "c2", Probe: &fakeProbe{bytes: 0}})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.admitWrite(ctx); err != nil {
		t.Fatalf("admitWrite() error = %v", err)
	}
	if atomic.LoadInt32(&spun) == 0 {
		t.Errorf("admitWrite() returned before the generation actually advanced")
	}
}

func TestSpinUntilChunkExists_ContextCancelled(t *testing.T) {
	tree := NewTree(100)
	c := &Cursor{Tree: tree}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.spinUntilChunkExists(ctx, tree); err != context.Canceled {
		t.Errorf("spinUntilChunkExists() error = %v, want context.Canceled", err)
	}
}
