package storage

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ryogrid/pagekv/interfaces"
)

// TxnManager is a reference interfaces.TxnManager: a monotonic id
// generator plus a live-set used to answer visibility questions. Real
// durability/recovery protocol is a declared Non-goal; this exists only so
// the core has something to check visibility against.
type TxnManager struct {
	mu       sync.RWMutex
	nextID   uint64
	active   map[interfaces.SnapshotID]struct{}
	snapshot interfaces.IsolationLevel
}

// NewTxnManager builds a transaction manager starting ids at 1 so 0 stays
// reserved as SwitchTxnNone's sentinel.
func NewTxnManager(isolation interfaces.IsolationLevel) *TxnManager {
	return &TxnManager{nextID: 1, active: make(map[interfaces.SnapshotID]struct{}), snapshot: isolation}
}

// AutocommitCheck implements interfaces.TxnManager. There is no implicit
// transaction boundary to enforce here; autocommit is always legal.
func (t *TxnManager) AutocommitCheck(ctx context.Context) error { return nil }

// Begin starts a new transaction and returns its id.
func (t *TxnManager) Begin() interfaces.SnapshotID {
	id := interfaces.SnapshotID(atomic.AddUint64(&t.nextID, 1) - 1)
	t.mu.Lock()
	t.active[id] = struct{}{}
	t.mu.Unlock()
	return id
}

// Commit retires id from the live set.
func (t *TxnManager) Commit(id interfaces.SnapshotID) {
	t.mu.Lock()
	delete(t.active, id)
	t.mu.Unlock()
}

// TxnIDCheck implements interfaces.TxnManager by lazily starting a
// transaction for the calling session.
func (t *TxnManager) TxnIDCheck(ctx context.Context) (interfaces.SnapshotID, error) {
	return t.Begin(), nil
}

// Visible implements interfaces.TxnManager: id is visible once it is no
// longer in the live set (it has committed).
func (t *TxnManager) Visible(ctx context.Context, id interfaces.SnapshotID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, active := t.active[id]
	return !active
}

// VisibleToAll implements interfaces.TxnManager: id is visible to every
// live transaction once no active transaction predates it.
func (t *TxnManager) VisibleToAll(ctx context.Context, id interfaces.SnapshotID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for active := range t.active {
		if active <= id {
			return false
		}
	}
	return true
}

// CurrentSnapshot implements interfaces.TxnManager.
func (t *TxnManager) CurrentSnapshot(ctx context.Context) interfaces.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	min := interfaces.SnapshotID(atomic.LoadUint64(&t.nextID))
	for id := range t.active {
		if id < min {
			min = id
		}
	}
	return interfaces.Snapshot{ID: min, SnapMin: min, Isolation: t.snapshot}
}
