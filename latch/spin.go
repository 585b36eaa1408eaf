package latch

import "sync"

// SpinLatch is a mutex-guarded exclusive/share latch used to protect the
// buffer pool's hash-chain slots. In this module it is the type of
// page.Ref's parentLock field, which no code path acquires. Grounded on
// _examples/hmarui66-blink-tree-go/latchmgr.go SpinLatch.
type SpinLatch struct {
	mu        sync.Mutex
	exclusive bool
	pending   bool
	share     uint16
}

// Lock waits until no exclusive holder exists and takes a share.
func (l *SpinLatch) Lock() {
	for {
		l.mu.Lock()
		ok := !(l.exclusive || l.pending)
		if ok {
			l.share++
		}
		l.mu.Unlock()
		if ok {
			return
		}
	}
}

// Unlock releases a share.
func (l *SpinLatch) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.share--
}

// WriteLock waits for all shares and any exclusive holder to drain, then
// takes exclusive ownership.
func (l *SpinLatch) WriteLock() {
	for {
		l.mu.Lock()
		ok := !(l.share > 0 || l.exclusive)
		if ok {
			l.exclusive = true
			l.pending = false
		} else {
			l.pending = true
		}
		l.mu.Unlock()
		if ok {
			return
		}
	}
}

// WriteTry attempts WriteLock without blocking.
func (l *SpinLatch) WriteTry() bool {
	if !l.mu.TryLock() {
		return false
	}
	defer l.mu.Unlock()
	ok := !(l.share > 0 || l.exclusive)
	if ok {
		l.exclusive = true
	}
	return ok
}

// WriteRelease releases exclusive ownership.
func (l *SpinLatch) WriteRelease() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exclusive = false
}
