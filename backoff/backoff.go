// Package backoff factors the spin-yield-sleep pattern that recurs twice in
// spec.md: the page-in loop's hazard-install retry (§4.2) and the
// write-admission spin-until-chunk-exists loop (§4.5). Both are, structurally,
// "spin up to N times yielding the scheduler, then fall back to exponentially
// growing sleeps capped at a ceiling, until a predicate is satisfied."
//
// Grounded on the teacher's inlined version of the same shape in
// BLTRWLock.WriteLock (runtime.Gosched() spin) and BufMgr.PinLatch's
// clock-sweep victim search (unbounded retry over the latch table).
package backoff

import (
	"time"
)

// Policy configures a backoff loop.
type Policy struct {
	MaxSpin      int           // yields attempted before sleeping at all
	InitialSleep time.Duration // sleep duration after MaxSpin is exhausted
	MaxSleep     time.Duration // sleep duration ceiling
}

// DefaultPolicy matches spec.md §4.2: spin up to 1000 yields, then
// exponentially double sleep microseconds capped at 10000us (10ms).
var DefaultPolicy = Policy{
	MaxSpin:      1000,
	InitialSleep: time.Microsecond,
	MaxSleep:     10000 * time.Microsecond,
}

// Loop holds the state of one backoff sequence: each Step calls yield
// (usually runtime.Gosched) while fewer than MaxSpin yields have been made,
// then sleeps with exponentially growing duration capped at MaxSleep. The
// caller decides when to stop stepping; Run wraps this with a predicate.
type Loop struct {
	policy Policy
	yield  func()
	sleep  func(time.Duration)

	spins    int
	curSleep time.Duration
}

// New builds a Loop. yield and sleep are injectable for deterministic tests;
// pass nil for both to use runtime.Gosched and time.Sleep.
func New(policy Policy, yield func(), sleep func(time.Duration)) *Loop {
	if yield == nil {
		yield = defaultYield
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Loop{policy: policy, yield: yield, sleep: sleep, curSleep: policy.InitialSleep}
}

// Step advances the backoff by one unit: a scheduler yield while under
// MaxSpin, otherwise a sleep that doubles each call up to MaxSleep. It
// returns the duration slept (zero while still spinning).
func (l *Loop) Step() time.Duration {
	if l.spins < l.policy.MaxSpin {
		l.spins++
		l.yield()
		return 0
	}
	d := l.curSleep
	if d > l.policy.MaxSleep {
		d = l.policy.MaxSleep
	}
	l.sleep(d)
	l.curSleep *= 2
	if l.curSleep > l.policy.MaxSleep {
		l.curSleep = l.policy.MaxSleep
	}
	return d
}

// Spins reports how many pure-yield iterations have elapsed so far.
func (l *Loop) Spins() int { return l.spins }

// Run calls attempt, then Step, repeatedly until attempt reports done=true.
// It returns the number of yields made and the sum of every slept duration.
// Run has no timeout or cancellation of its own; the
// caller's attempt predicate is the only termination condition, matching
// spec.md's statement that the C2 backoff is "unbounded ... forward progress
// is being made elsewhere."
func Run(policy Policy, attempt func() (done bool)) (spins int, slept time.Duration) {
	l := New(policy, nil, nil)
	for {
		if attempt() {
			return l.Spins(), slept
		}
		slept += l.Step()
	}
}
