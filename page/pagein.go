package page

import (
	"context"

	"github.com/ryogrid/pagekv/backoff"
	"github.com/ryogrid/pagekv/interfaces"
	"github.com/ryogrid/pagekv/pkgerr"
)

// maxForcedEvictAttempts bounds how many times one PageIn call will retry
// after a forced-eviction attempt before giving up and proceeding anyway
// (spec.md §4.2: "If it fires and the attempt count is below 10...").
const maxForcedEvictAttempts = 10

// PageIn drives ref from its current state to a hazard-protected MEM state
// (C2, spec.md §4.2). On success the returned Page is protected by a hazard
// pointer installed in hz; the caller must Clear it when done.
//
// Grounded on the teacher's PageFetch root-to-leaf descent and PinLatch
// clock-sweep retry loop (bufmgr.go), generalized from "spin until a latch
// is acquired" to the full DISK/DELETED/READING/LOCKED/SPLIT/MEM dispatch
// spec.md names.
func PageIn(
	ctx context.Context,
	ref *Ref,
	flags PageInFlags,
	hz *HazardTable,
	bm interfaces.BlockManager,
	codec interfaces.CellCodec,
	acct interfaces.CacheAccountant,
	txn interfaces.TxnManager,
	cfg *TreeConfig,
	ev Evictor,
	epoch *EpochSource,
	policy backoff.Policy,
) (*Page, error) {
	loop := backoff.New(policy, nil, nil)
	wontNeed := flags&WontNeed != 0
	evictAttempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch ref.State() {
		case StateDisk, StateDeleted:
			if flags&CacheOnly != 0 {
				return nil, pkgerr.New("PageIn", pkgerr.NotFound)
			}
			if acct != nil && ev != nil && acct.PressureRatio() > 0.95 {
				if err := ev.ReducePressure(ctx); err != nil && !pkgerr.Is(err, pkgerr.Busy) {
					return nil, err
				}
			}
			from := ref.State()
			if !ref.casState(from, StateReading) {
				loop.Step()
				continue
			}
			image, size, err := bm.Read(ctx, ref.Addr)
			if err != nil {
				ref.state.Store(from)
				return nil, pkgerr.Wrap("PageIn", pkgerr.IO, err)
			}
			pg, err := Materialize(acct, codec, ref, image, size, 0)
			if err != nil {
				ref.state.Store(from)
				return nil, err
			}
			ref.installMem(pg)
			continue

		case StateReading:
			if flags&CacheOnly != 0 || flags&NoWait != 0 {
				return nil, pkgerr.New("PageIn", pkgerr.NotFound)
			}
			loop.Step()
			continue

		case StateLocked:
			if flags&NoWait != 0 {
				return nil, pkgerr.New("PageIn", pkgerr.NotFound)
			}
			loop.Step()
			continue

		case StateSplit:
			// The subtree below ref was reshaped; the caller must discard
			// all downward state and re-descend from an ancestor. ref.page
			// is never touched here (spec.md boundary case).
			return nil, pkgerr.New("PageIn", pkgerr.Restart)

		case StateMem:
			pg := ref.Page()
			if pg == nil {
				// A concurrent evictor has cleared the pointer but not yet
				// advanced the state word; treat as transient and retry.
				loop.Step()
				continue
			}
			if err := hz.Install(pg); err != nil {
				loop.Step()
				continue
			}

			if evictAttempts < maxForcedEvictAttempts && ForcedEvictionCheck(ctx, pg, cfg, flags&NoEvict != 0, ev) {
				evictAttempts++
				hz.Clear(pg)
				if err := releaseAndEvict(ctx, ref, ev); err != nil {
					if pkgerr.Is(err, pkgerr.Busy) {
						loop.Step()
						continue
					}
					return nil, err
				}
				continue
			}

			if txn != nil {
				if err := txn.AutocommitCheck(ctx); err != nil {
					hz.Clear(pg)
					return nil, err
				}
			}

			if (wontNeed || cfg.suppressesCaching()) && pg.ReadGen == ReadGenNotSet {
				pg.ReadGen = ReadGenOldest
			} else if flags&NoGen == 0 && epoch != nil && pg.ReadGen != ReadGenOldest && pg.ReadGen < epoch.Current() {
				pg.ReadGen = epoch.Next()
			}

			return pg, nil

		default:
			return nil, pkgerr.New("PageIn", pkgerr.Fatal)
		}
	}
}
