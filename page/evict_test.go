package page

import (
	"context"
	"testing"
)

type fakeEvictor struct {
	feasible     bool
	evictErr     error
	evictCalls   int
	pressureErr  error
	pressureCall int
}

func (f *fakeEvictor) Feasible(ctx context.Context, pg *Page) bool { return f.feasible }
func (f *fakeEvictor) Evict(ctx context.Context, ref *Ref) error {
	f.evictCalls++
	return f.evictErr
}
func (f *fakeEvictor) ReducePressure(ctx context.Context) error {
	f.pressureCall++
	return f.pressureErr
}

func TestForcedEvictionCheck(t *testing.T) {
	tests := []struct {
		name     string
		leaf     bool
		oversize bool
		noEvict  bool
		disabled bool
		dirty    bool
		feasible bool
		want     bool
	}{
		{name: "all conditions met and subsystem agrees", leaf: true, oversize: true, dirty: true, feasible: true, want: true},
		{name: "subsystem declines", leaf: true, oversize: true, dirty: true, feasible: false, want: false},
		{name: "internal page never force-evicted", leaf: false, oversize: true, dirty: true, feasible: true, want: false},
		{name: "under budget", leaf: true, oversize: false, dirty: true, feasible: true, want: false},
		{name: "clean page exempt", leaf: true, oversize: true, dirty: false, feasible: true, want: false},
		{name: "NoEvict flag exempt", leaf: true, oversize: true, noEvict: true, dirty: true, feasible: true, want: false},
		{name: "eviction disabled tree-wide", leaf: true, oversize: true, disabled: true, dirty: true, feasible: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &TreeConfig{MaxMemPage: 100}
			if tt.disabled {
				cfg.DisableEviction()
			}
			pg := &Page{Type: TypeColFixedLeaf}
			if !tt.leaf {
				pg.Type = TypeColInternal
			}
			if tt.oversize {
				pg.MemoryFootprint = 200
			} else {
				pg.MemoryFootprint = 10
			}
			if tt.dirty {
				pg.Modify = &ModifyRecord{Dirty: true}
			}
			ev := &fakeEvictor{feasible: tt.feasible}
			got := ForcedEvictionCheck(context.Background(), pg, cfg, tt.noEvict, ev)
			if got != tt.want {
				t.Errorf("ForcedEvictionCheck() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestForcedEvictionCheck_FlagsSoftEvictionEvenWhenSubsystemDeclines(t *testing.T) {
	cfg := &TreeConfig{MaxMemPage: 100}
	pg := &Page{Type: TypeRowLeaf, MemoryFootprint: 200, Modify: &ModifyRecord{Dirty: true}, ReadGen: 500}
	ev := &fakeEvictor{feasible: false}

	ForcedEvictionCheck(context.Background(), pg, cfg, false, ev)

	if pg.ReadGen != ReadGenOldest {
		t.Errorf("ReadGen = %d, want %d (flagged even though eviction was declined)", pg.ReadGen, ReadGenOldest)
	}
}

func TestForcedEvictionCheck_NilEvictorDefaultsToTrue(t *testing.T) {
	cfg := &TreeConfig{MaxMemPage: 100}
	pg := &Page{Type: TypeRowLeaf, MemoryFootprint: 200, Modify: &ModifyRecord{Dirty: true}}
	if got := ForcedEvictionCheck(context.Background(), pg, cfg, false, nil); !got {
		t.Errorf("ForcedEvictionCheck() with nil evictor = false, want true")
	}
}

func TestTreeConfig_EnableDisableEviction(t *testing.T) {
	cfg := &TreeConfig{}
	if cfg.evictionDisabledNow() {
		t.Errorf("evictionDisabledNow() = true initially, want false")
	}
	cfg.DisableEviction()
	if !cfg.evictionDisabledNow() {
		t.Errorf("evictionDisabledNow() = false after DisableEviction(), want true")
	}
	cfg.EnableEviction()
	if cfg.evictionDisabledNow() {
		t.Errorf("evictionDisabledNow() = true after EnableEviction(), want false")
	}
}
