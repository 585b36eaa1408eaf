package storage

import (
	"context"
	"testing"

	"github.com/ryogrid/pagekv/pkgerr"
)

func TestMemCursor_InsertAndSearch(t *testing.T) {
	tests := []struct {
		name string
		puts [][2]string
		key  string
		want string
	}{
		{
			name: "finds inserted key",
			puts: [][2]string{{"b", "2"}, {"a", "1"}, {"c", "3"}},
			key:  "b",
			want: "2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			cur, err := reg.OpenCursor(context.Background(), "chunk-1", false)
			if err != nil {
				t.Fatalf("OpenCursor() error = %v", err)
			}
			for _, kv := range tt.puts {
				if err := cur.Insert(context.Background(), []byte(kv[0]), []byte(kv[1])); err != nil {
					t.Fatalf("Insert(%q) error = %v", kv[0], err)
				}
			}
			ok, value, err := cur.Search(context.Background(), []byte(tt.key))
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if !ok || string(value) != tt.want {
				t.Errorf("Search() = (%v, %q), want (true, %q)", ok, value, tt.want)
			}
		})
	}
}

func TestMemCursor_Search_NotFound(t *testing.T) {
	reg := NewRegistry()
	cur, _ := reg.OpenCursor(context.Background(), "chunk-1", false)
	_, _, err := cur.Search(context.Background(), []byte("missing"))
	if !pkgerr.Is(err, pkgerr.NotFound) {
		t.Errorf("Search() error = %v, want NotFound", err)
	}
}

func TestMemCursor_NextPrev_OrderedIteration(t *testing.T) {
	reg := NewRegistry()
	cur, _ := reg.OpenCursor(context.Background(), "chunk-1", false)
	for _, k := range []string{"c", "a", "b"} {
		if err := cur.Insert(context.Background(), []byte(k), []byte(k)); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	var forward []string
	for {
		ok, key, _, err := cur.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if !ok {
			break
		}
		forward = append(forward, string(key))
	}
	want := []string{"a", "b", "c"}
	if len(forward) != len(want) {
		t.Fatalf("Next() walked %v, want %v", forward, want)
	}
	for i := range want {
		if forward[i] != want[i] {
			t.Errorf("Next()[%d] = %q, want %q", i, forward[i], want[i])
		}
	}

	// Reversing direction right after forward exhaustion lands on the last
	// element, the same place a Prev() from a freshly reset cursor would.
	ok, key, _, err := cur.Prev(context.Background())
	if err != nil {
		t.Fatalf("Prev() error = %v", err)
	}
	if !ok || string(key) != "c" {
		t.Errorf("Prev() = (%v, %q), want (true, \"c\")", ok, key)
	}
}

func TestMemCursor_Reset_PrevLandsOnLast(t *testing.T) {
	reg := NewRegistry()
	cur, _ := reg.OpenCursor(context.Background(), "chunk-1", false)
	for _, k := range []string{"a", "b", "c"} {
		if err := cur.Insert(context.Background(), []byte(k), []byte(k)); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	// Search() leaves the cursor positioned mid-range; Reset() must clear
	// that so the next Prev() seeks to the last entry instead of walking
	// back from wherever Search left it.
	if _, _, err := cur.Search(context.Background(), []byte("a")); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if err := cur.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	ok, key, _, err := cur.Prev(context.Background())
	if err != nil {
		t.Fatalf("Prev() error = %v", err)
	}
	if !ok || string(key) != "c" {
		t.Errorf("Prev() after Reset() = (%v, %q), want (true, \"c\")", ok, key)
	}
}

func TestMemCursor_SearchNear(t *testing.T) {
	reg := NewRegistry()
	cur, _ := reg.OpenCursor(context.Background(), "chunk-1", false)
	for _, k := range []string{"a", "c", "e"} {
		cur.Insert(context.Background(), []byte(k), []byte(k))
	}

	tests := []struct {
		name    string
		key     string
		wantCmp int
		wantKey string
	}{
		{name: "exact match", key: "c", wantCmp: 0, wantKey: "c"},
		{name: "between entries lands on larger", key: "b", wantCmp: 1, wantKey: "c"},
		{name: "past the end lands on largest", key: "z", wantCmp: -1, wantKey: "e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmp, key, _, err := cur.SearchNear(context.Background(), []byte(tt.key))
			if err != nil {
				t.Fatalf("SearchNear() error = %v", err)
			}
			if cmp != tt.wantCmp || string(key) != tt.wantKey {
				t.Errorf("SearchNear() = (%d, %q), want (%d, %q)", cmp, key, tt.wantCmp, tt.wantKey)
			}
		})
	}
}

func TestMemCursor_InsertHook_Rejects(t *testing.T) {
	reg := NewRegistry()
	cur, _ := reg.OpenCursor(context.Background(), "chunk-1", false)
	cur.(*MemCursor).SetInsertHook(func(ctx context.Context, key, value []byte) error {
		return pkgerr.New("hook", pkgerr.Conflict)
	})
	err := cur.Insert(context.Background(), []byte("a"), []byte("1"))
	if !pkgerr.Is(err, pkgerr.Conflict) {
		t.Errorf("Insert() error = %v, want Conflict", err)
	}
}

func TestRegistry_OpenCheckpoint_IsolatedFromLiveWrites(t *testing.T) {
	reg := NewRegistry()
	live, _ := reg.OpenCursor(context.Background(), "chunk-1", false)
	if err := live.Insert(context.Background(), []byte("a"), []byte("1")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	ckpt, err := reg.OpenCheckpoint(context.Background(), "chunk-1")
	if err != nil {
		t.Fatalf("OpenCheckpoint() error = %v", err)
	}

	if err := live.Insert(context.Background(), []byte("b"), []byte("2")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if _, _, err := ckpt.Search(context.Background(), []byte("b")); !pkgerr.Is(err, pkgerr.NotFound) {
		t.Errorf("checkpoint cursor observed a write made after it was opened")
	}
	if ok, _, err := ckpt.Search(context.Background(), []byte("a")); err != nil || !ok {
		t.Errorf("checkpoint cursor missing pre-existing key, ok=%v err=%v", ok, err)
	}
}

func TestRegistry_OpenCheckpoint_UnknownChunk(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.OpenCheckpoint(context.Background(), "nope"); !pkgerr.Is(err, pkgerr.NotFound) {
		t.Errorf("OpenCheckpoint() error = %v, want NotFound", err)
	}
}
