package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ashgrove/respkv/internal/store"
)

func TestSetGet(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	e.Set("k", "v", nil)

	got, ok, err := e.Get("k")
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if !ok || got != "v" {
		t.Fatalf("Get() = (%q, %v), want (\"v\", true)", got, ok)
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	_, ok, err := e.Get("nope")
	if err != nil || ok {
		t.Fatalf("Get(missing) = (_, %v, %v), want (_, false, nil)", ok, err)
	}
}

func TestSetExpiry(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	soon := time.Now().Add(20 * time.Millisecond)
	e.Set("k", "v", &soon)

	if _, ok, _ := e.Get("k"); !ok {
		t.Fatalf("expected value present before expiry")
	}

	time.Sleep(40 * time.Millisecond)

	_, ok, err := e.Get("k")
	if err != nil || ok {
		t.Fatalf("Get() after expiry = (_, %v, %v), want (_, false, nil)", ok, err)
	}
}

func TestSetOverwritesKind(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	if _, err := e.RPush("k", "a"); err != nil {
		t.Fatalf("RPush error = %v", err)
	}
	e.Set("k", "v", nil)

	if typ := e.TypeOf("k"); typ != "string" {
		t.Fatalf("TypeOf() = %q, want string", typ)
	}
}

func TestWrongType(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	e.Set("k", "v", nil)

	if _, err := e.RPush("k", "a"); !errors.Is(err, store.ErrWrongType) {
		t.Fatalf("RPush on string key error = %v, want ErrWrongType", err)
	}
	if _, _, err := e.LPop("k"); !errors.Is(err, store.ErrWrongType) {
		t.Fatalf("LPop on string key error = %v, want ErrWrongType", err)
	}
	if _, err := e.LLen("k"); !errors.Is(err, store.ErrWrongType) {
		t.Fatalf("LLen on string key error = %v, want ErrWrongType", err)
	}
}

func TestRPushLPushOrdering(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	if n, err := e.LPush("L", "a", "b"); err != nil || n != 2 {
		t.Fatalf("LPush() = (%d, %v), want (2, nil)", n, err)
	}
	// LPush("L", "a", "b") inserts "a" then "b" at the head one at a time,
	// so "b" ends up at index 0: [b, a].
	got, err := e.LRange("L", 0, -1)
	if err != nil {
		t.Fatalf("LRange error = %v", err)
	}
	want := []string{"b", "a"}
	if !equalSlices(got, want) {
		t.Fatalf("LRange() = %v, want %v", got, want)
	}

	if n, err := e.RPush("L", "c"); err != nil || n != 3 {
		t.Fatalf("RPush() = (%d, %v), want (3, nil)", n, err)
	}
	got, _ = e.LRange("L", 0, -1)
	want = []string{"b", "a", "c"}
	if !equalSlices(got, want) {
		t.Fatalf("LRange() after RPush = %v, want %v", got, want)
	}
}

func TestLRangeNormalization(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	e.RPush("L", "a", "b", "c", "d", "e")

	tests := []struct {
		start, end int64
		want       []string
	}{
		{0, -1, []string{"a", "b", "c", "d", "e"}},
		{0, 2, []string{"a", "b", "c"}},
		{-3, -1, []string{"c", "d", "e"}},
		{-100, -1, []string{"a", "b", "c", "d", "e"}},
		{10, 20, []string{}},
		{3, 1, []string{}},
	}
	for _, tt := range tests {
		got, err := e.LRange("L", tt.start, tt.end)
		if err != nil {
			t.Fatalf("LRange(%d,%d) error = %v", tt.start, tt.end, err)
		}
		if !equalSlices(got, tt.want) {
			t.Errorf("LRange(%d,%d) = %v, want %v", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestLRangeAbsentKey(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	got, err := e.LRange("nope", 0, -1)
	if err != nil || len(got) != 0 {
		t.Fatalf("LRange(absent) = (%v, %v), want ([], nil)", got, err)
	}
}

func TestLLenMatchesLRange(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	e.RPush("L", "a", "b", "c")

	n, err := e.LLen("L")
	if err != nil {
		t.Fatalf("LLen error = %v", err)
	}
	all, _ := e.LRange("L", 0, -1)
	if n != len(all) {
		t.Fatalf("LLen() = %d, want len(LRange) = %d", n, len(all))
	}
}

func TestLPopDeletesKeyWhenEmptied(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	e.RPush("L", "only")

	val, ok, err := e.LPop("L")
	if err != nil || !ok || val != "only" {
		t.Fatalf("LPop() = (%q, %v, %v), want (\"only\", true, nil)", val, ok, err)
	}
	if typ := e.TypeOf("L"); typ != "none" {
		t.Fatalf("TypeOf() after emptying = %q, want none", typ)
	}
}

func TestLPopCount(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	e.RPush("L", "a", "b", "c")

	got, ok, err := e.LPopN("L", 0)
	if err != nil || !ok || len(got) != 0 {
		t.Fatalf("LPopN(count=0) = (%v, %v, %v), want ([], true, nil)", got, ok, err)
	}
	if typ := e.TypeOf("L"); typ != "list" {
		t.Fatalf("count=0 must preserve the key, TypeOf() = %q", typ)
	}

	got, ok, err = e.LPopN("L", 10)
	if err != nil || !ok {
		t.Fatalf("LPopN(count>len) = (%v, %v, %v)", got, ok, err)
	}
	want := []string{"a", "b", "c"}
	if !equalSlices(got, want) {
		t.Fatalf("LPopN(count>len) = %v, want %v", got, want)
	}
	if typ := e.TypeOf("L"); typ != "none" {
		t.Fatalf("count>len must delete the key, TypeOf() = %q", typ)
	}
}

func TestLPopNAbsentKey(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	_, ok, err := e.LPopN("nope", 2)
	if err != nil || ok {
		t.Fatalf("LPopN(absent) = (_, %v, %v), want (_, false, nil)", ok, err)
	}
}

func TestBLPopFastPath(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	e.RPush("L", "x")

	key, val, ok, err := e.BLPop([]string{"L"}, 0)
	if err != nil || !ok {
		t.Fatalf("BLPop() error = %v, ok = %v", err, ok)
	}
	if key != "L" || val != "x" {
		t.Fatalf("BLPop() = (%q, %q), want (L, x)", key, val)
	}
}

func TestBLPopWrongTypePrecheck(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	e.Set("L", "a string", nil)

	_, _, _, err := e.BLPop([]string{"L"}, 0)
	if !errors.Is(err, store.ErrWrongType) {
		t.Fatalf("BLPop() error = %v, want ErrWrongType", err)
	}
}

func TestBLPopFIFO(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	type result struct {
		key, val string
	}
	c1 := make(chan result, 1)
	c2 := make(chan result, 1)

	go func() {
		k, v, _, _ := e.BLPop([]string{"L"}, 0)
		c1 <- result{k, v}
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		k, v, _, _ := e.BLPop([]string{"L"}, 0)
		c2 <- result{k, v}
	}()
	time.Sleep(20 * time.Millisecond)

	e.RPush("L", "a", "b")

	r1 := <-c1
	r2 := <-c2
	if r1.val != "a" || r2.val != "b" {
		t.Fatalf("FIFO delivery = (%v, %v), want (a, b)", r1, r2)
	}
}

func TestBLPopTimeout(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	start := time.Now()
	_, _, ok, err := e.BLPop([]string{"L"}, 50*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil || ok {
		t.Fatalf("BLPop(timeout) = (_, %v, %v), want (_, false, nil)", ok, err)
	}
	if elapsed < 40*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Fatalf("elapsed = %v, want ~50ms", elapsed)
	}
}

func TestBLPopPushAfterTimeoutStaysInList(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	_, _, ok, _ := e.BLPop([]string{"L"}, 20*time.Millisecond)
	if ok {
		t.Fatalf("expected timeout")
	}

	e.RPush("L", "late")

	got, err := e.LRange("L", 0, -1)
	if err != nil {
		t.Fatalf("LRange error = %v", err)
	}
	want := []string{"late"}
	if !equalSlices(got, want) {
		t.Fatalf("LRange() = %v, want %v", got, want)
	}
}

func TestDelExists(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	e.Set("a", "1", nil)
	e.Set("b", "2", nil)

	if n := e.Exists("a", "b", "c"); n != 2 {
		t.Fatalf("Exists() = %d, want 2", n)
	}
	if n := e.Del("a", "c"); n != 1 {
		t.Fatalf("Del() = %d, want 1", n)
	}
	if n := e.Exists("a"); n != 0 {
		t.Fatalf("Exists(a) after Del = %d, want 0", n)
	}
}

func TestTypeOf(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	if typ := e.TypeOf("nope"); typ != "none" {
		t.Fatalf("TypeOf(absent) = %q, want none", typ)
	}

	e.Set("s", "v", nil)
	e.RPush("l", "v")
	e.XAdd("x", "*", []store.Field{{Key: "f", Value: "v"}})

	if typ := e.TypeOf("s"); typ != "string" {
		t.Fatalf("TypeOf(s) = %q, want string", typ)
	}
	if typ := e.TypeOf("l"); typ != "list" {
		t.Fatalf("TypeOf(l) = %q, want list", typ)
	}
	if typ := e.TypeOf("x"); typ != "stream" {
		t.Fatalf("TypeOf(x) = %q, want stream", typ)
	}
}

func TestXAddExplicitIDOrdering(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	id, err := e.XAdd("S", "0-1", []store.Field{{Key: "f", Value: "v"}})
	if err != nil {
		t.Fatalf("XAdd error = %v", err)
	}
	if id.String() != "0-1" {
		t.Fatalf("id = %s, want 0-1", id.String())
	}

	_, err = e.XAdd("S", "0-0", []store.Field{{Key: "f", Value: "v"}})
	if !errors.Is(err, store.ErrStreamIDNotPositive) {
		t.Fatalf("XAdd(0-0) error = %v, want ErrStreamIDNotPositive", err)
	}

	_, err = e.XAdd("S", "0-1", []store.Field{{Key: "f", Value: "v"}})
	if !errors.Is(err, store.ErrStreamIDNotGreater) {
		t.Fatalf("XAdd(repeat id) error = %v, want ErrStreamIDNotGreater", err)
	}
}

func TestXAddAutoIDMonotonic(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	var last store.EntryID
	for i := 0; i < 5; i++ {
		id, err := e.XAdd("S", "*", []store.Field{{Key: "f", Value: "v"}})
		if err != nil {
			t.Fatalf("XAdd error = %v", err)
		}
		if i > 0 && id.Compare(last) <= 0 {
			t.Fatalf("id %s not strictly greater than previous %s", id, last)
		}
		last = id
	}
}

func TestXAddInvalidSyntax(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	_, err := e.XAdd("S", "not-an-id", nil)
	if !errors.Is(err, store.ErrInvalidStreamID) {
		t.Fatalf("XAdd(bad syntax) error = %v, want ErrInvalidStreamID", err)
	}
}

func TestXRangeAscending(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	e.XAdd("S", "1-1", []store.Field{{Key: "f", Value: "1"}})
	e.XAdd("S", "2-1", []store.Field{{Key: "f", Value: "2"}})
	e.XAdd("S", "3-1", []store.Field{{Key: "f", Value: "3"}})

	entries, err := e.XRange("S", store.EntryID{Ms: 2}, store.EntryID{Ms: 3, Seq: 1})
	if err != nil {
		t.Fatalf("XRange error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID.String() != "2-1" || entries[1].ID.String() != "3-1" {
		t.Fatalf("XRange() = %v, want [2-1, 3-1]", entries)
	}
}

func TestXReadOmitsStreamsWithNoNewEntries(t *testing.T) {
	t.Parallel()

	e := store.NewEngine()
	e.XAdd("S1", "1-1", []store.Field{{Key: "f", Value: "1"}})
	e.XAdd("S2", "1-1", []store.Field{{Key: "f", Value: "1"}})

	results, err := e.XRead([]string{"S1", "S2"}, []store.EntryID{{Ms: 1, Seq: 1}, {Ms: 0}})
	if err != nil {
		t.Fatalf("XRead error = %v", err)
	}
	if len(results) != 1 || results[0].Stream != "S2" {
		t.Fatalf("XRead() = %v, want only S2", results)
	}
	if len(results[0].Entries) != 1 || results[0].Entries[0].ID.String() != "1-1" {
		t.Fatalf("XRead() entries = %v", results[0].Entries)
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
