package corelib_test

import (
	"errors"
	"testing"

	"github.com/chazu/cds/config"
	"github.com/chazu/cds/corelib"
	"github.com/chazu/cds/vm"
)

func TestSetOf(t *testing.T) {
	p := start(t, t.TempDir(), config.ModeOff)
	lib := p.lib

	set, err := lib.SetOf(vm.FromString("a"), vm.FromString("b"), vm.FromSmallInt(3))
	if err != nil {
		t.Fatalf("SetOf: %v", err)
	}
	for _, v := range []vm.Value{vm.FromString("a"), vm.FromString("b"), vm.FromSmallInt(3)} {
		if !lib.SetContains(set, v) {
			t.Errorf("set should contain %s", v)
		}
	}
	if lib.SetContains(set, vm.FromString("c")) {
		t.Error("set should not contain \"c\"")
	}

	seen := map[string]int{}
	if err := lib.SetDo(set, func(v vm.Value) { seen[v.String()]++ }); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 3 {
		t.Errorf("SetDo visited %v", seen)
	}
	for k, n := range seen {
		if n != 1 {
			t.Errorf("%s visited %d times", k, n)
		}
	}
}

func TestSetOfRejectsDuplicates(t *testing.T) {
	p := start(t, t.TempDir(), config.ModeOff)
	_, err := p.lib.SetOf(vm.FromSmallInt(1), vm.FromSmallInt(1))
	if !errors.Is(err, corelib.ErrDuplicateElement) {
		t.Errorf("err = %v, want ErrDuplicateElement", err)
	}
	if _, err := p.lib.SetOf(vm.True); err == nil {
		t.Error("booleans are not hashable set elements")
	}
}

func TestEmptySetShared(t *testing.T) {
	p := start(t, t.TempDir(), config.ModeOff)
	a, err := p.lib.SetOf()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := p.lib.EmptySet()
	if a != b {
		t.Error("empty sets should be the shared singleton")
	}
	if p.lib.SetContains(a, vm.FromSmallInt(0)) {
		t.Error("empty set contains nothing")
	}
	calls := 0
	p.lib.SetDo(a, func(vm.Value) { calls++ })
	if calls != 0 {
		t.Errorf("SetDo on the empty set called fn %d times", calls)
	}
}

func TestIterationOrderFollowsDumpSeed(t *testing.T) {
	order := func() []string {
		p := start(t, t.TempDir(), config.ModeDumpStatic)
		set, err := p.lib.SetOf(vm.FromString("x"), vm.FromString("y"), vm.FromString("z"), vm.FromString("w"))
		if err != nil {
			t.Fatal(err)
		}
		var out []string
		p.lib.SetDo(set, func(v vm.Value) { out = append(out, v.Str()) })
		return out
	}
	a, b := order(), order()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("orders differ: %v vs %v", a, b)
		}
	}
}
