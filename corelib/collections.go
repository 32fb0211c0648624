package corelib

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/chazu/cds/vm"
)

// saltColor scrambles the dump seed into the iteration salt.
const saltColor uint64 = 0x243F6A8885A308D3

// expandFactor sizes SetN probe tables relative to their element count.
const expandFactor = 2

var ErrDuplicateElement = errors.New("duplicate element")

func (lib *Library) initImmutableCollections(_ *vm.VM, c *vm.Class) error {
	// The salt only affects iteration order. It is derived from the dump
	// seed while dumping so that archived iteration-dependent data is
	// reproducible, and random otherwise.
	seed := lib.seed()
	if seed == 0 {
		seed = rand.Int63()
	}
	salt := int64(uint32((saltColor * uint64(seed)) >> 16))

	archived := c.Static("archivedObjects")
	if !lib.arrayOfSize(archived, 2) {
		emptyList := lib.newArray()
		emptySet, err := lib.newSet(nil)
		if err != nil {
			return err
		}
		archived = vm.FromObject(lib.newArray(vm.FromObject(emptyList), vm.FromObject(emptySet)))
		if err := c.SetStatic("archivedObjects", archived); err != nil {
			return err
		}
	}
	objs := archived.Object()

	return c.SetStatics(map[string]vm.Value{
		"salt":      vm.FromSmallInt(salt),
		"reverse":   vm.FromBool(salt&1 == 0),
		"emptyList": objs.At(0),
		"emptySet":  objs.At(1),
	})
}

// EmptySet returns the shared empty set.
func (lib *Library) EmptySet() (*vm.Object, error) {
	if err := lib.machine.InitializeClass(lib.ImmutableCollections); err != nil {
		return nil, err
	}
	return lib.ImmutableCollections.Static("emptySet").Object(), nil
}

// SetOf builds an immutable set of integers and strings. Duplicates are
// rejected. No elements yields the shared empty set.
func (lib *Library) SetOf(elems ...vm.Value) (*vm.Object, error) {
	if len(elems) == 0 {
		return lib.EmptySet()
	}
	return lib.newSet(elems)
}

func (lib *Library) newSet(elems []vm.Value) (*vm.Object, error) {
	table := vm.NewIndexedObject(lib.machine.ArrayClass, expandFactor*len(elems))
	for _, e := range elems {
		idx, found, err := probe(table, e)
		if err != nil {
			return nil, err
		}
		if found {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateElement, e)
		}
		table.AtPut(idx, e)
	}
	set := lib.SetN.NewInstance()
	mustSet(set, "table", vm.FromObject(table))
	mustSet(set, "size", vm.FromSmallInt(int64(len(elems))))
	return set, nil
}

// SetContains reports whether set holds e.
func (lib *Library) SetContains(set *vm.Object, e vm.Value) bool {
	table := setTable(set)
	if table == nil || table.Size() == 0 {
		return false
	}
	_, found, err := probe(table, e)
	return err == nil && found
}

// SetDo calls fn for each element in salt-dependent order.
func (lib *Library) SetDo(set *vm.Object, fn func(vm.Value)) error {
	if err := lib.machine.InitializeClass(lib.ImmutableCollections); err != nil {
		return err
	}
	table := setTable(set)
	if table == nil || table.Size() == 0 {
		return nil
	}
	n := table.Size()
	salt := lib.ImmutableCollections.Static("salt").SmallInt()
	reverse := lib.ImmutableCollections.Static("reverse").Bool()
	idx := floorMod(salt, n)
	for i := 0; i < n; i++ {
		if v := table.At(idx); !v.IsNil() {
			fn(v)
		}
		if reverse {
			idx = floorMod(int64(idx-1), n)
		} else {
			idx = (idx + 1) % n
		}
	}
	return nil
}

func setTable(set *vm.Object) *vm.Object {
	if set == nil {
		return nil
	}
	v, err := set.Get("table")
	if err != nil {
		return nil
	}
	return v.Object()
}

// probe finds e's slot by linear probing on its plain hash.
func probe(table *vm.Object, e vm.Value) (int, bool, error) {
	h, err := hashOf(e)
	if err != nil {
		return 0, false, err
	}
	n := table.Size()
	idx := floorMod(int64(h), n)
	for i := 0; i < n; i++ {
		cur := table.At(idx)
		if cur.IsNil() {
			return idx, false, nil
		}
		if vm.Identical(cur, e) {
			return idx, true, nil
		}
		idx = (idx + 1) % n
	}
	return 0, false, errors.New("set table is full")
}

// hashOf is the element hash: the value for integers and a 31-multiplier
// polynomial over bytes for strings.
func hashOf(v vm.Value) (int32, error) {
	switch {
	case v.IsSmallInt():
		n := v.SmallInt()
		return int32(n ^ (n >> 32)), nil
	case v.IsString():
		var h int32
		for _, b := range []byte(v.Str()) {
			h = 31*h + int32(b)
		}
		return h, nil
	}
	return 0, fmt.Errorf("cannot hash %s values", v.Tag())
}

func floorMod(x int64, n int) int {
	m := x % int64(n)
	if m < 0 {
		m += int64(n)
	}
	return int(m)
}
