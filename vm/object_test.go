package vm

import (
	"errors"
	"testing"
)

func TestNewObjectSlots(t *testing.T) {
	point := NewClassWithInstVars("Point", nil, []string{"x", "y"})
	obj := NewObject(point)

	if obj.NumSlots() != 2 {
		t.Fatalf("NumSlots() = %d, want 2", obj.NumSlots())
	}
	if !obj.GetSlot(0).IsNil() || !obj.GetSlot(1).IsNil() {
		t.Error("new slots should be nil")
	}
	if obj.IsIndexed() {
		t.Error("plain object should not be indexed")
	}
}

func TestObjectNamedAccess(t *testing.T) {
	point := NewClassWithInstVars("Point", nil, []string{"x", "y"})
	colorPoint := NewClassWithInstVars("ColorPoint", point, []string{"color"})
	obj := NewObject(colorPoint)

	if err := obj.Set("color", FromString("red")); err != nil {
		t.Fatalf("Set(color): %v", err)
	}
	if err := obj.Set("x", FromSmallInt(3)); err != nil {
		t.Fatalf("Set(x): %v", err)
	}
	if got := obj.GetSlot(2); got.Str() != "red" {
		t.Errorf("slot 2 = %s, want \"red\"", got)
	}
	if got, _ := obj.Get("x"); got.SmallInt() != 3 {
		t.Errorf("x = %s, want 3", got)
	}
	if _, err := obj.Get("z"); err == nil {
		t.Error("Get of an unknown variable should fail")
	}
	if err := obj.Set("z", Nil); err == nil {
		t.Error("Set of an unknown variable should fail")
	}
}

func TestSetSlotOutOfRangePanics(t *testing.T) {
	obj := NewObject(NewClass("Empty", nil))
	defer func() {
		if recover() == nil {
			t.Error("SetSlot out of range should panic")
		}
	}()
	obj.SetSlot(0, Nil)
}

func TestIndexedObject(t *testing.T) {
	array := NewClass("Array", nil)
	arr := NewIndexedObject(array, 3)
	if !arr.IsIndexed() || arr.Size() != 3 {
		t.Fatalf("IsIndexed() = %v, Size() = %d", arr.IsIndexed(), arr.Size())
	}
	arr.AtPut(1, FromSmallInt(9))
	if arr.At(1).SmallInt() != 9 {
		t.Errorf("At(1) = %s, want 9", arr.At(1))
	}

	empty := NewIndexedObject(array, 0)
	if !empty.IsIndexed() {
		t.Error("zero-length array should still be indexed")
	}
}

func TestForEachReference(t *testing.T) {
	c := NewClassWithInstVars("Pair", nil, []string{"a"})
	obj := NewIndexedObject(c, 2)
	obj.Set("a", FromSmallInt(1))
	obj.AtPut(0, FromSmallInt(2))
	obj.AtPut(1, FromSmallInt(3))

	var got []int64
	var elements int
	err := obj.ForEachReference(func(v Value, element bool) error {
		got = append(got, v.SmallInt())
		if element {
			elements++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachReference: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("ForEachReference order = %v, want [1 2 3]", got)
	}
	if elements != 2 {
		t.Errorf("elements = %d, want 2", elements)
	}

	stop := errors.New("stop")
	calls := 0
	err = obj.ForEachReference(func(Value, bool) error {
		calls++
		return stop
	})
	if err != stop || calls != 1 {
		t.Errorf("ForEachReference = %v after %d calls, want stop after 1", err, calls)
	}
}
