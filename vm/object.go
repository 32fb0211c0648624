package vm

import "fmt"

// Object represents a heap-allocated object.
//
// Named slots hold instance variables in class declaration order. Indexed
// objects (arrays, caches) additionally carry an element slice.
type Object struct {
	class    *Class
	slots    []Value
	elements []Value
}

// ---------------------------------------------------------------------------
// Object creation
// ---------------------------------------------------------------------------

// NewObject creates a new Object of class c with all slots set to Nil.
func NewObject(c *Class) *Object {
	return &Object{
		class: c,
		slots: make([]Value, c.NumSlots),
	}
}

// NewIndexedObject creates an object with size indexed elements, all Nil.
func NewIndexedObject(c *Class, size int) *Object {
	obj := NewObject(c)
	obj.elements = make([]Value, size)
	return obj
}

// ---------------------------------------------------------------------------
// Slot access
// ---------------------------------------------------------------------------

// Class returns the object's class.
func (obj *Object) Class() *Class {
	return obj.class
}

// GetSlot returns the value at the given slot index.
// Panics if index is out of range.
func (obj *Object) GetSlot(index int) Value {
	if index < 0 || index >= len(obj.slots) {
		panic("Object.GetSlot: index out of range")
	}
	return obj.slots[index]
}

// SetSlot sets the value at the given slot index.
// Panics if index is out of range.
func (obj *Object) SetSlot(index int, value Value) {
	if index < 0 || index >= len(obj.slots) {
		panic("Object.SetSlot: index out of range")
	}
	obj.slots[index] = value
}

// Get returns the named instance variable.
func (obj *Object) Get(name string) (Value, error) {
	idx := obj.class.InstVarIndex(name)
	if idx < 0 {
		return Nil, fmt.Errorf("%s has no instance variable %q", obj.class.FullName(), name)
	}
	return obj.slots[idx], nil
}

// Set assigns the named instance variable.
func (obj *Object) Set(name string, value Value) error {
	idx := obj.class.InstVarIndex(name)
	if idx < 0 {
		return fmt.Errorf("%s has no instance variable %q", obj.class.FullName(), name)
	}
	obj.slots[idx] = value
	return nil
}

// NumSlots returns the number of named slots.
func (obj *Object) NumSlots() int {
	return len(obj.slots)
}

// IsIndexed reports whether the object was created with an element slice.
func (obj *Object) IsIndexed() bool {
	return obj.elements != nil
}

// Size returns the number of indexed elements.
func (obj *Object) Size() int {
	return len(obj.elements)
}

// At returns the indexed element i. Panics if out of range.
func (obj *Object) At(i int) Value {
	return obj.elements[i]
}

// AtPut stores v at indexed element i. Panics if out of range.
func (obj *Object) AtPut(i int, v Value) {
	obj.elements[i] = v
}

// ---------------------------------------------------------------------------
// Slot iteration
// ---------------------------------------------------------------------------

// ForEachReference calls fn for every named slot and then every indexed
// element, stopping at the first error. element is false for slots.
func (obj *Object) ForEachReference(fn func(v Value, element bool) error) error {
	for _, v := range obj.slots {
		if err := fn(v, false); err != nil {
			return err
		}
	}
	for _, v := range obj.elements {
		if err := fn(v, true); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Debugging
// ---------------------------------------------------------------------------

// ClassName returns the full name of the object's class, or "?".
func (obj *Object) ClassName() string {
	if obj == nil || obj.class == nil {
		return "?"
	}
	return obj.class.FullName()
}
