package vm

import (
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Class creation tests
// ---------------------------------------------------------------------------

func TestNewClass(t *testing.T) {
	c := NewClass("Object", nil)
	if c == nil {
		t.Fatal("NewClass returned nil")
	}
	if c.Name != "Object" {
		t.Errorf("Name = %q, want %q", c.Name, "Object")
	}
	if c.Superclass != nil {
		t.Error("root class should have nil superclass")
	}
	if c.NumSlots != 0 {
		t.Errorf("NumSlots = %d, want 0", c.NumSlots)
	}
	if c.InitState() != Uninitialized {
		t.Errorf("InitState() = %s, want Uninitialized", c.InitState())
	}
}

func TestNewClassWithInstVars(t *testing.T) {
	object := NewClass("Object", nil)
	point := NewClassWithInstVars("Point", object, []string{"x", "y"})
	if point.NumSlots != 2 {
		t.Errorf("NumSlots = %d, want 2", point.NumSlots)
	}

	// Subclass inherits slot count
	colorPoint := NewClassWithInstVars("ColorPoint", point, []string{"color"})
	if colorPoint.NumSlots != 3 {
		t.Errorf("ColorPoint.NumSlots = %d, want 3", colorPoint.NumSlots)
	}
	if idx := colorPoint.InstVarIndex("color"); idx != 2 {
		t.Errorf("InstVarIndex(color) = %d, want 2", idx)
	}
	if idx := colorPoint.InstVarIndex("y"); idx != 1 {
		t.Errorf("InstVarIndex(y) = %d, want 1", idx)
	}
	if !colorPoint.IsSubclassOf(object) || object.IsSubclassOf(point) {
		t.Error("IsSubclassOf is wrong")
	}
}

func TestFullName(t *testing.T) {
	if got := NewClass("Object", nil).FullName(); got != "Object" {
		t.Errorf("FullName() = %q", got)
	}
	if got := NewClassInNamespace("core.util", "Locale", nil).FullName(); got != "core.util::Locale" {
		t.Errorf("FullName() = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Static field tests
// ---------------------------------------------------------------------------

func TestStatics(t *testing.T) {
	c := NewClass("Cache", nil)
	c.DeclareStatic("low", "high", "low")

	if names := c.StaticNames(); len(names) != 2 || names[0] != "low" || names[1] != "high" {
		t.Errorf("StaticNames() = %v, want [low high]", names)
	}
	if !c.Static("low").IsNil() {
		t.Error("declared statics start nil")
	}
	if err := c.SetStatic("low", FromSmallInt(-128)); err != nil {
		t.Fatalf("SetStatic: %v", err)
	}
	if c.Static("low").SmallInt() != -128 {
		t.Errorf("low = %s", c.Static("low"))
	}
	if err := c.SetStatic("missing", Nil); err == nil {
		t.Error("SetStatic of an undeclared field should fail")
	}
	if c.HasStatic("missing") {
		t.Error("HasStatic(missing) = true")
	}
}

func TestSetStaticsAllOrNothing(t *testing.T) {
	c := NewClass("Cache", nil)
	c.DeclareStatic("a", "b")

	err := c.SetStatics(map[string]Value{
		"a":       FromSmallInt(1),
		"missing": FromSmallInt(2),
	})
	if err == nil {
		t.Fatal("SetStatics with an undeclared name should fail")
	}
	if !c.Static("a").IsNil() {
		t.Error("failed SetStatics must not write any field")
	}

	if err := c.SetStatics(map[string]Value{"a": FromSmallInt(1), "b": FromSmallInt(2)}); err != nil {
		t.Fatalf("SetStatics: %v", err)
	}
	if c.Static("a").SmallInt() != 1 || c.Static("b").SmallInt() != 2 {
		t.Errorf("statics = %s, %s", c.Static("a"), c.Static("b"))
	}
}

// ---------------------------------------------------------------------------
// ClassTable tests
// ---------------------------------------------------------------------------

func TestClassTable(t *testing.T) {
	ct := NewClassTable()
	a := NewClassInNamespace("ns", "B", nil)
	b := NewClass("A", nil)
	if old := ct.Register(a); old != nil {
		t.Error("first Register should return nil")
	}
	ct.Register(b)

	if ct.Lookup("ns::B") != a {
		t.Error("Lookup(ns::B) failed")
	}
	if ct.Lookup("B") != nil {
		t.Error("Lookup should use the full name")
	}
	all := ct.All()
	if len(all) != 2 || all[0] != b || all[1] != a {
		t.Errorf("All() = %v, want sorted by full name", all)
	}
}

func TestClassTableConcurrent(t *testing.T) {
	ct := NewClassTable()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := NewClassInNamespace("ns", string(rune('a'+i%26))+string(rune('a'+i/26)), nil)
			ct.Register(c)
			ct.Lookup(c.FullName())
		}(i)
	}
	wg.Wait()
	if ct.Len() != 50 {
		t.Errorf("Len() = %d, want 50", ct.Len())
	}
}
