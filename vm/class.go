package vm

import (
	"fmt"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Class representation
// ---------------------------------------------------------------------------

// StaticInitializer is a class's ordinary static initializer. It runs once,
// after any archived static values have been restored, and must leave
// already-populated statics alone.
type StaticInitializer func(vm *VM, c *Class) error

// Class represents a VM class.
type Class struct {
	Name       string       // Class name
	Namespace  string       // Namespace (empty for default)
	Superclass *Class       // Parent class (nil for Object)
	Loader     *ClassLoader // Defining loader
	InstVars   []string     // Instance variable names
	NumSlots   int          // Total number of slots needed
	DocString  string

	// Init is the ordinary static initializer; nil means nothing to run.
	Init StaticInitializer

	staticMu    sync.RWMutex
	staticNames []string
	statics     map[string]Value

	// class initialization protocol, see initializer.go
	initMu    sync.Mutex
	initCond  *sync.Cond
	initState InitState
	initGID   int64
	initErr   error
}

// NewClass creates a new class with the given name and superclass.
func NewClass(name string, superclass *Class) *Class {
	var numSlots int
	if superclass != nil {
		numSlots = superclass.NumSlots
	}
	c := &Class{
		Name:       name,
		Superclass: superclass,
		NumSlots:   numSlots,
		statics:    make(map[string]Value),
	}
	c.initCond = sync.NewCond(&c.initMu)
	return c
}

// NewClassWithInstVars creates a new class with instance variables.
func NewClassWithInstVars(name string, superclass *Class, instVars []string) *Class {
	c := NewClass(name, superclass)
	c.InstVars = instVars
	c.NumSlots += len(instVars)
	return c
}

// NewClassInNamespace creates a new class in a specific namespace.
func NewClassInNamespace(namespace, name string, superclass *Class) *Class {
	c := NewClass(name, superclass)
	c.Namespace = namespace
	return c
}

// InstVarIndex returns the slot index for an instance variable by name.
// Returns -1 if the variable is not found.
func (c *Class) InstVarIndex(name string) int {
	for i, n := range c.InstVars {
		if n == name {
			return c.instVarOffset() + i
		}
	}
	if c.Superclass != nil {
		return c.Superclass.InstVarIndex(name)
	}
	return -1
}

// instVarOffset returns the starting slot index for this class's instance variables.
func (c *Class) instVarOffset() int {
	if c.Superclass == nil {
		return 0
	}
	return c.Superclass.NumSlots
}

// IsSubclassOf returns true if c is a subclass of other (or is the same class).
func (c *Class) IsSubclassOf(other *Class) bool {
	for current := c; current != nil; current = current.Superclass {
		if current == other {
			return true
		}
	}
	return false
}

// NewInstance creates a new instance of this class.
func (c *Class) NewInstance() *Object {
	return NewObject(c)
}

// ---------------------------------------------------------------------------
// Static fields
// ---------------------------------------------------------------------------

// DeclareStatic declares named static fields. Undeclared names cannot be
// read or written.
func (c *Class) DeclareStatic(names ...string) {
	c.staticMu.Lock()
	defer c.staticMu.Unlock()
	for _, name := range names {
		if _, ok := c.statics[name]; ok {
			continue
		}
		c.staticNames = append(c.staticNames, name)
		c.statics[name] = Nil
	}
}

// StaticNames returns the declared static field names in declaration order.
func (c *Class) StaticNames() []string {
	c.staticMu.RLock()
	defer c.staticMu.RUnlock()
	out := make([]string, len(c.staticNames))
	copy(out, c.staticNames)
	return out
}

// HasStatic reports whether name is a declared static field.
func (c *Class) HasStatic(name string) bool {
	c.staticMu.RLock()
	defer c.staticMu.RUnlock()
	_, ok := c.statics[name]
	return ok
}

// Static returns the value of a static field, Nil if undeclared.
func (c *Class) Static(name string) Value {
	c.staticMu.RLock()
	defer c.staticMu.RUnlock()
	return c.statics[name]
}

// SetStatic assigns a declared static field.
func (c *Class) SetStatic(name string, v Value) error {
	c.staticMu.Lock()
	defer c.staticMu.Unlock()
	if _, ok := c.statics[name]; !ok {
		return fmt.Errorf("%s has no static field %q", c.FullName(), name)
	}
	c.statics[name] = v
	return nil
}

// SetStatics assigns several static fields in one critical section. Either
// every name is declared and all are written, or nothing is written.
func (c *Class) SetStatics(values map[string]Value) error {
	c.staticMu.Lock()
	defer c.staticMu.Unlock()
	for name := range values {
		if _, ok := c.statics[name]; !ok {
			return fmt.Errorf("%s has no static field %q", c.FullName(), name)
		}
	}
	for name, v := range values {
		c.statics[name] = v
	}
	return nil
}

// ---------------------------------------------------------------------------
// ClassTable: Global class registry
// ---------------------------------------------------------------------------

// ClassTable manages registered classes by full name.
// It's thread-safe for concurrent access.
type ClassTable struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewClassTable creates a new empty class table.
func NewClassTable() *ClassTable {
	return &ClassTable{
		classes: make(map[string]*Class),
	}
}

// Register adds a class to the table.
// Returns the previous class with this name, or nil.
func (ct *ClassTable) Register(c *Class) *Class {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	key := c.FullName()
	old := ct.classes[key]
	ct.classes[key] = c
	return old
}

// Lookup finds a class by full name.
func (ct *ClassTable) Lookup(name string) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.classes[name]
}

// All returns all registered classes sorted by full name.
func (ct *ClassTable) All() []*Class {
	ct.mu.RLock()
	result := make([]*Class, 0, len(ct.classes))
	for _, c := range ct.classes {
		result = append(result, c)
	}
	ct.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].FullName() < result[j].FullName()
	})
	return result
}

// Len returns the number of registered classes.
func (ct *ClassTable) Len() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.classes)
}

// ---------------------------------------------------------------------------
// Full qualified name helpers
// ---------------------------------------------------------------------------

// FullName returns the fully qualified class name (namespace::name or just name).
func (c *Class) FullName() string {
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + "::" + c.Name
}

// String implements the Stringer interface.
func (c *Class) String() string {
	return c.FullName()
}
