package corelib

import (
	"fmt"
	"strings"
	"sync"

	"github.com/chazu/cds/vm"
)

// Log line prefixes for generated invoker forms.
const (
	LFResolve      = "[LF_RESOLVE]"
	SpeciesResolve = "[SPECIES_RESOLVE]"
)

// Holder classes of generated invoker forms.
const (
	InvokersHolder     = NSInvoke + "::Invokers$Holder"
	DirectHandleHolder = NSInvoke + "::DirectMethodHandle$Holder"
	DelegatingHolder   = NSInvoke + "::DelegatingMethodHandle$Holder"
	LambdaFormClass    = NSInvoke + "::LambdaForm"
	speciesClassPrefix = "BoundMethodHandle$Species_"
)

// InvokerLog receives generated invoker forms. *archive.Gate implements it
// and drops everything unless lambda-form logging is on.
type InvokerLog interface {
	LogLambdaFormInvoker(prefix, holder, name string, typ fmt.Stringer)
	LogSpeciesType(prefix, className string)
}

// BasicType is an erased parameter or return type.
type BasicType byte

const (
	TypeRef    BasicType = 'L'
	TypeInt    BasicType = 'I'
	TypeLong   BasicType = 'J'
	TypeFloat  BasicType = 'F'
	TypeDouble BasicType = 'D'
	TypeVoid   BasicType = 'V'
)

// ParseBasicTypes parses a string of basic type characters.
func ParseBasicTypes(s string) ([]BasicType, error) {
	out := make([]BasicType, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch t := BasicType(s[i]); t {
		case TypeRef, TypeInt, TypeLong, TypeFloat, TypeDouble:
			out = append(out, t)
		default:
			return nil, fmt.Errorf("bad basic type %q at %d in %q", s[i], i, s)
		}
	}
	return out, nil
}

// MethodType is an erased method signature.
type MethodType struct {
	Params []BasicType
	Return BasicType
}

// ParseMethodType parses "(PARAMS)R", e.g. "(LI)L".
func ParseMethodType(s string) (MethodType, error) {
	if len(s) < 3 || s[0] != '(' {
		return MethodType{}, fmt.Errorf("bad method type %q", s)
	}
	end := strings.IndexByte(s, ')')
	if end < 0 || end != len(s)-2 {
		return MethodType{}, fmt.Errorf("bad method type %q", s)
	}
	params, err := ParseBasicTypes(s[1:end])
	if err != nil {
		return MethodType{}, err
	}
	ret := BasicType(s[end+1])
	if ret != TypeVoid {
		if _, err := ParseBasicTypes(string(ret)); err != nil {
			return MethodType{}, err
		}
	}
	return MethodType{Params: params, Return: ret}, nil
}

func (mt MethodType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range mt.Params {
		b.WriteByte(byte(p))
	}
	b.WriteByte(')')
	b.WriteByte(byte(mt.Return))
	return b.String()
}

// Invokers generates invoker forms and bound-handle species classes on
// demand. Each distinct form or species is generated and logged once.
type Invokers struct {
	machine *vm.VM
	log     InvokerLog

	mu        sync.Mutex
	formClass *vm.Class
	holders   map[string]*vm.Class
	forms     map[string]*vm.Object
	species   map[string]*vm.Class
}

// NewInvokers creates an invoker factory. log may be nil.
func NewInvokers(machine *vm.VM, log InvokerLog) *Invokers {
	return &Invokers{
		machine: machine,
		log:     log,
		holders: make(map[string]*vm.Class),
		forms:   make(map[string]*vm.Object),
		species: make(map[string]*vm.Class),
	}
}

// Invoker returns the lambda form for an invoker of kind with signature mt
// on holder. The first request defines the form on the holder class,
// defining the holder on the boot loader if needed, and logs it.
func (iv *Invokers) Invoker(holder, kind string, mt MethodType) (*vm.Object, error) {
	key := holder + " " + kind + " " + mt.String()

	iv.mu.Lock()
	defer iv.mu.Unlock()
	if form, ok := iv.forms[key]; ok {
		return form, nil
	}

	hc, err := iv.holderClass(holder)
	if err != nil {
		return nil, err
	}
	fc, err := iv.lambdaFormClass()
	if err != nil {
		return nil, err
	}
	form := fc.NewInstance()
	mustSet(form, "holder", vm.FromString(holder))
	mustSet(form, "name", vm.FromString(kind))
	mustSet(form, "type", vm.FromString(mt.String()))

	// The holder's table is replaced, never mutated, so readers of the
	// static always see a complete array.
	prev := hc.Static("forms").Object()
	n := 0
	if prev != nil {
		n = prev.Size()
	}
	table := vm.NewIndexedObject(iv.machine.ArrayClass, n+1)
	for i := 0; i < n; i++ {
		table.AtPut(i, prev.At(i))
	}
	table.AtPut(n, vm.FromObject(form))
	if err := hc.SetStatic("forms", vm.FromObject(table)); err != nil {
		return nil, err
	}

	iv.forms[key] = form
	if iv.log != nil {
		iv.log.LogLambdaFormInvoker(LFResolve, holder, kind, mt)
	}
	return form, nil
}

// holderClass returns the named holder class, defining it on first use.
// Callers hold iv.mu.
func (iv *Invokers) holderClass(holder string) (*vm.Class, error) {
	if c, ok := iv.holders[holder]; ok {
		return c, nil
	}
	switch holder {
	case InvokersHolder, DirectHandleHolder, DelegatingHolder:
	default:
		return nil, fmt.Errorf("unknown invoker holder %q", holder)
	}
	c := iv.machine.Classes.Lookup(holder)
	if c == nil {
		c = vm.NewClass(strings.TrimPrefix(holder, NSInvoke+"::"), iv.machine.ObjectClass)
		c.Namespace = NSInvoke
		c.DeclareStatic("forms")
		if err := iv.machine.DefineClass(c, nil); err != nil {
			return nil, err
		}
	}
	iv.holders[holder] = c
	return c, nil
}

// lambdaFormClass returns the class of generated forms. Callers hold iv.mu.
func (iv *Invokers) lambdaFormClass() (*vm.Class, error) {
	if iv.formClass != nil {
		return iv.formClass, nil
	}
	c := iv.machine.Classes.Lookup(LambdaFormClass)
	if c == nil {
		c = vm.NewClassWithInstVars("LambdaForm", iv.machine.ObjectClass, []string{"holder", "name", "type"})
		c.Namespace = NSInvoke
		if err := iv.machine.DefineClass(c, nil); err != nil {
			return nil, err
		}
	}
	iv.formClass = c
	return c, nil
}

// Forms returns the forms generated on holder, in generation order.
func (iv *Invokers) Forms(holder string) []*vm.Object {
	iv.mu.Lock()
	c := iv.holders[holder]
	iv.mu.Unlock()
	if c == nil {
		return nil
	}
	table := c.Static("forms").Object()
	if table == nil {
		return nil
	}
	out := make([]*vm.Object, table.Size())
	for i := range out {
		out[i] = table.At(i).Object()
	}
	return out
}

// Species returns the bound-handle species class for the given bound
// types, defining it on the boot loader on first use.
func (iv *Invokers) Species(types string) (*vm.Class, error) {
	bound, err := ParseBasicTypes(types)
	if err != nil {
		return nil, err
	}

	iv.mu.Lock()
	defer iv.mu.Unlock()
	if c, ok := iv.species[types]; ok {
		return c, nil
	}

	ivars := make([]string, len(bound))
	for i := range bound {
		ivars[i] = fmt.Sprintf("arg%d", i)
	}
	c := vm.NewClassWithInstVars(speciesClassPrefix+types, iv.machine.ObjectClass, ivars)
	c.Namespace = NSInvoke
	if err := iv.machine.DefineClass(c, nil); err != nil {
		return nil, err
	}
	iv.species[types] = c
	if iv.log != nil {
		iv.log.LogSpeciesType(SpeciesResolve, c.FullName())
	}
	return c, nil
}

// Generated returns the number of distinct invoker forms and species.
func (iv *Invokers) Generated() (forms, species int) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return len(iv.forms), len(iv.species)
}
