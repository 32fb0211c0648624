// Package corelib defines the boot library classes whose static state is
// archived: boxed integer caches, immutable collection singletons, the
// module graph and the locale cache. Their static initializers run
// normally when no archive is in use and reuse archived values otherwise.
package corelib

import (
	"fmt"

	"github.com/chazu/cds/archive/image"
	"github.com/chazu/cds/vm"
)

// Namespaces (packages) of the boot library.
const (
	NSLang   = "core.lang"
	NSUtil   = "core.util"
	NSModule = "core.module"
	NSInvoke = "core.invoke"
)

// SeedSource supplies the dump seed. *archive.Gate implements it.
type SeedSource interface {
	GetRandomSeedForDumping() int64
}

// Library holds the installed boot library classes.
type Library struct {
	machine *vm.VM
	seeds   SeedSource

	Integer              *vm.Class
	IntegerCache         *vm.Class
	SetN                 *vm.Class
	ImmutableCollections *vm.Class
	ModuleDescriptor     *vm.Class
	ModuleGraph          *vm.Class
	Locale               *vm.Class
	LocaleCache          *vm.Class
}

// Install defines the boot library classes on machine's boot loader.
// seeds may be nil when no archive gate exists.
func Install(machine *vm.VM, seeds SeedSource) (*Library, error) {
	lib := &Library{machine: machine, seeds: seeds}

	defs := []struct {
		dst      **vm.Class
		ns, name string
		ivars    []string
		statics  []string
		init     vm.StaticInitializer
	}{
		{&lib.Integer, NSLang, "Integer", []string{"value"}, nil, nil},
		{&lib.IntegerCache, NSLang, "IntegerCache", nil,
			[]string{"low", "high", "cache", "archivedCache"}, lib.initIntegerCache},
		{&lib.SetN, NSUtil, "SetN", []string{"table", "size"}, nil, nil},
		{&lib.ImmutableCollections, NSUtil, "ImmutableCollections", nil,
			[]string{"salt", "reverse", "emptyList", "emptySet", "archivedObjects"}, lib.initImmutableCollections},
		{&lib.ModuleDescriptor, NSModule, "ModuleDescriptor", []string{"name", "loader", "packages"}, nil, nil},
		{&lib.ModuleGraph, NSModule, "ModuleGraph", nil,
			[]string{"descriptors", "archivedGraph"}, lib.initModuleGraph},
		{&lib.Locale, NSUtil, "Locale", []string{"language", "region"}, nil, nil},
		{&lib.LocaleCache, NSUtil, "LocaleCache", nil,
			[]string{"root", "english", "us", "archivedLocales"}, lib.initLocaleCache},
	}

	for _, d := range defs {
		c := vm.NewClassWithInstVars(d.name, machine.ObjectClass, d.ivars)
		c.Namespace = d.ns
		c.DeclareStatic(d.statics...)
		c.Init = d.init
		if err := machine.DefineClass(c, nil); err != nil {
			return nil, fmt.Errorf("corelib: %w", err)
		}
		*d.dst = c
	}
	return lib, nil
}

// Classes returns the library classes that carry archivable state, in
// initialization order.
func (lib *Library) Classes() []*vm.Class {
	return []*vm.Class{lib.IntegerCache, lib.ImmutableCollections, lib.ModuleGraph, lib.LocaleCache}
}

// InitializeAll initializes every library class with archivable state.
func (lib *Library) InitializeAll() error {
	for _, c := range lib.Classes() {
		if err := lib.machine.InitializeClass(c); err != nil {
			return err
		}
	}
	return nil
}

// ArchivableFields lists the static fields whose object graphs are archived.
func ArchivableFields() []image.FieldSpec {
	return []image.FieldSpec{
		{Class: NSLang + "::IntegerCache", Fields: []string{"archivedCache"}},
		{Class: NSUtil + "::ImmutableCollections", Fields: []string{"archivedObjects"}},
		{Class: NSModule + "::ModuleGraph", Fields: []string{"archivedGraph"}},
		{Class: NSUtil + "::LocaleCache", Fields: []string{"archivedLocales"}},
	}
}

func (lib *Library) seed() int64 {
	if lib.seeds == nil {
		return 0
	}
	return lib.seeds.GetRandomSeedForDumping()
}

// newArray allocates an Array holding vals.
func (lib *Library) newArray(vals ...vm.Value) *vm.Object {
	arr := vm.NewIndexedObject(lib.machine.ArrayClass, len(vals))
	for i, v := range vals {
		arr.AtPut(i, v)
	}
	return arr
}

// arrayOfSize reports whether v is an Array with exactly n elements.
func (lib *Library) arrayOfSize(v vm.Value, n int) bool {
	obj := v.Object()
	return obj != nil && obj.Class() == lib.machine.ArrayClass && obj.Size() == n
}

func mustSet(obj *vm.Object, name string, v vm.Value) {
	if err := obj.Set(name, v); err != nil {
		panic(err)
	}
}
