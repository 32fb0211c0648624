package vm

import (
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("cds.vm")

// ---------------------------------------------------------------------------
// VM: the virtual machine
// ---------------------------------------------------------------------------

// VM owns the class table, the foundational loaders and the class
// initialization engine.
type VM struct {
	// Global tables
	Classes *ClassTable

	// Well-known classes
	ObjectClass *Class
	ArrayClass  *Class

	bootLoader *ClassLoader

	mu             sync.RWMutex
	platformLoader *ClassLoader
	systemLoader   *ClassLoader
	hook           ArchiveHook
}

// NewVM creates and bootstraps a new VM. Only the boot loader exists until
// CreateLoaders runs.
func NewVM() *VM {
	vm := &VM{
		Classes:    NewClassTable(),
		bootLoader: NewClassLoader(BootLoader, nil),
	}
	vm.bootstrap()
	return vm
}

// ---------------------------------------------------------------------------
// Bootstrap: Create core classes
// ---------------------------------------------------------------------------

func (vm *VM) bootstrap() {
	vm.ObjectClass = NewClass("Object", nil)
	vm.ObjectClass.Loader = vm.bootLoader
	vm.Classes.Register(vm.ObjectClass)

	vm.ArrayClass = NewClass("Array", vm.ObjectClass)
	vm.ArrayClass.Loader = vm.bootLoader
	vm.Classes.Register(vm.ArrayClass)
}

// DefineClass registers c under loader l (the boot loader when nil).
// Redefining an existing name is an error.
func (vm *VM) DefineClass(c *Class, l *ClassLoader) error {
	if l == nil {
		l = vm.bootLoader
	}
	if existing := vm.Classes.Lookup(c.FullName()); existing != nil {
		return fmt.Errorf("class %s already defined", c.FullName())
	}
	c.Loader = l
	vm.Classes.Register(c)
	return nil
}

// ---------------------------------------------------------------------------
// Loaders
// ---------------------------------------------------------------------------

// BootLoader returns the boot loader.
func (vm *VM) BootLoader() *ClassLoader {
	return vm.bootLoader
}

// CreateLoaders builds this process's platform and system loaders. It is
// idempotent and returns the existing pair on later calls.
func (vm *VM) CreateLoaders() (platform, system *ClassLoader) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.platformLoader == nil {
		vm.platformLoader = NewClassLoader(PlatformLoader, vm.bootLoader)
		vm.systemLoader = NewClassLoader(SystemLoader, vm.platformLoader)
	}
	return vm.platformLoader, vm.systemLoader
}

// PlatformLoader returns the platform loader, nil before CreateLoaders.
func (vm *VM) PlatformLoader() *ClassLoader {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.platformLoader
}

// SystemLoader returns the system loader, nil before CreateLoaders.
func (vm *VM) SystemLoader() *ClassLoader {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.systemLoader
}

// Loader returns the loader of the given kind, nil if not yet created.
func (vm *VM) Loader(kind LoaderKind) *ClassLoader {
	switch kind {
	case BootLoader:
		return vm.bootLoader
	case PlatformLoader:
		return vm.PlatformLoader()
	case SystemLoader:
		return vm.SystemLoader()
	}
	return nil
}

// Modules returns every module defined by any of the three loaders.
func (vm *VM) Modules() []*Module {
	var out []*Module
	for _, kind := range []LoaderKind{BootLoader, PlatformLoader, SystemLoader} {
		if l := vm.Loader(kind); l != nil {
			out = append(out, l.Modules()...)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Archive hook
// ---------------------------------------------------------------------------

// SetArchiveHook installs the hook consulted before static initializers.
func (vm *VM) SetArchiveHook(h ArchiveHook) {
	vm.mu.Lock()
	vm.hook = h
	vm.mu.Unlock()
}

// ArchiveHook returns the installed hook, or nil.
func (vm *VM) ArchiveHook() ArchiveHook {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.hook
}
