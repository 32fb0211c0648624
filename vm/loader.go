package vm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Class loaders and modules
// ---------------------------------------------------------------------------

// LoaderKind identifies one of the three foundational loaders.
type LoaderKind uint8

const (
	BootLoader LoaderKind = iota
	PlatformLoader
	SystemLoader
)

// String returns the loader kind name.
func (k LoaderKind) String() string {
	switch k {
	case BootLoader:
		return "boot"
	case PlatformLoader:
		return "platform"
	case SystemLoader:
		return "system"
	default:
		return "unknown"
	}
}

// ParseLoaderKind is the inverse of LoaderKind.String.
func ParseLoaderKind(s string) (LoaderKind, error) {
	switch s {
	case "boot":
		return BootLoader, nil
	case "platform":
		return PlatformLoader, nil
	case "system":
		return SystemLoader, nil
	}
	return 0, fmt.Errorf("unknown loader kind %q", s)
}

var ErrPackageConflict = errors.New("package already defined by another module")

// Module is a named group of namespaces (packages) owned by a loader.
type Module struct {
	Name     string
	Packages []string

	mu     sync.RWMutex
	loader *ClassLoader
}

// NewModule creates an unlinked module.
func NewModule(name string, packages ...string) *Module {
	pkgs := make([]string, len(packages))
	copy(pkgs, packages)
	sort.Strings(pkgs)
	return &Module{Name: name, Packages: pkgs}
}

// Loader returns the owning loader, nil while unlinked.
func (m *Module) Loader() *ClassLoader {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loader
}

// ClassLoader is a per-process loader instance. Loaders are never archived.
type ClassLoader struct {
	Kind   LoaderKind
	Name   string
	Parent *ClassLoader

	mu       sync.RWMutex
	modules  map[string]*Module
	packages map[string]*Module
}

// NewClassLoader creates a loader with the given parent.
func NewClassLoader(kind LoaderKind, parent *ClassLoader) *ClassLoader {
	return &ClassLoader{
		Kind:     kind,
		Name:     kind.String(),
		Parent:   parent,
		modules:  make(map[string]*Module),
		packages: make(map[string]*Module),
	}
}

// DefineModule links m to this loader and registers its packages. A package
// already claimed by a different module is a conflict and nothing changes.
func (l *ClassLoader) DefineModule(m *Module) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range m.Packages {
		if owner, ok := l.packages[p]; ok && owner.Name != m.Name {
			return fmt.Errorf("%w: %s in %s and %s", ErrPackageConflict, p, owner.Name, m.Name)
		}
	}
	l.modules[m.Name] = m
	for _, p := range m.Packages {
		l.packages[p] = m
	}
	m.mu.Lock()
	m.loader = l
	m.mu.Unlock()
	return nil
}

// Module returns the module defined under name, or nil.
func (l *ClassLoader) Module(name string) *Module {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.modules[name]
}

// ModuleForPackage returns the module that owns a package, or nil.
func (l *ClassLoader) ModuleForPackage(pkg string) *Module {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.packages[pkg]
}

// Modules returns the loader's modules sorted by name.
func (l *ClassLoader) Modules() []*Module {
	l.mu.RLock()
	out := make([]*Module, 0, len(l.modules))
	for _, m := range l.modules {
		out = append(out, m)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (l *ClassLoader) String() string {
	return l.Name
}
