package corelib

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/cds/vm"
)

// ModuleSpec declares one module of the boot library's module graph.
type ModuleSpec struct {
	Name     string
	Loader   vm.LoaderKind
	Packages []string
}

// DefaultModules is the module graph resolved at startup.
var DefaultModules = []ModuleSpec{
	{Name: "core.base", Loader: vm.BootLoader, Packages: []string{NSLang, NSUtil, NSModule, NSInvoke}},
	{Name: "core.sql", Loader: vm.PlatformLoader, Packages: []string{"core.sql", "core.sql.driver"}},
	{Name: "core.net", Loader: vm.PlatformLoader, Packages: []string{"core.net", "core.net.http", "core.net.http.internal"}},
	{Name: "app", Loader: vm.SystemLoader, Packages: []string{"app", "app.internal"}},
}

func (lib *Library) initModuleGraph(_ *vm.VM, c *vm.Class) error {
	archived := c.Static("archivedGraph")
	if !lib.arrayOfSize(archived, len(DefaultModules)) {
		graph, err := lib.resolveModuleGraph(DefaultModules)
		if err != nil {
			return err
		}
		archived = vm.FromObject(graph)
		if err := c.SetStatic("archivedGraph", archived); err != nil {
			return err
		}
	}
	return c.SetStatic("descriptors", archived)
}

// resolveModuleGraph builds module descriptors. Each descriptor holds its
// packages as an immutable set; the set's table depends only on element
// hashes, so the graph is the same whatever the collections salt.
func (lib *Library) resolveModuleGraph(specs []ModuleSpec) (*vm.Object, error) {
	descs := make([]vm.Value, 0, len(specs))
	for _, spec := range specs {
		elems := make([]vm.Value, len(spec.Packages))
		for i, p := range spec.Packages {
			elems[i] = vm.FromString(p)
		}
		set, err := lib.SetOf(elems...)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", spec.Name, err)
		}

		d := lib.ModuleDescriptor.NewInstance()
		mustSet(d, "name", vm.FromString(spec.Name))
		mustSet(d, "loader", vm.FromString(spec.Loader.String()))
		mustSet(d, "packages", vm.FromObject(set))
		descs = append(descs, vm.FromObject(d))
	}
	return lib.newArray(descs...), nil
}

// Descriptors returns the resolved module specs from the module graph, with
// each module's packages sorted.
func (lib *Library) Descriptors() ([]ModuleSpec, error) {
	if err := lib.machine.InitializeClass(lib.ModuleGraph); err != nil {
		return nil, err
	}
	graph := lib.ModuleGraph.Static("descriptors").Object()
	if graph == nil {
		return nil, errors.New("module graph is not resolved")
	}
	specs := make([]ModuleSpec, 0, graph.Size())
	for i := 0; i < graph.Size(); i++ {
		d := graph.At(i).Object()
		if d == nil {
			return nil, fmt.Errorf("module descriptor %d is nil", i)
		}
		name, _ := d.Get("name")
		loader, _ := d.Get("loader")
		pkgs, _ := d.Get("packages")
		kind, err := vm.ParseLoaderKind(loader.Str())
		if err != nil {
			return nil, err
		}
		spec := ModuleSpec{Name: name.Str(), Loader: kind}
		err = lib.SetDo(pkgs.Object(), func(v vm.Value) {
			spec.Packages = append(spec.Packages, v.Str())
		})
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", spec.Name, err)
		}
		sort.Strings(spec.Packages)
		specs = append(specs, spec)
	}
	return specs, nil
}

// DefineModules defines every module of the graph on its loader, skipping
// modules the loader already has (for instance from an archive).
func (lib *Library) DefineModules(platform, system *vm.ClassLoader) error {
	specs, err := lib.Descriptors()
	if err != nil {
		return err
	}
	loaders := map[vm.LoaderKind]*vm.ClassLoader{
		vm.BootLoader:     lib.machine.BootLoader(),
		vm.PlatformLoader: platform,
		vm.SystemLoader:   system,
	}
	for _, spec := range specs {
		l := loaders[spec.Loader]
		if l == nil {
			return fmt.Errorf("module %s: no %s loader", spec.Name, spec.Loader)
		}
		if l.Module(spec.Name) != nil {
			continue
		}
		if err := l.DefineModule(vm.NewModule(spec.Name, spec.Packages...)); err != nil {
			return err
		}
	}
	return nil
}
