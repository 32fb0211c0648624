package archive

import (
	"errors"
	"fmt"

	"github.com/chazu/cds/vm"
)

var (
	ErrModulesAlreadyDefined = errors.New("archived modules already defined")
	ErrNilLoader             = errors.New("archived modules need both platform and system loaders")
)

// DefineArchivedModules links every archived module to this process's
// loader instances. Loaders are never archived, so the records carry only
// the loader kind. It must run exactly once, after both loaders exist and
// before anything asks a restored module for its loader.
func (og *ObjectGraph) DefineArchivedModules(platform, system *vm.ClassLoader) error {
	if platform == nil || system == nil {
		return ErrNilLoader
	}
	if !og.modulesDefined.CompareAndSwap(false, true) {
		return ErrModulesAlreadyDefined
	}
	if !og.IsUsingArchive() {
		return nil
	}

	loaders := map[vm.LoaderKind]*vm.ClassLoader{
		vm.BootLoader:     og.machine.BootLoader(),
		vm.PlatformLoader: platform,
		vm.SystemLoader:   system,
	}

	var errs []error
	defined := 0
	for _, rec := range og.boot.Modules() {
		kind, err := vm.ParseLoaderKind(rec.Loader)
		if err != nil {
			errs = append(errs, fmt.Errorf("module %s: %w", rec.Name, err))
			continue
		}
		if err := loaders[kind].DefineModule(vm.NewModule(rec.Name, rec.Packages...)); err != nil {
			errs = append(errs, fmt.Errorf("module %s: %w", rec.Name, err))
			continue
		}
		defined++
	}
	log.Debugf("defined %d archived modules", defined)
	return errors.Join(errs...)
}
