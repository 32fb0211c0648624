package archive_test

import (
	"errors"
	"testing"

	"github.com/chazu/cds/archive"
	"github.com/chazu/cds/archive/image"
)

func TestDefineArchivedModules(t *testing.T) {
	f := newFixture(t, archive.FlagUsingArchive)
	f.boot.AddModule(image.ModuleRecord{Name: "core.base", Loader: "boot", Packages: []string{"core.lang"}})
	f.boot.AddModule(image.ModuleRecord{Name: "core.sql", Loader: "platform", Packages: []string{"core.sql"}})
	f.boot.AddModule(image.ModuleRecord{Name: "app", Loader: "system", Packages: []string{"app"}})
	platform, system := f.machine.CreateLoaders()

	if err := f.graph.DefineArchivedModules(platform, system); err != nil {
		t.Fatalf("DefineArchivedModules: %v", err)
	}
	checks := []struct {
		name string
		want interface{ String() string }
	}{
		{"core.base", f.machine.BootLoader()},
		{"core.sql", platform},
		{"app", system},
	}
	for _, c := range checks {
		var found bool
		for _, m := range f.machine.Modules() {
			if m.Name == c.name {
				found = true
				if m.Loader() == nil || m.Loader().String() != c.want.String() {
					t.Errorf("%s loader = %v, want %v", c.name, m.Loader(), c.want)
				}
			}
		}
		if !found {
			t.Errorf("module %s not defined", c.name)
		}
	}
	if system.ModuleForPackage("app") == nil {
		t.Error("package app should resolve on the system loader")
	}
}

func TestDefineArchivedModulesOnce(t *testing.T) {
	f := newFixture(t, archive.FlagUsingArchive)
	platform, system := f.machine.CreateLoaders()
	if err := f.graph.DefineArchivedModules(platform, system); err != nil {
		t.Fatal(err)
	}
	if err := f.graph.DefineArchivedModules(platform, system); !errors.Is(err, archive.ErrModulesAlreadyDefined) {
		t.Errorf("second call err = %v, want ErrModulesAlreadyDefined", err)
	}
}

func TestDefineArchivedModulesNilLoader(t *testing.T) {
	f := newFixture(t, archive.FlagUsingArchive)
	platform, _ := f.machine.CreateLoaders()
	if err := f.graph.DefineArchivedModules(platform, nil); !errors.Is(err, archive.ErrNilLoader) {
		t.Errorf("err = %v, want ErrNilLoader", err)
	}
	// A rejected call does not use up the single definition.
	_, system := f.machine.CreateLoaders()
	if err := f.graph.DefineArchivedModules(platform, system); err != nil {
		t.Errorf("retry after ErrNilLoader: %v", err)
	}
}

func TestDefineArchivedModulesNotUsing(t *testing.T) {
	f := newFixture(t, 0)
	f.boot.AddModule(image.ModuleRecord{Name: "app", Loader: "system", Packages: []string{"app"}})
	platform, system := f.machine.CreateLoaders()

	if err := f.graph.DefineArchivedModules(platform, system); err != nil {
		t.Fatalf("DefineArchivedModules: %v", err)
	}
	if len(f.machine.Modules()) != 0 {
		t.Error("no modules should be defined without an archive in use")
	}
}

func TestDefineArchivedModulesBadRecord(t *testing.T) {
	f := newFixture(t, archive.FlagUsingArchive)
	f.boot.AddModule(image.ModuleRecord{Name: "weird", Loader: "custom", Packages: []string{"w"}})
	f.boot.AddModule(image.ModuleRecord{Name: "app", Loader: "system", Packages: []string{"app"}})
	platform, system := f.machine.CreateLoaders()

	if err := f.graph.DefineArchivedModules(platform, system); err == nil {
		t.Fatal("unknown loader kind should be reported")
	}
	if system.Module("app") == nil {
		t.Error("valid records should still be defined")
	}
}
