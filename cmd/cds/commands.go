package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/chazu/cds/archive"
	"github.com/chazu/cds/archive/image"
	"github.com/chazu/cds/config"
	"github.com/chazu/cds/corelib"
	"github.com/chazu/cds/vm"
)

func cmdStatus(cfg *config.Config) error {
	s, err := boot(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "mode\t%s\n", cfg.Archive.Mode)
	fmt.Fprintf(w, "status\t%s\n", s.gate.Status())
	fmt.Fprintf(w, "dumping\t%v\n", archive.IsDumpingArchive())
	fmt.Fprintf(w, "dumping static\t%v\n", archive.IsDumpingStaticArchive())
	fmt.Fprintf(w, "dumping dynamic\t%v\n", s.gate.IsDumpingDynamicArchive())
	fmt.Fprintf(w, "using\t%v\n", archive.IsUsingArchive())
	fmt.Fprintf(w, "logging lambda forms\t%v\n", archive.IsLoggingLambdaFormInvokers())
	fmt.Fprintf(w, "dump seed\t%#x\n", uint64(archive.GetRandomSeedForDumping()))
	if base := s.boot.Base(); base != nil {
		fmt.Fprintf(w, "base\t%s\n", base.Path())
	}
	if top := s.boot.Top(); top != nil {
		fmt.Fprintf(w, "top\t%s\n", top.Path())
	}
	return w.Flush()
}

func cmdRun(cfg *config.Config) error {
	s, err := boot(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "CLASS\tMODULE\tSTATE\tARCHIVE\n")
	for _, c := range s.lib.Classes() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.FullName(), moduleOf(c), c.InitState(), s.graph.Result(c.FullName()))
	}
	restored, skipped := s.graph.Counts()
	fmt.Fprintf(w, "\nrestored\t%d\n", restored)
	fmt.Fprintf(w, "skipped\t%d\n", skipped)

	if one, err := s.lib.ValueOf(1); err == nil {
		v, _ := one.Get("value")
		fmt.Fprintf(w, "Integer(1)\t%s\n", v)
	}
	if us, err := s.lib.LocaleFor("en", "US"); err == nil {
		fmt.Fprintf(w, "default locale\t%s\n", corelib.LocaleTag(us))
	}
	for _, m := range s.machine.Modules() {
		fmt.Fprintf(w, "module %s\t%s\t%v\n", m.Name, m.Loader(), m.Packages)
	}
	forms, species := s.invokers.Generated()
	fmt.Fprintf(w, "invoker forms\t%d\n", forms)
	fmt.Fprintf(w, "species\t%d\n", species)
	return w.Flush()
}

func cmdDump(cfg *config.Config) error {
	if !cfg.Archive.Mode.Dumping() {
		return fmt.Errorf("archive.mode %q does not dump; use -mode dump-static or dump-dynamic", cfg.Archive.Mode)
	}
	s, err := boot(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.boot.Dump(s.machine, s.gate.GetRandomSeedForDumping(), corelib.ArchivableFields())
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s archive %s (%d classes)\n", report.Kind, report.Path, report.Classes)
	for _, name := range report.Archived {
		fmt.Printf("  archived %s\n", name)
	}
	for name, err := range report.Skipped {
		fmt.Printf("  skipped %s: %v\n", name, err)
	}
	return nil
}

func cmdInspect(cfg *config.Config, path string) error {
	if path == "" {
		path = cfg.ArchivePath()
	}
	a, err := image.Open(path)
	if err != nil {
		return err
	}
	defer a.Close()

	h := a.Header()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "path\t%s\n", a.Path())
	fmt.Fprintf(w, "kind\t%s\n", a.Kind())
	fmt.Fprintf(w, "version\t%d\n", h.Version)
	fmt.Fprintf(w, "identity\t%#016x\n", a.Identity())
	if h.BaseChecksum != 0 {
		fmt.Fprintf(w, "base\t%#016x\n", h.BaseChecksum)
	}
	fmt.Fprintf(w, "build\t%s\n", a.Build())
	fmt.Fprintf(w, "seed\t%#x\n", uint64(a.Seed()))
	fmt.Fprintf(w, "classes\t%d\n", len(a.Classes()))
	for _, m := range a.Modules() {
		fmt.Fprintf(w, "module %s\t%s\t%v\n", m.Name, m.Loader, m.Packages)
	}
	for _, e := range a.Entries() {
		fmt.Fprintf(w, "subgraph %s\t%d objects\t%d bytes\n", e.Class, e.Objects, e.Length)
	}
	return w.Flush()
}

// moduleOf names the module that owns c's package on its loader.
func moduleOf(c *vm.Class) string {
	if c.Loader == nil {
		return "-"
	}
	if m := c.Loader.ModuleForPackage(c.Namespace); m != nil {
		return m.Name
	}
	return "-"
}
