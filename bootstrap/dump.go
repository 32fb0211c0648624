package bootstrap

import (
	"errors"

	"github.com/chazu/cds/archive/image"
	"github.com/chazu/cds/config"
	"github.com/chazu/cds/vm"
)

var (
	ErrNotDumping = errors.New("process is not dumping an archive")
	ErrNoBase     = errors.New("dynamic dump needs a mapped base archive")
)

// DumpReport summarizes a written archive.
type DumpReport struct {
	Path     string
	Kind     image.Kind
	Archived []string
	Skipped  map[string]error
	Classes  int
}

// Dump writes the archive selected by the configuration from the state of
// machine. A static dump archives the subgraphs named by specs and the
// modules of all loaders; a dynamic dump records the classes loaded on top
// of the base archive.
func (b *Bootstrap) Dump(machine *vm.VM, seed int64, specs []image.FieldSpec) (*DumpReport, error) {
	st, err := b.Status()
	if err != nil {
		return nil, err
	}
	if !st.DumpingArchive() {
		return nil, ErrNotDumping
	}

	var classes []string
	for _, c := range machine.Classes.All() {
		if c.IsInitialized() {
			classes = append(classes, c.FullName())
		}
	}

	if st.DumpingStaticArchive() {
		w := image.NewWriter(image.KindStatic, b.build, seed)
		w.AddModules(machine.Modules())
		w.AddClassList(classes)
		if err := w.ArchiveFields(machine, specs); err != nil {
			return nil, err
		}
		path := b.cfg.ArchivePath()
		if err := w.WriteFile(path); err != nil {
			return nil, err
		}
		return &DumpReport{
			Path:     path,
			Kind:     image.KindStatic,
			Archived: w.Archived(),
			Skipped:  w.Skipped(),
			Classes:  len(classes),
		}, nil
	}

	base := b.Base()
	if base == nil {
		return nil, ErrNoBase
	}
	inBase := make(map[string]bool)
	for _, name := range base.Classes() {
		inBase[name] = true
	}
	var extra []string
	for _, name := range classes {
		if !inBase[name] {
			extra = append(extra, name)
		}
	}

	w := image.NewWriter(image.KindDynamic, b.build, 0)
	w.SetBaseChecksum(base.Identity())
	w.AddClassList(extra)
	path := b.cfg.TopPath()
	if b.cfg.Archive.Mode != config.ModeDumpDynamic || path == "" {
		return nil, errors.New("dynamic dump needs archive.top")
	}
	if err := w.WriteFile(path); err != nil {
		return nil, err
	}
	return &DumpReport{Path: path, Kind: image.KindDynamic, Classes: len(extra)}, nil
}
