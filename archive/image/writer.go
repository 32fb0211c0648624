package image

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/chazu/cds/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("cds.image")

// FieldSpec names archivable static fields of one class.
type FieldSpec struct {
	Class  string
	Fields []string
}

// ---------------------------------------------------------------------------
// Writer: serializes archived state of a live VM
// ---------------------------------------------------------------------------

// Writer collects archived state from a VM and writes an archive file.
type Writer struct {
	kind         Kind
	build        Build
	seed         int64
	baseChecksum uint64

	modules   []ModuleRecord
	classes   []string
	subgraphs map[string]*Subgraph

	// skipped records classes left out and why
	skipped map[string]error
}

// NewWriter creates a writer for an archive of the given kind.
func NewWriter(kind Kind, build Build, seed int64) *Writer {
	return &Writer{
		kind:      kind,
		build:     build,
		seed:      seed,
		subgraphs: make(map[string]*Subgraph),
		skipped:   make(map[string]error),
	}
}

// SetBaseChecksum records the directory checksum of the base archive a
// dynamic archive is layered on.
func (w *Writer) SetBaseChecksum(sum uint64) {
	w.baseChecksum = sum
}

// AddModules records module descriptors. Only modules linked to a loader
// are archived.
func (w *Writer) AddModules(mods []*vm.Module) {
	for _, m := range mods {
		l := m.Loader()
		if l == nil {
			continue
		}
		w.modules = append(w.modules, ModuleRecord{
			Name:     m.Name,
			Loader:   l.Kind.String(),
			Packages: append([]string(nil), m.Packages...),
		})
	}
}

// AddClassList records the names of classes loaded while dumping.
func (w *Writer) AddClassList(names []string) {
	w.classes = append(w.classes, names...)
}

// Skipped returns the classes whose subgraphs were rejected, with reasons.
func (w *Writer) Skipped() map[string]error {
	out := make(map[string]error, len(w.skipped))
	for k, v := range w.skipped {
		out[k] = v
	}
	return out
}

// Archived returns the names of classes with an archived subgraph.
func (w *Writer) Archived() []string {
	names := make([]string, 0, len(w.subgraphs))
	for name := range w.subgraphs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ArchiveFields collects the subgraph of each spec. A spec whose graph
// cannot be archived is skipped as a whole and recorded in Skipped; it does
// not fail the dump.
func (w *Writer) ArchiveFields(machine *vm.VM, specs []FieldSpec) error {
	if w.kind == KindDynamic {
		return ErrHeapInDynamic
	}
	for _, spec := range specs {
		sg, err := collectSubgraph(machine, spec)
		if err != nil {
			log.Infof("not archiving %s: %v", spec.Class, err)
			w.skipped[spec.Class] = err
			continue
		}
		w.subgraphs[spec.Class] = sg
		log.Debugf("archived %s: %d fields, %d objects", spec.Class, len(sg.Fields), len(sg.Objects))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Subgraph collection
// ---------------------------------------------------------------------------

type collector struct {
	index   map[*vm.Object]int
	objects []*vm.Object
	klasses []string
	seen    map[string]bool
}

func collectSubgraph(machine *vm.VM, spec FieldSpec) (*Subgraph, error) {
	c := machine.Classes.Lookup(spec.Class)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", vm.ErrClassNotFound, spec.Class)
	}
	if !c.IsInitialized() {
		return nil, fmt.Errorf("%w: %s is not initialized", ErrNotArchivable, spec.Class)
	}
	if c.Loader != machine.BootLoader() {
		return nil, fmt.Errorf("%w: %s is not defined by the boot loader", ErrNotArchivable, spec.Class)
	}

	col := &collector{
		index: make(map[*vm.Object]int),
		seen:  map[string]bool{c.FullName(): true},
	}
	sg := &Subgraph{Class: c.FullName()}

	for _, name := range spec.Fields {
		if !c.HasStatic(name) {
			return nil, fmt.Errorf("%w: %s has no static field %q", ErrNotArchivable, spec.Class, name)
		}
		rec, err := col.value(machine, c.Static(name))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		sg.Fields = append(sg.Fields, FieldRecord{Name: name, Value: rec})
	}

	// Breadth first over the reachable objects; col.objects grows as
	// references are discovered.
	for i := 0; i < len(col.objects); i++ {
		obj := col.objects[i]
		rec := ObjectRecord{Class: obj.ClassName(), Indexed: obj.IsIndexed()}
		err := obj.ForEachReference(func(v vm.Value, element bool) error {
			vr, err := col.value(machine, v)
			if err != nil {
				return err
			}
			if element {
				rec.Elements = append(rec.Elements, vr)
			} else {
				rec.Slots = append(rec.Slots, vr)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sg.Objects = append(sg.Objects, rec)
	}
	sg.Klasses = col.klasses
	return sg, nil
}

func (col *collector) value(machine *vm.VM, v vm.Value) (ValueRecord, error) {
	switch v.Tag() {
	case vm.TagNil:
		return ValueRecord{Tag: ValueNil}, nil
	case vm.TagInt:
		return ValueRecord{Tag: ValueInt, Int: v.SmallInt()}, nil
	case vm.TagBool:
		var n int64
		if v.Bool() {
			n = 1
		}
		return ValueRecord{Tag: ValueBool, Int: n}, nil
	case vm.TagString:
		return ValueRecord{Tag: ValueString, Str: v.Str()}, nil
	case vm.TagObject:
		obj := v.Object()
		if idx, ok := col.index[obj]; ok {
			return ValueRecord{Tag: ValueRef, Ref: idx}, nil
		}
		cls := obj.Class()
		if cls.Loader != machine.BootLoader() {
			return ValueRecord{}, fmt.Errorf("%w: references %s from the %s loader",
				ErrNotArchivable, cls.FullName(), cls.Loader)
		}
		name := cls.FullName()
		if !col.seen[name] {
			col.seen[name] = true
			col.klasses = append(col.klasses, name)
		}
		idx := len(col.objects)
		col.index[obj] = idx
		col.objects = append(col.objects, obj)
		return ValueRecord{Tag: ValueRef, Ref: idx}, nil
	}
	return ValueRecord{}, fmt.Errorf("%w: unknown value tag %s", ErrNotArchivable, v.Tag())
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

// Bytes encodes the archive.
func (w *Writer) Bytes() ([]byte, error) {
	names := w.Archived()

	var heap bytes.Buffer
	dir := &Directory{
		Build:   w.build,
		Seed:    w.seed,
		Modules: w.sortedModules(),
		Classes: sortedUnique(w.classes),
	}
	for _, name := range names {
		sg := w.subgraphs[name]
		data, err := MarshalSubgraph(sg)
		if err != nil {
			return nil, fmt.Errorf("encoding subgraph %s: %w", name, err)
		}
		dir.Subgraphs = append(dir.Subgraphs, SubgraphEntry{
			Class:    name,
			Offset:   uint64(heap.Len()),
			Length:   uint64(len(data)),
			Checksum: Checksum(data),
			Objects:  len(sg.Objects),
		})
		heap.Write(data)
	}

	dirBytes, err := MarshalDirectory(dir)
	if err != nil {
		return nil, fmt.Errorf("encoding directory: %w", err)
	}

	var flags Flags
	if len(dir.Subgraphs) > 0 {
		flags |= FlagHeapObjects
	}
	if len(dir.Modules) > 0 {
		flags |= FlagModules
	}
	hdr := Header{
		Version:      Version,
		Kind:         w.kind,
		Flags:        flags,
		DirLength:    uint64(len(dirBytes)),
		DirChecksum:  Checksum(dirBytes),
		BaseChecksum: w.baseChecksum,
	}
	hdrBytes, err := hdr.MarshalBinary()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(hdrBytes)+len(dirBytes)+heap.Len())
	out = append(out, hdrBytes...)
	out = append(out, dirBytes...)
	out = append(out, heap.Bytes()...)
	return out, nil
}

// WriteTo writes the encoded archive to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	data, err := w.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := out.Write(data)
	return int64(n), err
}

// WriteFile writes the archive to path atomically.
func (w *Writer) WriteFile(path string) error {
	data, err := w.Bytes()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create archive directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cds-*")
	if err != nil {
		return fmt.Errorf("cannot create archive: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("cannot write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("cannot install archive %s: %w", path, err)
	}
	log.Infof("wrote %s archive %s (%d bytes, %d subgraphs)", w.kind, path, len(data), len(w.subgraphs))
	return nil
}

func (w *Writer) sortedModules() []ModuleRecord {
	mods := append([]ModuleRecord(nil), w.modules...)
	sort.Slice(mods, func(i, j int) bool { return mods[i].Name < mods[j].Name })
	return mods
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	cp := append([]string(nil), in...)
	sort.Strings(cp)
	out := cp[:1]
	for _, s := range cp[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
