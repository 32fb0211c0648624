package archive

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chazu/cds/archive/image"
	"github.com/chazu/cds/vm"
)

// ---------------------------------------------------------------------------
// ObjectGraph: archived static restoration
// ---------------------------------------------------------------------------

// ObjectGraph restores archived static fields into a VM's classes. It
// implements vm.ArchiveHook.
//
// Restoration is an optimization only: every failure leaves the class's
// statics untouched and the ordinary static initializer computes them.
type ObjectGraph struct {
	*Gate
	machine *vm.VM

	mu      sync.Mutex
	results map[string]Result

	modulesDefined atomic.Bool
}

var _ vm.ArchiveHook = (*ObjectGraph)(nil)

// NewObjectGraph binds a gate to a VM.
func NewObjectGraph(g *Gate, machine *vm.VM) *ObjectGraph {
	return &ObjectGraph{
		Gate:    g,
		machine: machine,
		results: make(map[string]Result),
	}
}

// InitializeFromArchive populates c's archived statics, or leaves them all
// at their defaults. It never fails. Callers check IsUsingArchive first;
// without an archive in use it does nothing.
func (og *ObjectGraph) InitializeFromArchive(c *vm.Class) {
	og.TryInitializeFromArchive(c)
}

// TryInitializeFromArchive is InitializeFromArchive reporting the outcome.
func (og *ObjectGraph) TryInitializeFromArchive(c *vm.Class) Result {
	if !og.IsUsingArchive() {
		return NotAttempted
	}
	name := c.FullName()

	og.mu.Lock()
	if r, ok := og.results[name]; ok {
		og.mu.Unlock()
		return r
	}
	og.mu.Unlock()

	r := Skipped
	if err := og.restore(c); err != nil {
		if errors.Is(err, image.ErrNoSubgraph) {
			log.Debugf("%s: no archived subgraph", name)
		} else {
			log.Debugf("%s: archived subgraph not restored: %v", name, err)
		}
	} else {
		r = Restored
		log.Debugf("%s: restored archived statics", name)
	}

	og.mu.Lock()
	defer og.mu.Unlock()
	if prev, ok := og.results[name]; ok {
		return prev
	}
	og.results[name] = r
	return r
}

// Result returns the recorded outcome for a class.
func (og *ObjectGraph) Result(class string) Result {
	og.mu.Lock()
	defer og.mu.Unlock()
	return og.results[class]
}

// Counts returns how many classes were restored and skipped.
func (og *ObjectGraph) Counts() (restored, skipped int) {
	og.mu.Lock()
	defer og.mu.Unlock()
	for _, r := range og.results {
		switch r {
		case Restored:
			restored++
		case Skipped:
			skipped++
		}
	}
	return restored, skipped
}

func (og *ObjectGraph) restore(c *vm.Class) error {
	sg, err := og.boot.Subgraph(c.FullName())
	if err != nil {
		return err
	}
	if sg == nil || sg.Class != c.FullName() {
		return fmt.Errorf("%w: record does not describe %s", image.ErrCorruptRecord, c.FullName())
	}
	for _, f := range sg.Fields {
		if !c.HasStatic(f.Name) {
			return fmt.Errorf("archived field %q is not declared", f.Name)
		}
	}

	// Every class the subgraph needs must be initialized before any of its
	// objects become reachable from c.
	allowed := map[string]*vm.Class{c.FullName(): c}
	for _, name := range sg.Klasses {
		k := og.machine.Classes.Lookup(name)
		if k == nil {
			return fmt.Errorf("%w: referenced class %s", vm.ErrClassNotFound, name)
		}
		if err := og.machine.InitializeClass(k); err != nil {
			return fmt.Errorf("initializing referenced class %s: %w", name, err)
		}
		allowed[name] = k
	}

	values, err := materialize(sg, allowed)
	if err != nil {
		return err
	}
	return c.SetStatics(values)
}

// materialize builds fresh heap objects for a subgraph. Nothing is visible
// to the VM until the caller commits the returned field values.
func materialize(sg *image.Subgraph, classes map[string]*vm.Class) (map[string]vm.Value, error) {
	objs := make([]*vm.Object, len(sg.Objects))
	for i, rec := range sg.Objects {
		cls, ok := classes[rec.Class]
		if !ok {
			return nil, fmt.Errorf("%w: object %d has unlisted class %s", image.ErrCorruptRecord, i, rec.Class)
		}
		if len(rec.Slots) != cls.NumSlots {
			return nil, fmt.Errorf("%w: %s has %d slots, archive has %d", image.ErrCorruptRecord, rec.Class, cls.NumSlots, len(rec.Slots))
		}
		if rec.Indexed {
			objs[i] = vm.NewIndexedObject(cls, len(rec.Elements))
		} else {
			if len(rec.Elements) > 0 {
				return nil, fmt.Errorf("%w: object %d has elements but is not indexed", image.ErrCorruptRecord, i)
			}
			objs[i] = vm.NewObject(cls)
		}
	}

	for i, rec := range sg.Objects {
		for j, vr := range rec.Slots {
			v, err := decodeValue(vr, objs)
			if err != nil {
				return nil, err
			}
			objs[i].SetSlot(j, v)
		}
		for j, vr := range rec.Elements {
			v, err := decodeValue(vr, objs)
			if err != nil {
				return nil, err
			}
			objs[i].AtPut(j, v)
		}
	}

	values := make(map[string]vm.Value, len(sg.Fields))
	for _, f := range sg.Fields {
		v, err := decodeValue(f.Value, objs)
		if err != nil {
			return nil, err
		}
		values[f.Name] = v
	}
	return values, nil
}

func decodeValue(vr image.ValueRecord, objs []*vm.Object) (vm.Value, error) {
	switch vr.Tag {
	case image.ValueNil:
		return vm.Nil, nil
	case image.ValueInt:
		return vm.FromSmallInt(vr.Int), nil
	case image.ValueBool:
		return vm.FromBool(vr.Int != 0), nil
	case image.ValueString:
		return vm.FromString(vr.Str), nil
	case image.ValueRef:
		if vr.Ref < 0 || vr.Ref >= len(objs) {
			return vm.Nil, fmt.Errorf("%w: reference %d out of range", image.ErrCorruptRecord, vr.Ref)
		}
		return vm.FromObject(objs[vr.Ref]), nil
	}
	return vm.Nil, fmt.Errorf("%w: unknown value tag %d", image.ErrCorruptRecord, vr.Tag)
}
