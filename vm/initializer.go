package vm

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Class initialization protocol
// ---------------------------------------------------------------------------

// InitState is the per-class static initialization state.
type InitState uint8

const (
	// Uninitialized is the state of a freshly defined class.
	Uninitialized InitState = iota
	// BeingInitialized means one goroutine is running the initializer.
	BeingInitialized
	// Initialized is terminal success.
	Initialized
	// Erroneous is terminal failure; the initializer is never retried.
	Erroneous
)

// String returns the string representation of the state
func (s InitState) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case BeingInitialized:
		return "BeingInitialized"
	case Initialized:
		return "Initialized"
	case Erroneous:
		return "Erroneous"
	default:
		return "Unknown"
	}
}

var (
	ErrInitializerFailed = errors.New("static initializer failed")
	ErrErroneousClass    = errors.New("class is in erroneous state")
	ErrClassNotFound     = errors.New("class not found")
)

// ArchiveHook lets a mapped archive populate archived static fields before a
// class's ordinary static initializer runs.
type ArchiveHook interface {
	IsUsingArchive() bool
	InitializeFromArchive(c *Class)
}

// InitState returns the class's current initialization state.
func (c *Class) InitState() InitState {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.initState
}

// IsInitialized reports whether the class finished initialization successfully.
func (c *Class) IsInitialized() bool {
	return c.InitState() == Initialized
}

// InitializeClass runs c's static initialization at most once.
//
// Concurrent callers block until the initializing goroutine finishes. A
// recursive request from the initializing goroutine returns nil immediately,
// which lets initializers of mutually referencing classes make progress.
// The superclass is initialized first. When an ArchiveHook is installed and
// reports an archive in use, archived statics are restored before the
// ordinary initializer runs.
func (vm *VM) InitializeClass(c *Class) error {
	gid := getGoroutineID()

	c.initMu.Lock()
	for c.initState == BeingInitialized && c.initGID != gid {
		c.initCond.Wait()
	}
	switch c.initState {
	case Initialized:
		c.initMu.Unlock()
		return nil
	case Erroneous:
		cause := c.initErr
		c.initMu.Unlock()
		return fmt.Errorf("%w: %s: %w", ErrErroneousClass, c.FullName(), cause)
	case BeingInitialized:
		c.initMu.Unlock()
		return nil
	}
	c.initState = BeingInitialized
	c.initGID = gid
	c.initMu.Unlock()

	err := vm.runInitializer(c)

	c.initMu.Lock()
	if err != nil {
		c.initState = Erroneous
		c.initErr = err
		log.Debugf("%s is erroneous: %v", c.FullName(), err)
	} else {
		c.initState = Initialized
	}
	c.initGID = 0
	c.initCond.Broadcast()
	c.initMu.Unlock()
	return err
}

// InitializeClassNamed looks up a class by full name and initializes it.
func (vm *VM) InitializeClassNamed(name string) (*Class, error) {
	c := vm.Classes.Lookup(name)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	return c, vm.InitializeClass(c)
}

func (vm *VM) runInitializer(c *Class) (err error) {
	if c.Superclass != nil {
		if err := vm.InitializeClass(c.Superclass); err != nil {
			return fmt.Errorf("initializing superclass of %s: %w", c.FullName(), err)
		}
	}

	if hook := vm.ArchiveHook(); hook != nil && hook.IsUsingArchive() {
		log.Debugf("%s: initializing from archive", c.FullName())
		hook.InitializeFromArchive(c)
	}

	if c.Init == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrInitializerFailed, c.FullName(), r)
		}
	}()
	if ierr := c.Init(vm, c); ierr != nil {
		return fmt.Errorf("%w: %s: %w", ErrInitializerFailed, c.FullName(), ierr)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Goroutine identity
// ---------------------------------------------------------------------------

// getGoroutineID returns the current goroutine's ID by parsing the stack.
// This is a workaround since Go doesn't expose goroutine IDs directly.
func getGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Stack starts with "goroutine <id> [...]"
	s := string(buf[:n])
	s = strings.TrimPrefix(s, "goroutine ")
	idx := strings.Index(s, " ")
	if idx > 0 {
		s = s[:idx]
	}
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}
