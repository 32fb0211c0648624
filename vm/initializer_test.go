package vm

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type recordingHook struct {
	using bool
	mu    sync.Mutex
	calls []string
	fn    func(c *Class)
}

func (h *recordingHook) IsUsingArchive() bool { return h.using }

func (h *recordingHook) InitializeFromArchive(c *Class) {
	h.mu.Lock()
	h.calls = append(h.calls, c.FullName())
	h.mu.Unlock()
	if h.fn != nil {
		h.fn(c)
	}
}

func defineTestClass(t *testing.T, v *VM, name string, init StaticInitializer) *Class {
	t.Helper()
	c := NewClass(name, v.ObjectClass)
	c.Init = init
	if err := v.DefineClass(c, nil); err != nil {
		t.Fatalf("DefineClass(%s): %v", name, err)
	}
	return c
}

func TestInitializeClassRunsOnce(t *testing.T) {
	v := NewVM()
	var runs atomic.Int32
	c := defineTestClass(t, v, "Once", func(*VM, *Class) error {
		runs.Add(1)
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := v.InitializeClass(c); err != nil {
			t.Fatalf("InitializeClass: %v", err)
		}
	}
	if runs.Load() != 1 {
		t.Errorf("initializer ran %d times, want 1", runs.Load())
	}
	if !c.IsInitialized() {
		t.Errorf("state = %s, want Initialized", c.InitState())
	}
}

func TestInitializeClassSuperclassFirst(t *testing.T) {
	v := NewVM()
	var order []string
	base := defineTestClass(t, v, "Base", func(_ *VM, c *Class) error {
		order = append(order, c.Name)
		return nil
	})
	sub := NewClass("Sub", base)
	sub.Init = func(_ *VM, c *Class) error {
		order = append(order, c.Name)
		return nil
	}
	v.DefineClass(sub, nil)

	if err := v.InitializeClass(sub); err != nil {
		t.Fatalf("InitializeClass: %v", err)
	}
	if len(order) != 2 || order[0] != "Base" || order[1] != "Sub" {
		t.Errorf("order = %v, want [Base Sub]", order)
	}
}

func TestInitializeClassRecursive(t *testing.T) {
	v := NewVM()
	var a, b *Class
	var sawState InitState
	a = defineTestClass(t, v, "A", func(vm *VM, _ *Class) error {
		return vm.InitializeClass(b)
	})
	b = defineTestClass(t, v, "B", func(vm *VM, _ *Class) error {
		// A is mid-initialization on this goroutine.
		if err := vm.InitializeClass(a); err != nil {
			return err
		}
		sawState = a.InitState()
		return nil
	})

	if err := v.InitializeClass(a); err != nil {
		t.Fatalf("InitializeClass: %v", err)
	}
	if sawState != BeingInitialized {
		t.Errorf("recursive request saw %s, want BeingInitialized", sawState)
	}
	if !a.IsInitialized() || !b.IsInitialized() {
		t.Error("both classes should be initialized")
	}
}

func TestInitializeClassConcurrentWaiters(t *testing.T) {
	v := NewVM()
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32
	c := defineTestClass(t, v, "Slow", nil)
	c.DeclareStatic("value")
	c.Init = func(_ *VM, c *Class) error {
		runs.Add(1)
		close(started)
		<-release
		return c.SetStatic("value", FromSmallInt(7))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- v.InitializeClass(c)
	}()
	<-started

	for i := 0; i < 7; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := v.InitializeClass(c)
			if err == nil && c.Static("value").IsNil() {
				err = errors.New("waiter returned before the initializer finished")
			}
			errs <- err
		}()
	}
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if runs.Load() != 1 {
		t.Errorf("initializer ran %d times, want 1", runs.Load())
	}
}

func TestInitializeClassErroneous(t *testing.T) {
	v := NewVM()
	boom := errors.New("boom")
	var runs int
	c := defineTestClass(t, v, "Broken", func(*VM, *Class) error {
		runs++
		return boom
	})

	err := v.InitializeClass(c)
	if !errors.Is(err, ErrInitializerFailed) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want ErrInitializerFailed wrapping boom", err)
	}
	if c.InitState() != Erroneous {
		t.Errorf("state = %s, want Erroneous", c.InitState())
	}

	err = v.InitializeClass(c)
	if !errors.Is(err, ErrErroneousClass) {
		t.Errorf("second call err = %v, want ErrErroneousClass", err)
	}
	if runs != 1 {
		t.Errorf("initializer ran %d times, want 1", runs)
	}
}

func TestInitializeClassRecoversPanic(t *testing.T) {
	v := NewVM()
	c := defineTestClass(t, v, "Panics", func(*VM, *Class) error {
		panic("bad state")
	})
	if err := v.InitializeClass(c); !errors.Is(err, ErrInitializerFailed) {
		t.Errorf("err = %v, want ErrInitializerFailed", err)
	}
}

func TestInitializeClassSuperclassFailure(t *testing.T) {
	v := NewVM()
	base := defineTestClass(t, v, "Base", func(*VM, *Class) error { return errors.New("no") })
	sub := NewClass("Sub", base)
	v.DefineClass(sub, nil)

	if err := v.InitializeClass(sub); err == nil {
		t.Fatal("subclass of an erroneous class should fail")
	}
	if sub.InitState() != Erroneous {
		t.Errorf("sub state = %s, want Erroneous", sub.InitState())
	}
}

func TestInitializeClassArchiveHook(t *testing.T) {
	v := NewVM()
	c := defineTestClass(t, v, "Cached", nil)
	c.DeclareStatic("archived", "derived")
	c.Init = func(_ *VM, c *Class) error {
		if c.Static("archived").IsNil() {
			c.SetStatic("archived", FromSmallInt(1))
		}
		return c.SetStatic("derived", FromSmallInt(c.Static("archived").SmallInt()*10))
	}

	hook := &recordingHook{using: true, fn: func(c *Class) {
		if c.HasStatic("archived") {
			c.SetStatic("archived", FromSmallInt(5))
		}
	}}
	v.SetArchiveHook(hook)

	if err := v.InitializeClass(c); err != nil {
		t.Fatalf("InitializeClass: %v", err)
	}
	if got := c.Static("derived").SmallInt(); got != 50 {
		t.Errorf("derived = %d, want 50 (initializer should see the restored value)", got)
	}
	// Object is initialized as the superclass, so the hook sees it first.
	if len(hook.calls) != 2 || hook.calls[0] != "Object" || hook.calls[1] != "Cached" {
		t.Errorf("hook calls = %v, want [Object Cached]", hook.calls)
	}
}

func TestInitializeClassHookNotUsing(t *testing.T) {
	v := NewVM()
	c := defineTestClass(t, v, "Plain", nil)
	hook := &recordingHook{using: false}
	v.SetArchiveHook(hook)

	if err := v.InitializeClass(c); err != nil {
		t.Fatalf("InitializeClass: %v", err)
	}
	if len(hook.calls) != 0 {
		t.Errorf("hook called %v while no archive is in use", hook.calls)
	}
}

func TestInitializeClassNamed(t *testing.T) {
	v := NewVM()
	c := NewClassInNamespace("ns", "Named", v.ObjectClass)
	v.DefineClass(c, nil)

	got, err := v.InitializeClassNamed("ns::Named")
	if err != nil || got != c {
		t.Fatalf("InitializeClassNamed = %v, %v", got, err)
	}
	if _, err := v.InitializeClassNamed("ns::Missing"); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("err = %v, want ErrClassNotFound", err)
	}
}

func TestGetGoroutineID(t *testing.T) {
	id := getGoroutineID()
	if id <= 0 {
		t.Fatalf("getGoroutineID() = %d", id)
	}
	other := make(chan int64)
	go func() { other <- getGoroutineID() }()
	if <-other == id {
		t.Error("different goroutines should have different IDs")
	}
}
