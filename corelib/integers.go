package corelib

import (
	"fmt"

	"github.com/chazu/cds/vm"
)

// Boxed integer cache bounds.
const (
	IntegerCacheLow  = -128
	IntegerCacheHigh = 127
)

func (lib *Library) initIntegerCache(_ *vm.VM, c *vm.Class) error {
	size := IntegerCacheHigh - IntegerCacheLow + 1

	archived := c.Static("archivedCache")
	if !lib.arrayOfSize(archived, size) {
		cache := vm.NewIndexedObject(lib.machine.ArrayClass, size)
		for i := 0; i < size; i++ {
			boxed := lib.Integer.NewInstance()
			mustSet(boxed, "value", vm.FromSmallInt(int64(IntegerCacheLow+i)))
			cache.AtPut(i, vm.FromObject(boxed))
		}
		archived = vm.FromObject(cache)
		if err := c.SetStatic("archivedCache", archived); err != nil {
			return err
		}
	}

	return c.SetStatics(map[string]vm.Value{
		"low":   vm.FromSmallInt(IntegerCacheLow),
		"high":  vm.FromSmallInt(IntegerCacheHigh),
		"cache": archived,
	})
}

// ValueOf returns the boxed integer for n, shared from the cache when n is
// within the cache bounds.
func (lib *Library) ValueOf(n int64) (*vm.Object, error) {
	if err := lib.machine.InitializeClass(lib.IntegerCache); err != nil {
		return nil, err
	}
	if n >= IntegerCacheLow && n <= IntegerCacheHigh {
		cache := lib.IntegerCache.Static("cache").Object()
		if cache == nil {
			return nil, fmt.Errorf("integer cache is not populated")
		}
		return cache.At(int(n - IntegerCacheLow)).Object(), nil
	}
	boxed := lib.Integer.NewInstance()
	mustSet(boxed, "value", vm.FromSmallInt(n))
	return boxed, nil
}
