package corelib

import (
	"fmt"

	"github.com/chazu/cds/vm"
)

// Locales preallocated by the locale cache, in archived order.
var cachedLocales = []struct {
	static           string
	language, region string
}{
	{"root", "", ""},
	{"english", "en", ""},
	{"us", "en", "US"},
}

func (lib *Library) initLocaleCache(_ *vm.VM, c *vm.Class) error {
	archived := c.Static("archivedLocales")
	if !lib.arrayOfSize(archived, len(cachedLocales)) {
		locales := make([]vm.Value, len(cachedLocales))
		for i, l := range cachedLocales {
			locales[i] = vm.FromObject(lib.newLocale(l.language, l.region))
		}
		archived = vm.FromObject(lib.newArray(locales...))
		if err := c.SetStatic("archivedLocales", archived); err != nil {
			return err
		}
	}

	objs := archived.Object()
	statics := make(map[string]vm.Value, len(cachedLocales))
	for i, l := range cachedLocales {
		statics[l.static] = objs.At(i)
	}
	return c.SetStatics(statics)
}

func (lib *Library) newLocale(language, region string) *vm.Object {
	loc := lib.Locale.NewInstance()
	mustSet(loc, "language", vm.FromString(language))
	mustSet(loc, "region", vm.FromString(region))
	return loc
}

// LocaleFor returns the cached locale for language and region when one
// exists, and a fresh locale otherwise.
func (lib *Library) LocaleFor(language, region string) (*vm.Object, error) {
	if err := lib.machine.InitializeClass(lib.LocaleCache); err != nil {
		return nil, err
	}
	for _, l := range cachedLocales {
		if l.language == language && l.region == region {
			loc := lib.LocaleCache.Static(l.static).Object()
			if loc == nil {
				return nil, fmt.Errorf("locale cache has no %s", l.static)
			}
			return loc, nil
		}
	}
	return lib.newLocale(language, region), nil
}

// LocaleTag formats a locale as language[_REGION].
func LocaleTag(loc *vm.Object) string {
	lang, _ := loc.Get("language")
	region, _ := loc.Get("region")
	if region.Str() == "" {
		return lang.Str()
	}
	return lang.Str() + "_" + region.Str()
}
