package archive

import (
	"strconv"

	"github.com/chazu/cds/archive/image"
	"github.com/zeebo/xxh3"
)

// fallbackSeed replaces a zero hash so that a dumping process never reports
// the "not dumping" value.
const fallbackSeed int64 = 0x87654321

// SeedFor derives the dump seed from a build identity. Identical builds
// always yield the same seed. It is not a source of randomness.
func SeedFor(b image.Build) int64 {
	h := xxh3.New()
	for _, s := range []string{b.Release, b.DebugLevel, b.VMInfo, strconv.Itoa(b.Major)} {
		h.WriteString(s)
		h.Write([]byte{0})
	}
	seed := int64(h.Sum64())
	if seed == 0 {
		seed = fallbackSeed
	}
	return seed
}

// GetRandomSeedForDumping returns the seed used to make hash-ordered
// collections reproducible in a static dump. It is zero unless this process
// dumps a static archive.
func (g *Gate) GetRandomSeedForDumping() int64 {
	if !g.IsDumpingStaticArchive() || g.boot == nil {
		return 0
	}
	return SeedFor(g.boot.Build())
}

// GetRandomSeedForDumping queries the process-wide gate.
func GetRandomSeedForDumping() int64 {
	return Default().GetRandomSeedForDumping()
}
