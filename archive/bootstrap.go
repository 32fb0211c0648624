package archive

import (
	"errors"

	"github.com/chazu/cds/archive/image"
)

var ErrNotBootstrapped = errors.New("archive status queried before bootstrap completed")

// Bootstrap is the privileged side of the archive: it decides the status
// from process configuration and owns the mapped archive region.
type Bootstrap interface {
	// Status returns the packed status. A Gate calls it exactly once.
	// It fails with ErrNotBootstrapped when called before the process
	// bootstrap has resolved its configuration.
	Status() (Status, error)

	// Subgraph returns the archived subgraph for a class, failing with
	// image.ErrNoSubgraph when none was archived.
	Subgraph(class string) (*image.Subgraph, error)

	// Modules returns the archived module records.
	Modules() []image.ModuleRecord

	// Build identifies the running VM build.
	Build() image.Build
}
