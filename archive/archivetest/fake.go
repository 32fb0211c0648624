// Package archivetest provides a configurable in-memory archive.Bootstrap
// for tests that should not depend on a mapped archive file.
package archivetest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chazu/cds/archive"
	"github.com/chazu/cds/archive/image"
)

// Bootstrap is a fake privileged bootstrap.
type Bootstrap struct {
	// StatusValue is returned by Status unless StatusErr is set.
	StatusValue archive.Status
	StatusErr   error
	BuildValue  image.Build

	mu        sync.Mutex
	subgraphs map[string]*image.Subgraph
	broken    map[string]error
	modules   []image.ModuleRecord

	statusCalls   atomic.Int32
	subgraphCalls atomic.Int32
}

// New returns a fake reporting st.
func New(st archive.Status) *Bootstrap {
	return &Bootstrap{
		StatusValue: st,
		BuildValue:  image.Build{Release: "0.1.0", DebugLevel: "release", VMInfo: "test", Major: 1},
		subgraphs:   make(map[string]*image.Subgraph),
		broken:      make(map[string]error),
	}
}

// AddSubgraph registers a synthetic subgraph under its own class name.
func (b *Bootstrap) AddSubgraph(sg *image.Subgraph) {
	b.SetSubgraph(sg.Class, sg)
}

// SetSubgraph registers sg as the record for class, which need not match
// sg.Class.
func (b *Bootstrap) SetSubgraph(class string, sg *image.Subgraph) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subgraphs[class] = sg
}

// Break makes Subgraph for class fail with err, as a corrupt record would.
func (b *Bootstrap) Break(class string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broken[class] = err
}

// AddModule registers an archived module record.
func (b *Bootstrap) AddModule(rec image.ModuleRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modules = append(b.modules, rec)
}

// StatusCalls counts Status invocations.
func (b *Bootstrap) StatusCalls() int { return int(b.statusCalls.Load()) }

// SubgraphCalls counts Subgraph invocations.
func (b *Bootstrap) SubgraphCalls() int { return int(b.subgraphCalls.Load()) }

// Status implements archive.Bootstrap.
func (b *Bootstrap) Status() (archive.Status, error) {
	b.statusCalls.Add(1)
	if b.StatusErr != nil {
		return 0, b.StatusErr
	}
	return b.StatusValue, nil
}

// Subgraph implements archive.Bootstrap.
func (b *Bootstrap) Subgraph(class string) (*image.Subgraph, error) {
	b.subgraphCalls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.broken[class]; ok {
		return nil, err
	}
	sg, ok := b.subgraphs[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", image.ErrNoSubgraph, class)
	}
	return sg, nil
}

// Modules implements archive.Bootstrap.
func (b *Bootstrap) Modules() []image.ModuleRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]image.ModuleRecord(nil), b.modules...)
}

// Build implements archive.Bootstrap.
func (b *Bootstrap) Build() image.Build {
	return b.BuildValue
}

// RecordingSink collects emitted lines.
type RecordingSink struct {
	mu    sync.Mutex
	lines []string
}

// Emit implements archive.Sink.
func (s *RecordingSink) Emit(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

// Lines returns a copy of the emitted lines.
func (s *RecordingSink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}
