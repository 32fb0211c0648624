package image

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Archive: a mapped, read-only archive file
// ---------------------------------------------------------------------------

// Archive is an opened archive. The directory is decoded eagerly; subgraph
// records are decoded and verified on demand from the read-only region.
// It is safe for concurrent use.
type Archive struct {
	path   string
	region []byte
	unmap  func() error

	header Header
	dir    *Directory
	heap   []byte
	index  map[string]int

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// Open maps the archive at path read-only and validates its header and
// directory.
func Open(path string) (*Archive, error) {
	region, unmap, err := mapFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot map archive %s: %w", path, err)
	}
	a, err := decode(region)
	if err != nil {
		unmap()
		return nil, fmt.Errorf("invalid archive %s: %w", path, err)
	}
	a.path = path
	a.unmap = unmap
	log.Infof("mapped %s archive %s (%d bytes)", a.header.Kind, path, len(region))
	return a, nil
}

// FromBytes opens an archive held in memory.
func FromBytes(data []byte) (*Archive, error) {
	return decode(data)
}

func decode(data []byte) (*Archive, error) {
	var hdr Header
	if err := hdr.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	end := uint64(HeaderSize) + hdr.DirLength
	if hdr.DirLength == 0 || end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: directory length %d exceeds file", ErrCorruptHeader, hdr.DirLength)
	}
	dirBytes := data[HeaderSize:end]
	if sum := Checksum(dirBytes); sum != hdr.DirChecksum {
		return nil, fmt.Errorf("%w: checksum %016x, header says %016x", ErrCorruptDir, sum, hdr.DirChecksum)
	}
	dir, err := UnmarshalDirectory(dirBytes)
	if err != nil {
		return nil, err
	}
	if hdr.Kind == KindDynamic && len(dir.Subgraphs) > 0 {
		return nil, ErrHeapInDynamic
	}

	a := &Archive{
		region: data,
		header: hdr,
		dir:    dir,
		heap:   data[end:],
		index:  make(map[string]int, len(dir.Subgraphs)),
	}
	for i, e := range dir.Subgraphs {
		a.index[e.Class] = i
	}
	return a, nil
}

// Path returns the file the archive was mapped from, empty for FromBytes.
func (a *Archive) Path() string { return a.path }

// Header returns the archive header.
func (a *Archive) Header() Header { return a.header }

// Kind returns static or dynamic.
func (a *Archive) Kind() Kind { return a.header.Kind }

// Identity is the directory checksum; dynamic layers record their base's.
func (a *Archive) Identity() uint64 { return a.header.DirChecksum }

// Build returns the build identity recorded at dump time.
func (a *Archive) Build() Build { return a.dir.Build }

// Seed returns the dump seed recorded at dump time.
func (a *Archive) Seed() int64 { return a.dir.Seed }

// Modules returns the archived module records.
func (a *Archive) Modules() []ModuleRecord {
	return append([]ModuleRecord(nil), a.dir.Modules...)
}

// Classes returns the archived class list.
func (a *Archive) Classes() []string {
	return append([]string(nil), a.dir.Classes...)
}

// Entries returns the subgraph directory entries.
func (a *Archive) Entries() []SubgraphEntry {
	return append([]SubgraphEntry(nil), a.dir.Subgraphs...)
}

// Subgraph decodes and verifies the record for class.
func (a *Archive) Subgraph(class string) (*Subgraph, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}

	i, ok := a.index[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSubgraph, class)
	}
	e := a.dir.Subgraphs[i]
	if e.Offset+e.Length > uint64(len(a.heap)) || e.Offset+e.Length < e.Offset {
		return nil, fmt.Errorf("%w: %s extends past heap region", ErrCorruptRecord, class)
	}
	data := a.heap[e.Offset : e.Offset+e.Length]
	if sum := Checksum(data); sum != e.Checksum {
		return nil, fmt.Errorf("%w: %s checksum %016x, directory says %016x", ErrCorruptRecord, class, sum, e.Checksum)
	}
	sg, err := UnmarshalSubgraph(data)
	if err != nil {
		return nil, err
	}
	if sg.Class != class {
		return nil, fmt.Errorf("%w: record for %s names %s", ErrCorruptRecord, class, sg.Class)
	}
	return sg, nil
}

// Close unmaps the region. Later Subgraph calls return ErrClosed.
func (a *Archive) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()
		if a.unmap != nil {
			err = a.unmap()
		}
	})
	return err
}
