// Package image implements the shared archive file format: a fixed binary
// header, a CBOR directory, and a heap region of independently checksummed
// per-class subgraph records.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Archive Format Constants
// ---------------------------------------------------------------------------

// Magic identifies a shared class data archive.
var Magic = [4]byte{'M', 'C', 'D', 'S'}

// Archive format version
// v1: initial format
const Version uint32 = 1

// HeaderSize is the fixed header length in bytes.
// magic(4) + version(4) + kind(1) + pad(3) + flags(4) + dirLength(8) +
// dirChecksum(8) + baseChecksum(8) = 40
const HeaderSize = 40

// Kind distinguishes static (base) archives from dynamic (top) layers.
type Kind uint8

const (
	KindStatic  Kind = 1
	KindDynamic Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindDynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Flags describe optional archive content.
type Flags uint32

const (
	FlagHeapObjects Flags = 1 << iota
	FlagModules
)

// HeapObjects reports whether the archive carries heap subgraphs.
func (f Flags) HeapObjects() bool { return f&FlagHeapObjects != 0 }

// Modules reports whether the archive carries module records.
func (f Flags) Modules() bool { return f&FlagModules != 0 }

// ---------------------------------------------------------------------------
// Error Types
// ---------------------------------------------------------------------------

var (
	ErrInvalidMagic    = errors.New("invalid magic number: expected MCDS")
	ErrVersionMismatch = errors.New("archive version mismatch")
	ErrCorruptHeader   = errors.New("corrupt archive header")
	ErrCorruptDir      = errors.New("corrupt archive directory")
	ErrCorruptRecord   = errors.New("corrupt subgraph record")
	ErrNoSubgraph      = errors.New("no archived subgraph for class")
	ErrBaseMismatch    = errors.New("dynamic archive does not match base archive")
	ErrNotArchivable   = errors.New("object graph is not archivable")
	ErrHeapInDynamic   = errors.New("dynamic archives cannot carry heap objects")
	ErrClosed          = errors.New("archive is closed")
)

// ---------------------------------------------------------------------------
// Header
// ---------------------------------------------------------------------------

// Header is the fixed-size archive prologue.
type Header struct {
	Version      uint32
	Kind         Kind
	Flags        Flags
	DirLength    uint64
	DirChecksum  uint64
	BaseChecksum uint64 // directory checksum of the base archive; 0 for static
}

// MarshalBinary encodes the header into HeaderSize bytes.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	buf[8] = byte(h.Kind)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.Flags))
	binary.LittleEndian.PutUint64(buf[16:24], h.DirLength)
	binary.LittleEndian.PutUint64(buf[24:32], h.DirChecksum)
	binary.LittleEndian.PutUint64(buf[32:40], h.BaseChecksum)
	return buf, nil
}

// UnmarshalBinary decodes and validates a header.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return ErrCorruptHeader
	}
	if [4]byte(data[0:4]) != Magic {
		return ErrInvalidMagic
	}
	h.Version = binary.LittleEndian.Uint32(data[4:8])
	if h.Version != Version {
		return fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, h.Version, Version)
	}
	h.Kind = Kind(data[8])
	if h.Kind != KindStatic && h.Kind != KindDynamic {
		return fmt.Errorf("%w: unknown kind %d", ErrCorruptHeader, data[8])
	}
	if data[9] != 0 || data[10] != 0 || data[11] != 0 {
		return fmt.Errorf("%w: non-zero padding", ErrCorruptHeader)
	}
	h.Flags = Flags(binary.LittleEndian.Uint32(data[12:16]))
	h.DirLength = binary.LittleEndian.Uint64(data[16:24])
	h.DirChecksum = binary.LittleEndian.Uint64(data[24:32])
	h.BaseChecksum = binary.LittleEndian.Uint64(data[32:40])
	return nil
}

// ---------------------------------------------------------------------------
// Directory and records
// ---------------------------------------------------------------------------

// Build identifies the VM build that produced an archive.
type Build struct {
	Release    string `cbor:"1,keyasint"`
	DebugLevel string `cbor:"2,keyasint"`
	VMInfo     string `cbor:"3,keyasint"`
	Major      int    `cbor:"4,keyasint"`
}

func (b Build) String() string {
	return fmt.Sprintf("%s-%s (%s) major %d", b.Release, b.DebugLevel, b.VMInfo, b.Major)
}

// Directory is the CBOR-encoded table of contents following the header.
type Directory struct {
	Build     Build           `cbor:"1,keyasint"`
	Seed      int64           `cbor:"2,keyasint"`
	Modules   []ModuleRecord  `cbor:"3,keyasint,omitempty"`
	Classes   []string        `cbor:"4,keyasint,omitempty"`
	Subgraphs []SubgraphEntry `cbor:"5,keyasint,omitempty"`
}

// ModuleRecord describes an archived module. The owning loader is recorded
// by kind only; loader instances are per process.
type ModuleRecord struct {
	Name     string   `cbor:"1,keyasint"`
	Loader   string   `cbor:"2,keyasint"`
	Packages []string `cbor:"3,keyasint,omitempty"`
}

// SubgraphEntry locates one class's record in the heap region.
type SubgraphEntry struct {
	Class    string `cbor:"1,keyasint"`
	Offset   uint64 `cbor:"2,keyasint"`
	Length   uint64 `cbor:"3,keyasint"`
	Checksum uint64 `cbor:"4,keyasint"`
	Objects  int    `cbor:"5,keyasint"`
}

// Subgraph is the archived static state of one class: root values for its
// archived static fields, the objects they reach, and the classes those
// objects need initialized before they can be used.
type Subgraph struct {
	Class   string         `cbor:"1,keyasint"`
	Fields  []FieldRecord  `cbor:"2,keyasint"`
	Klasses []string       `cbor:"3,keyasint,omitempty"`
	Objects []ObjectRecord `cbor:"4,keyasint,omitempty"`
}

// FieldRecord is one archived static field.
type FieldRecord struct {
	Name  string      `cbor:"1,keyasint"`
	Value ValueRecord `cbor:"2,keyasint"`
}

// ObjectRecord is one archived heap object.
type ObjectRecord struct {
	Class    string        `cbor:"1,keyasint"`
	Slots    []ValueRecord `cbor:"2,keyasint,omitempty"`
	Indexed  bool          `cbor:"3,keyasint,omitempty"`
	Elements []ValueRecord `cbor:"4,keyasint,omitempty"`
}

// ValueTag mirrors vm.Tag in the archive.
type ValueTag uint8

const (
	ValueNil ValueTag = iota
	ValueInt
	ValueBool
	ValueString
	ValueRef
)

// ValueRecord is an archived value. Ref indexes Subgraph.Objects.
type ValueRecord struct {
	Tag ValueTag `cbor:"1,keyasint"`
	Int int64    `cbor:"2,keyasint,omitempty"`
	Str string   `cbor:"3,keyasint,omitempty"`
	Ref int      `cbor:"4,keyasint,omitempty"`
}
