package image

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/xxh3"
)

// cborEncMode uses canonical encoding so that identical inputs produce
// byte-identical archives.
var cborEncMode cbor.EncMode

// cborDecMode rejects duplicate map keys and bounds nesting.
var cborDecMode cbor.DecMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: 32,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// Checksum is the integrity hash used for the directory and every record.
func Checksum(data []byte) uint64 {
	return xxh3.Hash(data)
}

// MarshalDirectory serializes a Directory to CBOR bytes.
func MarshalDirectory(d *Directory) ([]byte, error) {
	return cborEncMode.Marshal(d)
}

// UnmarshalDirectory deserializes a Directory from CBOR bytes.
func UnmarshalDirectory(data []byte) (*Directory, error) {
	var d Directory
	if err := cborDecMode.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptDir, err)
	}
	return &d, nil
}

// MarshalSubgraph serializes a Subgraph to CBOR bytes.
func MarshalSubgraph(s *Subgraph) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSubgraph deserializes a Subgraph from CBOR bytes.
func UnmarshalSubgraph(data []byte) (*Subgraph, error) {
	var s Subgraph
	if err := cborDecMode.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	return &s, nil
}
