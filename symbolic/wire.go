package symbolic

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/xxh3"
)

// Canonical encoding keeps equal IRs byte-identical, which the compile
// cache relies on.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("symbolic: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalIR serializes an IR to CBOR bytes. Layer pointers are dropped, so
// an unmarshaled IR with call statements can be inspected but not compiled.
func MarshalIR(ir *StatementIR) ([]byte, error) {
	return cborEncMode.Marshal(ir)
}

// UnmarshalIR deserializes an IR from CBOR bytes.
func UnmarshalIR(data []byte) (*StatementIR, error) {
	var ir StatementIR
	if err := cbor.Unmarshal(data, &ir); err != nil {
		return nil, fmt.Errorf("symbolic: unmarshal IR: %w", err)
	}
	return &ir, nil
}

// ContentKey encodes everything about an IR except its name, along with
// the hash of that encoding. IRs with equal keys compile to interchangeable
// artifacts.
func ContentKey(ir *StatementIR) ([]byte, uint64, error) {
	anon := *ir
	anon.Name = ""
	data, err := cborEncMode.Marshal(&anon)
	if err != nil {
		return nil, 0, fmt.Errorf("symbolic: encode IR: %w", err)
	}
	return data, xxh3.Hash(data), nil
}
