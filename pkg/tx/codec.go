package tx

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const cborNull = 0xf6

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("tx: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("tx: cbor dec mode: %v", err))
	}
}

// Marshal encodes v in canonical CBOR.
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v, rejecting duplicate map keys.
func Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}

// EncodeBody returns the canonical encoding of a body.
func EncodeBody(b *Body) ([]byte, error) {
	data, err := encMode.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return data, nil
}

// Encode returns the canonical encoding of a transaction.
func Encode(t *Transaction) ([]byte, error) {
	data, err := encMode.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return data, nil
}

// Decode parses an encoded transaction.
func Decode(data []byte) (*Transaction, error) {
	var t Transaction
	if err := decMode.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if !t.HasAuxData() {
		t.AuxData = nil
	}
	return &t, nil
}
