package tx

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Klingon-tech/klingwallet/pkg/crypto"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// MaxMetadataChunk is the longest text or byte string a metadata value may hold.
const MaxMetadataChunk = 64

// ErrInvalidMetadata is returned for JSON that has no metadata encoding.
var ErrInvalidMetadata = errors.New("invalid metadata")

// MetadataEntry is one labelled JSON metadata value.
type MetadataEntry struct {
	Label uint64 `json:"label"`
	Data  string `json:"data"`
}

// Metadata maps labels to metadata values: integers, text, bytes,
// lists and maps of these.
type Metadata map[uint64]interface{}

// MetadataFromJSON converts JSON entries to metadata. Strings starting
// with "0x" become byte strings. Fractional numbers, booleans and null
// are rejected.
func MetadataFromJSON(entries []MetadataEntry) (Metadata, error) {
	m := make(Metadata, len(entries))
	for _, e := range entries {
		if _, dup := m[e.Label]; dup {
			return nil, fmt.Errorf("%w: duplicate label %d", ErrInvalidMetadata, e.Label)
		}
		dec := json.NewDecoder(strings.NewReader(e.Data))
		dec.UseNumber()
		var raw interface{}
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: label %d: %v", ErrInvalidMetadata, e.Label, err)
		}
		v, err := metadatum(raw)
		if err != nil {
			return nil, fmt.Errorf("label %d: %w", e.Label, err)
		}
		m[e.Label] = v
	}
	return m, nil
}

func metadatum(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
			return u, nil
		}
		return nil, fmt.Errorf("%w: non-integer number %s", ErrInvalidMetadata, v)
	case string:
		if strings.HasPrefix(v, "0x") {
			b, err := hex.DecodeString(v[2:])
			if err != nil {
				return nil, fmt.Errorf("%w: bad hex bytes: %v", ErrInvalidMetadata, err)
			}
			if len(b) > MaxMetadataChunk {
				return nil, fmt.Errorf("%w: byte string of %d bytes", ErrInvalidMetadata, len(b))
			}
			return b, nil
		}
		if len(v) > MaxMetadataChunk {
			return nil, fmt.Errorf("%w: text of %d bytes", ErrInvalidMetadata, len(v))
		}
		return v, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			m, err := metadatum(item)
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			if len(k) > MaxMetadataChunk {
				return nil, fmt.Errorf("%w: key of %d bytes", ErrInvalidMetadata, len(k))
			}
			m, err := metadatum(item)
			if err != nil {
				return nil, err
			}
			out[k] = m
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported value %v", ErrInvalidMetadata, raw)
	}
}

// Merge returns the union of m and o. Labels present in both fail.
func (m Metadata) Merge(o Metadata) (Metadata, error) {
	out := make(Metadata, len(m)+len(o))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range o {
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("%w: duplicate label %d", ErrInvalidMetadata, k)
		}
		out[k] = v
	}
	return out, nil
}

// Encode returns the auxiliary data bytes of the metadata.
func (m Metadata) Encode() ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := encMode.Marshal(map[uint64]interface{}(m))
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return data, nil
}

// DecodeMetadata parses auxiliary data bytes.
func DecodeMetadata(data []byte) (Metadata, error) {
	if len(data) == 0 || bytes.Equal(data, []byte{cborNull}) {
		return nil, nil
	}
	var m map[uint64]interface{}
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return Metadata(m), nil
}

// AuxDataHash returns the body commitment to auxiliary data.
func AuxDataHash(aux []byte) types.Hash {
	return crypto.Blake2b256(aux)
}
