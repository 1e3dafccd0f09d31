package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrValueUnderflow is returned when subtracting more than a value holds.
var ErrValueUnderflow = errors.New("value underflow")

// AssetID identifies a native asset as "<policy hex>.<name hex>".
type AssetID string

// NewAssetID builds an AssetID from a policy hash and raw asset name.
func NewAssetID(policy KeyHash, name []byte) AssetID {
	return AssetID(policy.String() + "." + hex.EncodeToString(name))
}

// Split returns the policy and asset name of the id.
func (a AssetID) Split() (KeyHash, []byte, error) {
	policyHex, nameHex, ok := strings.Cut(string(a), ".")
	if !ok {
		return KeyHash{}, nil, fmt.Errorf("asset id %q: missing separator", string(a))
	}
	policy, err := HexToKeyHash(policyHex)
	if err != nil {
		return KeyHash{}, nil, fmt.Errorf("asset id %q: policy: %w", string(a), err)
	}
	name, err := hex.DecodeString(nameHex)
	if err != nil {
		return KeyHash{}, nil, fmt.Errorf("asset id %q: name: %w", string(a), err)
	}
	return policy, name, nil
}

// Value is an amount of the primary coin plus any native assets.
type Value struct {
	_      struct{}           `cbor:",toarray"`
	Coin   uint64             `json:"coin"`
	Assets map[AssetID]uint64 `json:"assets,omitempty"`
}

// Coins returns a Value holding only the primary coin.
func Coins(n uint64) Value {
	return Value{Coin: n}
}

// IsZero reports whether the value holds nothing.
func (v Value) IsZero() bool {
	return v.Coin == 0 && !v.HasAssets()
}

// HasAssets reports whether any asset quantity is non-zero.
func (v Value) HasAssets() bool {
	for _, q := range v.Assets {
		if q > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	out := Value{Coin: v.Coin}
	for id, q := range v.Assets {
		if q == 0 {
			continue
		}
		if out.Assets == nil {
			out.Assets = make(map[AssetID]uint64, len(v.Assets))
		}
		out.Assets[id] = q
	}
	return out
}

// Add returns v + o.
func (v Value) Add(o Value) Value {
	out := v.Clone()
	out.Coin += o.Coin
	for id, q := range o.Assets {
		if q == 0 {
			continue
		}
		if out.Assets == nil {
			out.Assets = make(map[AssetID]uint64)
		}
		out.Assets[id] += q
	}
	return out
}

// Sub returns v - o, failing with ErrValueUnderflow if any component would go negative.
func (v Value) Sub(o Value) (Value, error) {
	if !v.Covers(o) {
		return Value{}, ErrValueUnderflow
	}
	out := v.Clone()
	out.Coin -= o.Coin
	for id, q := range o.Assets {
		if q == 0 {
			continue
		}
		out.Assets[id] -= q
		if out.Assets[id] == 0 {
			delete(out.Assets, id)
		}
	}
	if len(out.Assets) == 0 {
		out.Assets = nil
	}
	return out, nil
}

// Covers reports whether every component of v is at least that of o.
func (v Value) Covers(o Value) bool {
	if v.Coin < o.Coin {
		return false
	}
	for id, q := range o.Assets {
		if v.Assets[id] < q {
			return false
		}
	}
	return true
}

// Equal reports component-wise equality.
func (v Value) Equal(o Value) bool {
	return v.Covers(o) && o.Covers(v)
}

// AssetIDs returns the ids of non-zero assets in sorted order.
func (v Value) AssetIDs() []AssetID {
	ids := make([]AssetID, 0, len(v.Assets))
	for id, q := range v.Assets {
		if q > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// String renders the value as "coin" or "coin+N assets".
func (v Value) String() string {
	if n := len(v.AssetIDs()); n > 0 {
		return fmt.Sprintf("%d+%d assets", v.Coin, n)
	}
	return fmt.Sprintf("%d", v.Coin)
}
