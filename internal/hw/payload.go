package hw

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/pkg/tx"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// ErrMissingPath is returned when a key that must sign has no known path.
var ErrMissingPath = errors.New("no derivation path for signing key")

// Network identifies the chain to the device.
type Network struct {
	_             struct{} `cbor:",toarray"`
	Tag           byte
	ProtocolMagic uint32
}

// Input is a spent output and the path of the key that owns it.
type Input struct {
	_      struct{} `cbor:",toarray"`
	TxHash types.Hash
	Index  uint32
	Path   keys.Path
}

// Output is a payment. Path is set for outputs returning to the wallet so
// the device can show them as change.
type Output struct {
	_       struct{} `cbor:",toarray"`
	Address types.Address
	Amount  types.Value
	Path    keys.Path
}

// Certificate is a staking certificate with the path of its staking key.
type Certificate struct {
	_           struct{} `cbor:",toarray"`
	Kind        tx.CertificateKind
	StakingPath keys.Path
	PoolKeyHash types.KeyHash
}

// Withdrawal is a reward withdrawal with the path of its staking key.
type Withdrawal struct {
	_           struct{} `cbor:",toarray"`
	StakingPath keys.Path
	Amount      uint64
}

// Payload is the device-agnostic signing request.
type Payload struct {
	Network      Network       `cbor:"0,keyasint"`
	Inputs       []Input       `cbor:"1,keyasint"`
	Outputs      []Output      `cbor:"2,keyasint"`
	Fee          uint64        `cbor:"3,keyasint"`
	TTL          uint64        `cbor:"4,keyasint,omitempty"`
	Certificates []Certificate `cbor:"5,keyasint,omitempty"`
	Withdrawals  []Withdrawal  `cbor:"6,keyasint,omitempty"`
	AuxDataHash  *types.Hash   `cbor:"7,keyasint,omitempty"`
	// BodyHash is the digest every witness signs.
	BodyHash types.Hash `cbor:"8,keyasint"`
}

// Paths resolves the keys a transaction needs. Inputs is aligned with the
// body's inputs. Addresses maps the text form of change and reward
// addresses to their key paths.
type Paths struct {
	Inputs    []keys.Addressing
	Addresses map[string]keys.Addressing
}

// BuildPayload translates an unsigned body into a device payload. Every
// input, certificate and withdrawal must resolve to a path.
func BuildPayload(body *tx.Body, paths Paths, network Network) (*Payload, error) {
	if len(paths.Inputs) != len(body.Inputs) {
		return nil, fmt.Errorf("%w: %d input paths for %d inputs", ErrMissingPath, len(paths.Inputs), len(body.Inputs))
	}
	id, err := body.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash body: %w", err)
	}

	p := &Payload{
		Network:  network,
		Inputs:   make([]Input, len(body.Inputs)),
		Outputs:  make([]Output, len(body.Outputs)),
		Fee:      body.Fee,
		TTL:      body.TTL,
		BodyHash: id,
	}
	for i, in := range body.Inputs {
		p.Inputs[i] = Input{TxHash: in.TxHash, Index: in.Index, Path: paths.Inputs[i].Path.Clone()}
	}
	for i, out := range body.Outputs {
		o := Output{Address: append(types.Address(nil), out.Address...), Amount: out.Amount.Clone()}
		if a, ok := paths.Addresses[out.Address.String()]; ok {
			o.Path = a.Path.Clone()
		}
		p.Outputs[i] = o
	}

	staking := func(stake types.KeyHash) (keys.Path, bool) {
		for addr, a := range paths.Addresses {
			parsed, err := types.ParseAddress(addr)
			if err != nil || parsed.Kind() != types.KindReward {
				continue
			}
			if h, ok := parsed.StakeKeyHash(); ok && h == stake {
				return a.Path.Clone(), true
			}
		}
		return nil, false
	}
	for i, c := range body.Certificates {
		path, ok := staking(c.StakeKeyHash)
		if !ok {
			return nil, fmt.Errorf("%w: certificate %d stake key %s", ErrMissingPath, i, c.StakeKeyHash)
		}
		p.Certificates = append(p.Certificates, Certificate{Kind: c.Kind, StakingPath: path, PoolKeyHash: c.PoolKeyHash})
	}
	for i, w := range body.Withdrawals {
		a, ok := paths.Addresses[w.RewardAddress.String()]
		if !ok {
			return nil, fmt.Errorf("%w: withdrawal %d from %s", ErrMissingPath, i, w.RewardAddress)
		}
		p.Withdrawals = append(p.Withdrawals, Withdrawal{StakingPath: a.Path.Clone(), Amount: w.Amount})
	}
	if body.AuxDataHash != nil {
		h := *body.AuxDataHash
		p.AuxDataHash = &h
	}
	return p, nil
}

// SigningPaths returns the distinct paths whose keys must sign, in first
// appearance order: inputs, then certificates, then withdrawals.
func (p *Payload) SigningPaths() []keys.Path {
	var out []keys.Path
	seen := make(map[string]bool)
	add := func(path keys.Path) {
		if k := path.String(); !seen[k] {
			seen[k] = true
			out = append(out, path.Clone())
		}
	}
	for _, in := range p.Inputs {
		add(in.Path)
	}
	for _, c := range p.Certificates {
		add(c.StakingPath)
	}
	for _, w := range p.Withdrawals {
		add(w.StakingPath)
	}
	return out
}

// Encode returns the canonical CBOR form sent over a device transport.
func (p *Payload) Encode() ([]byte, error) {
	return tx.Marshal(p)
}

// DecodePayload parses the output of Encode.
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := tx.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &p, nil
}
