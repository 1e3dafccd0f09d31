// Package hw defines the contract between the wallet and a hardware
// signing device.
//
// The device never receives key material. It receives a Payload describing
// the transaction and the derivation path of every key that must sign, and
// answers with witnesses over the body hash or with a Rejection.
package hw

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/klingwallet/internal/keys"
)

// DeviceInfo describes a paired hardware wallet. It is persisted with the
// wallet and sent with every signing request.
type DeviceInfo struct {
	Vendor          string `json:"vendor"`
	Model           string `json:"model"`
	DeviceID        string `json:"deviceId"`
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
}

// Validate checks that the descriptor identifies a device.
func (d DeviceInfo) Validate() error {
	if d.Vendor == "" || d.DeviceID == "" {
		return fmt.Errorf("hardware device descriptor needs vendor and device id")
	}
	return nil
}

// Device signs payloads. SignTransaction blocks until the user confirms or
// refuses on the device. A refusal is a Result with a Rejection, not an
// error: errors are reserved for transport and protocol failures.
type Device interface {
	SignTransaction(ctx context.Context, p *Payload, info DeviceInfo) (*Result, error)
}

// Witness is one signature returned by the device.
type Witness struct {
	Path      keys.Path `json:"path"`
	PublicKey []byte    `json:"publicKey"`
	Signature []byte    `json:"signature"`
	// ChainCode is set for legacy address keys.
	ChainCode []byte `json:"chainCode,omitempty"`
}

// RejectReason classifies a refusal.
type RejectReason string

// Rejection reasons.
const (
	RejectUserCancelled RejectReason = "UserCancelled"
	RejectUnsupported   RejectReason = "Unsupported"
	RejectLocked        RejectReason = "Locked"
)

// Rejection is a structured refusal.
type Rejection struct {
	Reason  RejectReason `json:"reason"`
	Message string       `json:"message,omitempty"`
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

// Result carries either witnesses or a rejection.
type Result struct {
	Witnesses []Witness  `json:"witnesses,omitempty"`
	Rejection *Rejection `json:"rejection,omitempty"`
}

// Rejected reports whether the device refused.
func (r *Result) Rejected() bool {
	return r != nil && r.Rejection != nil
}
