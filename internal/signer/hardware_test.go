package signer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/hw"
	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/internal/txbuilder"
)

// fakeDevice signs with the master key it holds, as a real device would.
type fakeDevice struct {
	master *keys.HDKey
	reject *hw.Rejection
	err    error
	block  bool
	tamper bool
	// skip drops the witness of the last signing path.
	skip bool
}

func (d *fakeDevice) SignTransaction(ctx context.Context, p *hw.Payload, _ hw.DeviceInfo) (*hw.Result, error) {
	switch {
	case d.block:
		<-ctx.Done()
		return nil, ctx.Err()
	case d.err != nil:
		return nil, d.err
	case d.reject != nil:
		return &hw.Result{Rejection: d.reject}, nil
	}
	var res hw.Result
	for _, path := range p.SigningPaths() {
		k, err := d.master.DerivePath(path...)
		if err != nil {
			return nil, err
		}
		priv, err := k.Signer()
		if err != nil {
			return nil, err
		}
		sig, err := priv.Sign(p.BodyHash[:])
		if err != nil {
			return nil, err
		}
		if d.tamper {
			sig[len(sig)-1] ^= 0x01
		}
		res.Witnesses = append(res.Witnesses, hw.Witness{Path: path, PublicKey: priv.PublicKey(), Signature: sig})
	}
	if d.skip {
		res.Witnesses = res.Witnesses[:len(res.Witnesses)-1]
	}
	return &res, nil
}

var testDevice = hw.DeviceInfo{Vendor: "ledger", Model: "nano-s", DeviceID: "0001"}

func newHardware(t *testing.T, w *wallet, d hw.Device) *Hardware {
	t.Helper()
	h, err := NewHardware(d, testDevice, w.account.Neuter().Hex(), w.era, hw.Network{Tag: 1, ProtocolMagic: 764824073})
	if err != nil {
		t.Fatalf("NewHardware() error: %v", err)
	}
	return h
}

func TestHardware_MatchesLocal(t *testing.T) {
	for _, era := range []keys.Era{keys.EraShelley, keys.EraByron} {
		t.Run(string(era), func(t *testing.T) {
			w := newWallet(t, era)
			var req txbuilder.SignRequest = w.payment(t)
			if era == keys.EraShelley {
				req = w.delegation(t, w.stakeHash(t))
			}

			device, err := newHardware(t, w, &fakeDevice{master: w.master}).Sign(context.Background(), req)
			if err != nil {
				t.Fatalf("Hardware.Sign() error: %v", err)
			}
			local, err := newLocal(t, w).Sign(req)
			if err != nil {
				t.Fatalf("Local.Sign() error: %v", err)
			}
			checkSigned(t, device)
			if device.ID != local.ID {
				t.Errorf("device id %s != local id %s", device.ID, local.ID)
			}
		})
	}
}

func TestHardware_Failures(t *testing.T) {
	w := newWallet(t, keys.EraShelley)
	seed := make([]byte, keys.SeedSize)
	for i := range seed {
		seed[i] = 0x42
	}
	other, err := keys.NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}

	tests := []struct {
		name    string
		device  *fakeDevice
		wantErr error
	}{
		{"user cancelled", &fakeDevice{reject: &hw.Rejection{Reason: hw.RejectUserCancelled}}, errs.ErrHardwareRejected},
		{"transport", &fakeDevice{err: errors.New("usb: device disconnected")}, errs.ErrDeviceError},
		{"bad signature", &fakeDevice{master: w.master, tamper: true}, errs.ErrDeviceError},
		{"missing witness", &fakeDevice{master: w.master, skip: true}, errs.ErrDeviceError},
		{"foreign key", &fakeDevice{master: other}, errs.ErrDeviceError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := newHardware(t, w, tt.device).Sign(context.Background(), w.payment(t))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Sign() err = %v, want %v", err, tt.wantErr)
			}
			if signed != nil {
				t.Error("Sign() produced a transaction on failure")
			}
		})
	}
}

func TestHardware_Cancelled(t *testing.T) {
	w := newWallet(t, keys.EraShelley)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newHardware(t, w, &fakeDevice{block: true}).Sign(ctx, w.payment(t))
	if !errors.Is(err, errs.ErrHardwareRejected) {
		t.Errorf("Sign() err = %v, want ErrHardwareRejected", err)
	}
}

func TestHardware_RejectsVoting(t *testing.T) {
	w := newWallet(t, keys.EraShelley)
	req := &txbuilder.VotingRegistrationRequest{Unsigned: w.payment(t).Unsigned}
	_, err := newHardware(t, w, &fakeDevice{master: w.master}).Sign(context.Background(), req)
	if !errors.Is(err, errs.ErrInvalidSignRequest) {
		t.Errorf("Sign() err = %v, want ErrInvalidSignRequest", err)
	}
}

func TestNewHardware_Validates(t *testing.T) {
	w := newWallet(t, keys.EraShelley)
	if _, err := NewHardware(nil, testDevice, w.account.Neuter().Hex(), w.era, hw.Network{Tag: 1}); err == nil {
		t.Error("NewHardware() accepted a nil device")
	}
	if _, err := NewHardware(&fakeDevice{}, hw.DeviceInfo{}, w.account.Neuter().Hex(), w.era, hw.Network{Tag: 1}); err == nil {
		t.Error("NewHardware() accepted an empty descriptor")
	}
	if _, err := NewHardware(&fakeDevice{}, testDevice, "zz", w.era, hw.Network{Tag: 1}); err == nil {
		t.Error("NewHardware() accepted a bad account key")
	}
}
