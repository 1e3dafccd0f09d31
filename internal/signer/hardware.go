package signer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/hw"
	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/internal/txbuilder"
	"github.com/Klingon-tech/klingwallet/pkg/crypto"
	"github.com/Klingon-tech/klingwallet/pkg/tx"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/rs/zerolog"
)

// Hardware signs through a paired device. It holds only the account
// public key, which it uses to check every witness the device returns.
type Hardware struct {
	device  hw.Device
	info    hw.DeviceInfo
	account *keys.HDKey
	era     keys.Era
	network hw.Network
	logger  zerolog.Logger
}

// NewHardware creates a signer for the device that owns accountPubKeyHex.
func NewHardware(device hw.Device, info hw.DeviceInfo, accountPubKeyHex string, era keys.Era, network hw.Network) (*Hardware, error) {
	if device == nil {
		return nil, fmt.Errorf("hardware signer needs a device")
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	account, err := keys.AccountKeyFromHex(accountPubKeyHex)
	if err != nil {
		return nil, errs.Wrap(err, "parse account key")
	}
	return &Hardware{
		device:  device,
		info:    info,
		account: account,
		era:     era,
		network: network,
		logger:  log.Signer.With().Str("device", info.DeviceID).Logger(),
	}, nil
}

// WithLogger replaces the signer's logger.
func (h *Hardware) WithLogger(logger zerolog.Logger) *Hardware {
	h.logger = logger
	return h
}

// Sign sends the request to the device and rebuilds the signed
// transaction from the original body and the returned witnesses.
// Cancelling ctx while the device waits for the user is a rejection.
func (h *Hardware) Sign(ctx context.Context, req txbuilder.SignRequest) (*SignedTx, error) {
	u, err := base(req)
	if err != nil {
		return nil, err
	}
	if _, ok := req.(*txbuilder.VotingRegistrationRequest); ok {
		return nil, fmt.Errorf("%w: voter registration is not signed on devices", errs.ErrInvalidSignRequest)
	}

	paths, err := h.paths(u)
	if err != nil {
		return nil, err
	}
	body := u.Body()
	payload, err := hw.BuildPayload(&body, paths, h.network)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidSignRequest, err)
	}

	h.logger.Info().Int("inputs", len(payload.Inputs)).Msg("Waiting for device confirmation")
	res, err := h.roundTrip(ctx, payload)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Device signing failed")
		return nil, err
	}

	ws, err := h.witnesses(payload, res.Witnesses)
	if err != nil {
		return nil, err
	}
	signed, err := finalize(u, ws, errs.ErrDeviceError)
	if err != nil {
		return nil, err
	}
	h.logger.Debug().Str("tx", signed.ID).Msg("Device signed transaction")
	return signed, nil
}

type outcome struct {
	res *hw.Result
	err error
}

func (h *Hardware) roundTrip(ctx context.Context, p *hw.Payload) (*hw.Result, error) {
	done := make(chan outcome, 1)
	go func() {
		res, err := h.device.SignTransaction(ctx, p, h.info)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", errs.ErrHardwareRejected, ctx.Err())
	case o := <-done:
		switch {
		case errors.Is(o.err, errs.ErrHardwareRejected):
			return nil, o.err
		case errors.Is(o.err, context.Canceled), errors.Is(o.err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %v", errs.ErrHardwareRejected, o.err)
		case o.err != nil:
			return nil, fmt.Errorf("%w: %v", errs.ErrDeviceError, o.err)
		case o.res == nil:
			return nil, fmt.Errorf("%w: empty response", errs.ErrDeviceError)
		case o.res.Rejected():
			return nil, fmt.Errorf("%w: %w", errs.ErrHardwareRejected, o.res.Rejection)
		}
		return o.res, nil
	}
}

// paths maps inputs, change outputs and the reward address to key paths.
func (h *Hardware) paths(u *txbuilder.Unsigned) (hw.Paths, error) {
	byOutpoint := make(map[types.Outpoint]keys.Addressing, len(u.Inputs))
	for _, in := range u.Inputs {
		byOutpoint[in.Outpoint] = in.Addressing
	}
	body := u.Body()
	p := hw.Paths{
		Inputs:    make([]keys.Addressing, len(body.Inputs)),
		Addresses: make(map[string]keys.Addressing, len(u.Change)+1),
	}
	for i, in := range body.Inputs {
		a, ok := byOutpoint[in.Outpoint()]
		if !ok {
			return hw.Paths{}, fmt.Errorf("%w: input %s has no spent UTXO", errs.ErrInvalidSignRequest, in.Outpoint())
		}
		p.Inputs[i] = a
	}
	for _, c := range u.Change {
		p.Addresses[c.Address] = c.Addressing
	}
	if h.era.SupportsStaking() {
		a, err := keys.StakingAddressing(h.era)
		if err != nil {
			return hw.Paths{}, errs.Wrap(err, "staking path")
		}
		stake, err := keys.DeriveFromAccount(h.account, h.era, a)
		if err != nil {
			return hw.Paths{}, errs.Wrap(err, "derive staking key")
		}
		p.Addresses[types.NewRewardAddress(h.network.Tag, stake.KeyHash()).String()] = a
	}
	return p, nil
}

// witnesses checks the device's answer against keys derived from the
// account public key and orders it deterministically by signing path.
func (h *Hardware) witnesses(p *hw.Payload, got []hw.Witness) (tx.WitnessSet, error) {
	byPath := make(map[string]hw.Witness, len(got))
	for _, w := range got {
		byPath[w.Path.String()] = w
	}

	var ws tx.WitnessSet
	for _, path := range p.SigningPaths() {
		w, ok := byPath[path.String()]
		if !ok {
			return tx.WitnessSet{}, fmt.Errorf("%w: no witness for %s", errs.ErrDeviceError, path)
		}
		a := keys.Addressing{Path: path, StartLevel: keys.LevelPurpose}
		key, err := keys.DeriveFromAccount(h.account, h.era, a)
		if err != nil {
			return tx.WitnessSet{}, fmt.Errorf("%w: %s: %v", errs.ErrDeviceError, path, err)
		}
		if !bytes.Equal(w.PublicKey, key.PublicKeyBytes()) {
			return tx.WitnessSet{}, fmt.Errorf("%w: witness for %s has a foreign key", errs.ErrDeviceError, path)
		}
		if !crypto.VerifySignature(p.BodyHash[:], w.Signature, w.PublicKey) {
			return tx.WitnessSet{}, fmt.Errorf("%w: bad signature for %s", errs.ErrDeviceError, path)
		}

		chain, _ := a.Chain()
		if chain != keys.ChainStaking && !h.era.SupportsStaking() {
			ws.Bootstrap = append(ws.Bootstrap, tx.BootstrapWitness{
				PublicKey: append([]byte(nil), w.PublicKey...),
				Signature: append([]byte(nil), w.Signature...),
				ChainCode: key.ChainCode(),
			})
			continue
		}
		ws.VKeys = append(ws.VKeys, tx.VKeyWitness{
			PublicKey: append([]byte(nil), w.PublicKey...),
			Signature: append([]byte(nil), w.Signature...),
		})
	}
	return ws, nil
}
