package signer

import (
	"fmt"

	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/internal/txbuilder"
	"github.com/Klingon-tech/klingwallet/pkg/tx"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/rs/zerolog"
)

// Local signs with a decrypted master key.
type Local struct {
	account *keys.HDKey
	era     keys.Era
	logger  zerolog.Logger
}

// NewLocal derives the era's account key from master.
func NewLocal(master *keys.HDKey, era keys.Era) (*Local, error) {
	if master == nil || !master.IsPrivate() {
		return nil, fmt.Errorf("local signer needs a private master key")
	}
	account, err := keys.DeriveAccountKey(master, era)
	if err != nil {
		return nil, errs.Wrap(err, "derive account key")
	}
	return &Local{account: account, era: era, logger: log.Signer}, nil
}

// WithLogger replaces the signer's logger.
func (l *Local) WithLogger(logger zerolog.Logger) *Local {
	l.logger = logger
	return l
}

// signingKey is a derived key and the witness kind it produces.
type signingKey struct {
	key       *keys.HDKey
	bootstrap bool
}

// Sign witnesses every input and, when the request needs it, the staking
// key. All keys are derived and checked before anything is signed.
func (l *Local) Sign(req txbuilder.SignRequest) (*SignedTx, error) {
	u, err := base(req)
	if err != nil {
		return nil, err
	}
	signers, err := l.keysFor(u)
	if err != nil {
		return nil, err
	}

	id, err := u.ID()
	if err != nil {
		return nil, errs.Wrap(err, "hash body")
	}
	var ws tx.WitnessSet
	for _, s := range signers {
		priv, err := s.key.Signer()
		if err != nil {
			return nil, errs.Wrap(err, "signing key")
		}
		if s.bootstrap {
			w, err := tx.SignBootstrap(id, priv, s.key.ChainCode())
			priv.Zero()
			if err != nil {
				return nil, errs.Wrap(err, "bootstrap witness")
			}
			ws.Bootstrap = append(ws.Bootstrap, w)
			continue
		}
		w, err := tx.SignVKey(id, priv)
		priv.Zero()
		if err != nil {
			return nil, errs.Wrap(err, "vkey witness")
		}
		ws.VKeys = append(ws.VKeys, w)
	}

	signed, err := finalize(u, ws, errs.ErrInvalidSignRequest)
	if err != nil {
		return nil, err
	}
	l.logger.Debug().
		Str("tx", signed.ID).
		Int("witnesses", ws.Len()).
		Msgf("Signed %T", req)
	return signed, nil
}

// keysFor derives one key per distinct credential u needs.
func (l *Local) keysFor(u *txbuilder.Unsigned) ([]signingKey, error) {
	var out []signingKey
	var stake *keys.HDKey
	seen := make(map[types.KeyHash]bool)

	if len(u.NeededStakingKeyHashes) > 0 {
		if !l.era.SupportsStaking() {
			return nil, fmt.Errorf("%w: %s era has no staking key", errs.ErrInvalidSignRequest, l.era)
		}
		var err error
		stake, err = keys.StakingKey(l.account, l.era)
		if err != nil {
			return nil, errs.Wrap(err, "derive staking key")
		}
		for _, h := range u.NeededStakingKeyHashes {
			if h != stake.KeyHash() {
				return nil, fmt.Errorf("%w: staking key %s is not this wallet's", errs.ErrInvalidSignRequest, h)
			}
		}
		seen[stake.KeyHash()] = true
	}

	for _, in := range u.Inputs {
		key, err := keys.DeriveFromAccount(l.account, l.era, in.Addressing)
		if err != nil {
			return nil, fmt.Errorf("%w: input %s: %v", errs.ErrInvalidSignRequest, in.ID(), err)
		}
		addr, err := types.ParseAddress(in.Receiver)
		if err != nil {
			return nil, fmt.Errorf("%w: input %s: %v", errs.ErrInvalidSignRequest, in.ID(), err)
		}
		if h, ok := addr.PaymentKeyHash(); !ok || h != key.KeyHash() {
			return nil, fmt.Errorf("%w: input %s is not owned by %s", errs.ErrInvalidSignRequest, in.ID(), in.Addressing.Path)
		}
		if seen[key.KeyHash()] {
			continue
		}
		seen[key.KeyHash()] = true
		out = append(out, signingKey{key: key, bootstrap: addr.Kind() == types.KindLegacy})
	}
	if stake != nil {
		out = append(out, signingKey{key: stake})
	}
	return out, nil
}
