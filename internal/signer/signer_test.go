package signer

import (
	"errors"
	"testing"
	"time"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/addrchain"
	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/internal/txbuilder"
	"github.com/Klingon-tech/klingwallet/pkg/crypto"
	"github.com/Klingon-tech/klingwallet/pkg/tx"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon abandon abandon art"

type wallet struct {
	era      keys.Era
	master   *keys.HDKey
	account  *keys.HDKey
	internal *addrchain.Chain
	external *addrchain.Chain
	builder  *txbuilder.Builder
}

func newWallet(t *testing.T, era keys.Era) *wallet {
	t.Helper()
	seed, err := keys.SeedFromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	master, err := keys.NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}
	account, err := keys.DeriveAccountKey(master, era)
	if err != nil {
		t.Fatalf("DeriveAccountKey() error: %v", err)
	}
	network := config.MainnetParams()
	chain := func(tag addrchain.Tag) *addrchain.Chain {
		gen, err := addrchain.NewGenerator(addrchain.GeneratorParams{
			AccountPubKey: account.Neuter().Hex(),
			Type:          tag,
			Era:           era,
			NetworkTag:    network.ChainNetworkTag,
		})
		if err != nil {
			t.Fatalf("NewGenerator() error: %v", err)
		}
		c, err := addrchain.New(gen, 5, 5)
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		if err := c.Initialize(); err != nil {
			t.Fatalf("Initialize() error: %v", err)
		}
		return c
	}
	w := &wallet{era: era, master: master, account: account, internal: chain(addrchain.Internal), external: chain(addrchain.External)}
	w.builder = txbuilder.New(network, w.internal, w.external).
		WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) })
	return w
}

func (w *wallet) utxos(t *testing.T) []types.Utxo {
	t.Helper()
	a0, _ := w.external.AddressAt(0)
	a1, _ := w.external.AddressAt(1)
	return []types.Utxo{
		{Outpoint: types.Outpoint{TxHash: types.Hash{1}, TxIndex: 0}, Receiver: a0, Amount: types.Coins(3 * config.ADA)},
		{Outpoint: types.Outpoint{TxHash: types.Hash{1}, TxIndex: 1}, Receiver: a0, Amount: types.Coins(3 * config.ADA)},
		{Outpoint: types.Outpoint{TxHash: types.Hash{2}, TxIndex: 0}, Receiver: a1, Amount: types.Coins(2 * config.ADA)},
	}
}

func (w *wallet) payment(t *testing.T) *txbuilder.PaymentRequest {
	t.Helper()
	to := types.NewBaseAddress(1, types.KeyHash{0xaa}, types.KeyHash{0xbb}).String()
	req, err := w.builder.BuildUnsigned(w.utxos(t), to, []txbuilder.SendToken{{SendAll: true}}, "", time.Time{}, nil)
	if err != nil {
		t.Fatalf("BuildUnsigned() error: %v", err)
	}
	return req
}

func (w *wallet) stakeHash(t *testing.T) types.KeyHash {
	t.Helper()
	k, err := keys.StakingKey(w.account, w.era)
	if err != nil {
		t.Fatalf("StakingKey() error: %v", err)
	}
	return k.KeyHash()
}

func (w *wallet) delegation(t *testing.T, needed types.KeyHash) *txbuilder.DelegationRequest {
	t.Helper()
	u, err := w.builder.NewUnsigned(txbuilder.UnsignedParams{
		Utxos: w.utxos(t),
		Certificates: []tx.Certificate{
			{Kind: tx.CertStakeRegistration, StakeKeyHash: needed},
			{Kind: tx.CertStakeDelegation, StakeKeyHash: needed, PoolKeyHash: types.KeyHash{0x66}},
		},
		NeededStakingKeyHashes: []types.KeyHash{needed},
		Slot:                   1000,
	})
	if err != nil {
		t.Fatalf("NewUnsigned() error: %v", err)
	}
	return &txbuilder.DelegationRequest{Unsigned: u, PoolKeyHash: types.KeyHash{0x66}, Registering: true}
}

func checkSigned(t *testing.T, signed *SignedTx) *tx.Transaction {
	t.Helper()
	decoded, err := signed.Decode()
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	body, err := tx.EncodeBody(&decoded.Body)
	if err != nil {
		t.Fatalf("EncodeBody() error: %v", err)
	}
	if want := crypto.Blake2b256(body).String(); signed.ID != want {
		t.Errorf("ID = %s, want body hash %s", signed.ID, want)
	}
	if err := decoded.VerifyWitnesses(); err != nil {
		t.Errorf("VerifyWitnesses() error: %v", err)
	}
	return decoded
}

func newLocal(t *testing.T, w *wallet) *Local {
	t.Helper()
	l, err := NewLocal(w.master, w.era)
	if err != nil {
		t.Fatalf("NewLocal() error: %v", err)
	}
	return l
}

func TestLocal_SignPayment(t *testing.T) {
	w := newWallet(t, keys.EraShelley)
	signed, err := newLocal(t, w).Sign(w.payment(t))
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	decoded := checkSigned(t, signed)
	// Three inputs at two addresses need two witnesses.
	if len(decoded.Witnesses.VKeys) != 2 || len(decoded.Witnesses.Bootstrap) != 0 {
		t.Errorf("witnesses = %d vkey, %d bootstrap; want 2, 0",
			len(decoded.Witnesses.VKeys), len(decoded.Witnesses.Bootstrap))
	}
}

func TestLocal_SignDelegation(t *testing.T) {
	w := newWallet(t, keys.EraShelley)
	signed, err := newLocal(t, w).Sign(w.delegation(t, w.stakeHash(t)))
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	decoded := checkSigned(t, signed)
	if !decoded.WitnessKeyHashes()[w.stakeHash(t)] {
		t.Error("staking key did not witness the delegation")
	}
}

func TestLocal_Byron(t *testing.T) {
	w := newWallet(t, keys.EraByron)
	signed, err := newLocal(t, w).Sign(w.payment(t))
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	decoded := checkSigned(t, signed)
	if len(decoded.Witnesses.Bootstrap) != 2 || len(decoded.Witnesses.VKeys) != 0 {
		t.Errorf("legacy inputs need bootstrap witnesses, got %+v", decoded.Witnesses)
	}
}

func TestLocal_Guard(t *testing.T) {
	shelley := newWallet(t, keys.EraShelley)
	byron := newWallet(t, keys.EraByron)

	foreign := shelley.delegation(t, types.KeyHash{0x55})
	byronStake := byron.payment(t)
	byronStake.Unsigned.NeededStakingKeyHashes = []types.KeyHash{{0x01}}
	wrongPath := shelley.payment(t)
	wrongPath.Inputs[0].Addressing.Path[4] = 99

	tests := []struct {
		name   string
		signer *Local
		req    txbuilder.SignRequest
	}{
		{"foreign staking key", newLocal(t, shelley), foreign},
		{"byron staking witness", newLocal(t, byron), byronStake},
		{"input path mismatch", newLocal(t, shelley), wrongPath},
		{"nil request", newLocal(t, shelley), nil},
		{"nil variant", newLocal(t, shelley), (*txbuilder.PaymentRequest)(nil)},
		{"empty variant", newLocal(t, shelley), &txbuilder.WithdrawalRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := tt.signer.Sign(tt.req)
			if !errors.Is(err, errs.ErrInvalidSignRequest) {
				t.Errorf("Sign() err = %v, want ErrInvalidSignRequest", err)
			}
			if signed != nil {
				t.Error("Sign() produced a transaction on failure")
			}
		})
	}
}

func TestNewLocal_PublicKey(t *testing.T) {
	w := newWallet(t, keys.EraShelley)
	if _, err := NewLocal(w.master.Neuter(), keys.EraShelley); err == nil {
		t.Error("NewLocal() accepted a public key")
	}
}
