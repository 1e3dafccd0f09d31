package delegation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/addrchain"
	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/internal/txbuilder"
	"github.com/Klingon-tech/klingwallet/internal/txcache"
	"github.com/Klingon-tech/klingwallet/pkg/tx"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon abandon abandon art"

var pool = types.KeyHash{0x66}

type fixture struct {
	network config.Network
	stake   types.KeyHash
	utxos   []types.Utxo
	builder *txbuilder.Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	seed, err := keys.SeedFromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	master, err := keys.NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}
	account, err := keys.DeriveAccountKey(master, keys.EraShelley)
	if err != nil {
		t.Fatalf("DeriveAccountKey() error: %v", err)
	}
	stake, err := keys.StakingKey(account, keys.EraShelley)
	if err != nil {
		t.Fatalf("StakingKey() error: %v", err)
	}
	network := config.MainnetParams()

	chains := make(map[addrchain.Tag]*addrchain.Chain)
	for _, tag := range []addrchain.Tag{addrchain.Internal, addrchain.External} {
		gen, err := addrchain.NewGenerator(addrchain.GeneratorParams{
			AccountPubKey: account.Neuter().Hex(),
			Type:          tag,
			Era:           keys.EraShelley,
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
		chains[tag] = c
	}
	addr, _ := chains[addrchain.External].AddressAt(0)
	return &fixture{
		network: network,
		stake:   stake.KeyHash(),
		utxos: []types.Utxo{
			{Outpoint: types.Outpoint{TxHash: types.Hash{1}}, Receiver: addr, Amount: types.Coins(10 * config.ADA)},
		},
		builder: txbuilder.New(network, chains[addrchain.Internal], chains[addrchain.External]).
			WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }),
	}
}

func (f *fixture) engine(state *AccountState, err error) *Engine {
	return New(f.builder, f.stake, func(context.Context, string) (*AccountState, error) {
		return state, err
	})
}

func cert(kind txcache.CertificateKind, pool string, block uint64) txcache.CertificateRecord {
	return txcache.CertificateRecord{
		Certificate: txcache.Certificate{Kind: kind, PoolKeyHash: pool},
		BlockNum:    block,
	}
}

func TestStatusFromCertificates(t *testing.T) {
	p1 := types.KeyHash{1}.String()
	p2 := types.KeyHash{2}.String()

	tests := []struct {
		name  string
		certs []txcache.CertificateRecord
		want  Status
	}{
		{"none", nil, Status{}},
		{"registered", []txcache.CertificateRecord{cert(txcache.CertStakeRegistration, "", 1)}, Status{Registered: true}},
		{"delegated", []txcache.CertificateRecord{
			cert(txcache.CertStakeRegistration, "", 1),
			cert(txcache.CertStakeDelegation, p1, 1),
		}, Status{Registered: true, PoolKeyHash: types.KeyHash{1}}},
		{"redelegated", []txcache.CertificateRecord{
			cert(txcache.CertStakeRegistration, "", 1),
			cert(txcache.CertStakeDelegation, p1, 1),
			cert(txcache.CertStakeDelegation, p2, 5),
		}, Status{Registered: true, PoolKeyHash: types.KeyHash{2}}},
		{"deregistered", []txcache.CertificateRecord{
			cert(txcache.CertStakeRegistration, "", 1),
			cert(txcache.CertStakeDelegation, p1, 1),
			cert(txcache.CertStakeDeregistration, "", 9),
		}, Status{}},
		{"delegation without registration", []txcache.CertificateRecord{
			cert(txcache.CertStakeDelegation, p1, 1),
		}, Status{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StatusFromCertificates(tt.certs)
			if got != tt.want {
				t.Errorf("StatusFromCertificates() = %+v, want %+v", got, tt.want)
			}
			if got.Delegating() != !tt.want.PoolKeyHash.IsZero() {
				t.Errorf("Delegating() = %v", got.Delegating())
			}
		})
	}
}

func TestCreateDelegationTx(t *testing.T) {
	f := newFixture(t)
	registered := []txcache.CertificateRecord{cert(txcache.CertStakeRegistration, "", 1)}

	tests := []struct {
		name        string
		history     []txcache.CertificateRecord
		wantCerts   int
		wantDeposit uint64
	}{
		{"unregistered", nil, 2, f.network.KeyDeposit},
		{"registered", registered, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := f.engine(nil, nil).CreateDelegationTx(context.Background(), DelegationArgs{
				PoolKeyHash:    pool,
				Utxos:          f.utxos,
				History:        tt.history,
				ValueInAccount: 3 * config.ADA,
			})
			if err != nil {
				t.Fatalf("CreateDelegationTx() error: %v", err)
			}
			body := req.Body()
			if len(body.Certificates) != tt.wantCerts {
				t.Fatalf("certificates = %d, want %d", len(body.Certificates), tt.wantCerts)
			}
			last := body.Certificates[len(body.Certificates)-1]
			if last.Kind != tx.CertStakeDelegation || last.PoolKeyHash != pool || last.StakeKeyHash != f.stake {
				t.Errorf("delegation certificate = %+v", last)
			}
			if req.Deposit != tt.wantDeposit || req.Registering != (tt.wantDeposit > 0) {
				t.Errorf("Deposit = %d, Registering = %v", req.Deposit, req.Registering)
			}
			if len(req.NeededStakingKeyHashes) != 1 || req.NeededStakingKeyHashes[0] != f.stake {
				t.Errorf("NeededStakingKeyHashes = %v", req.NeededStakingKeyHashes)
			}
			want := 13*config.ADA - req.Fee() - tt.wantDeposit
			if req.TotalAmountToDelegate != want {
				t.Errorf("TotalAmountToDelegate = %d, want %d", req.TotalAmountToDelegate, want)
			}
		})
	}
}

func TestCreateDelegationTx_Errors(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine(nil, nil).CreateDelegationTx(context.Background(), DelegationArgs{Utxos: f.utxos}); !errors.Is(err, tx.ErrMissingPoolHash) {
		t.Errorf("missing pool: err = %v", err)
	}
	_, err := f.engine(nil, nil).CreateDelegationTx(context.Background(), DelegationArgs{PoolKeyHash: pool})
	if !errors.Is(err, errs.ErrInsufficientFunds) {
		t.Errorf("no utxos: err = %v, want ErrInsufficientFunds", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.engine(nil, nil).CreateDelegationTx(ctx, DelegationArgs{PoolKeyHash: pool, Utxos: f.utxos}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: err = %v", err)
	}
}

func TestCreateWithdrawalTx(t *testing.T) {
	f := newFixture(t)
	state := &AccountState{Registered: true, RemainingAmount: 4 * config.ADA}

	t.Run("withdraw", func(t *testing.T) {
		req, err := f.engine(state, nil).CreateWithdrawalTx(context.Background(), WithdrawalArgs{Utxos: f.utxos})
		if err != nil {
			t.Fatalf("CreateWithdrawalTx() error: %v", err)
		}
		body := req.Body()
		if len(body.Withdrawals) != 1 || body.Withdrawals[0].Amount != 4*config.ADA {
			t.Errorf("withdrawals = %+v", body.Withdrawals)
		}
		if len(body.Certificates) != 0 || req.Refund != 0 || req.Deregistering {
			t.Error("withdrawal without deregistration carries a certificate")
		}
		if req.Withdrawn != 4*config.ADA {
			t.Errorf("Withdrawn = %d", req.Withdrawn)
		}
	})

	t.Run("deregister", func(t *testing.T) {
		req, err := f.engine(state, nil).CreateWithdrawalTx(context.Background(), WithdrawalArgs{Utxos: f.utxos, Deregister: true})
		if err != nil {
			t.Fatalf("CreateWithdrawalTx() error: %v", err)
		}
		body := req.Body()
		if len(body.Certificates) != 1 || body.Certificates[0].Kind != tx.CertStakeDeregistration {
			t.Errorf("certificates = %+v", body.Certificates)
		}
		if req.Refund != f.network.KeyDeposit {
			t.Errorf("Refund = %d, want %d", req.Refund, f.network.KeyDeposit)
		}
		out, _ := body.TotalOutput()
		if out.Coin+body.Fee != 10*config.ADA+4*config.ADA+f.network.KeyDeposit {
			t.Errorf("outputs %d + fee %d do not balance", out.Coin, body.Fee)
		}
	})
}

func TestCreateWithdrawalTx_Errors(t *testing.T) {
	f := newFixture(t)
	backendDown := &errs.NetworkError{Op: "account state", Err: errors.New("connection refused")}

	tests := []struct {
		name       string
		state      *AccountState
		fetchErr   error
		deregister bool
		wantErr    error
	}{
		{"unknown account", nil, nil, false, ErrNothingToWithdraw},
		{"no rewards", &AccountState{Registered: true}, nil, false, ErrNothingToWithdraw},
		{"deregister unregistered", &AccountState{RemainingAmount: 5}, nil, true, ErrNotRegistered},
		{"backend", nil, backendDown, false, backendDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine(tt.state, tt.fetchErr).CreateWithdrawalTx(context.Background(), WithdrawalArgs{
				Utxos:      f.utxos,
				Deregister: tt.deregister,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateWithdrawalTx() err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTotalAmountToDelegate(t *testing.T) {
	utxos := []types.Utxo{{Amount: types.Coins(5)}, {Amount: types.Coins(7)}}
	if got := TotalAmountToDelegate(utxos, 3, 2, 1); got != 12 {
		t.Errorf("TotalAmountToDelegate() = %d, want 12", got)
	}
	if got := TotalAmountToDelegate(utxos, 0, 20, 0); got != 0 {
		t.Errorf("TotalAmountToDelegate() = %d, want 0 when fee exceeds total", got)
	}
}
