package txcache

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Klingon-tech/klingwallet/pkg/types"
)

func hashOf(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	h[31] = b
	return h
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func confirmed(id byte, block uint64, ordinal int) Transaction {
	return Transaction{
		ID:            hashOf(id),
		Status:        StatusSuccessful,
		BlockNum:      block,
		TxOrdinal:     ordinal,
		LastUpdatedAt: t0.Add(time.Duration(block) * time.Minute),
	}
}

func TestUpdate_IndexesAndOrder(t *testing.T) {
	c := New()

	fund := confirmed(1, 10, 0)
	fund.Outputs = []Output{{Address: "mine1", Amount: types.Coins(5_000_000)}, {Address: "other", Amount: types.Coins(1)}}

	spend := confirmed(2, 12, 3)
	spend.Inputs = []Input{{Address: "mine1", Amount: types.Coins(5_000_000), TxHash: hashOf(1), Index: 0}}
	spend.Outputs = []Output{{Address: "other", Amount: types.Coins(3_000_000)}, {Address: "mine2", Amount: types.Coins(1_800_000)}}
	spend.Fee = 200_000

	if err := c.Update([]Transaction{spend, fund}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	txs := c.Transactions()
	if len(txs) != 2 || txs[0].ID != hashOf(1) || txs[1].ID != hashOf(2) {
		t.Fatalf("Transactions() not in chain order")
	}
	if got := c.PerAddressTxs("mine1"); len(got) != 2 {
		t.Errorf("PerAddressTxs(mine1) = %d entries, want 2", len(got))
	}
	if !c.LastUpdated().Equal(spend.LastUpdatedAt) {
		t.Errorf("LastUpdated() = %v, want %v", c.LastUpdated(), spend.LastUpdatedAt)
	}

	mine := func(a string) bool { return a == "mine1" || a == "mine2" }
	utxos := c.Utxos(mine)
	if len(utxos) != 1 {
		t.Fatalf("Utxos() = %d, want 1", len(utxos))
	}
	if utxos[0].Receiver != "mine2" || utxos[0].Amount.Coin != 1_800_000 || utxos[0].TxIndex != 1 {
		t.Errorf("Utxos()[0] = %+v", utxos[0])
	}
}

func TestUpdate_Atomic(t *testing.T) {
	c := New()
	if err := c.Update([]Transaction{confirmed(1, 1, 0)}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	bad := confirmed(3, 2, 0)
	bad.Status = "Lost"
	err := c.Update([]Transaction{confirmed(2, 2, 0), bad})
	if !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("Update() err = %v, want ErrInvalidTransaction", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d after failed update, want 1", c.Len())
	}
	if err := c.Update([]Transaction{{Status: StatusPending}}); !errors.Is(err, ErrInvalidTransaction) {
		t.Errorf("Update(zero id) err = %v", err)
	}
}

func TestCertificates_Ordered(t *testing.T) {
	c := New()
	reward := "e1aa"

	reg := confirmed(1, 5, 1)
	reg.Certificates = []Certificate{
		{Kind: CertStakeDelegation, RewardAddress: reward, PoolKeyHash: "p1", CertIndex: 1},
		{Kind: CertStakeRegistration, RewardAddress: reward, CertIndex: 0},
	}
	redeleg := confirmed(2, 9, 0)
	redeleg.Certificates = []Certificate{{Kind: CertStakeDelegation, RewardAddress: reward, PoolKeyHash: "p2"}}
	pending := Transaction{ID: hashOf(3), Status: StatusPending,
		Certificates: []Certificate{{Kind: CertStakeDeregistration, RewardAddress: reward}}}

	if err := c.Update([]Transaction{redeleg, pending, reg}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	certs := c.Certificates(reward)
	if len(certs) != 3 {
		t.Fatalf("Certificates() = %d, want 3 (pending excluded)", len(certs))
	}
	want := []CertificateKind{CertStakeRegistration, CertStakeDelegation, CertStakeDelegation}
	for i, k := range want {
		if certs[i].Kind != k {
			t.Errorf("cert %d kind = %s, want %s", i, certs[i].Kind, k)
		}
	}
	if certs[2].PoolKeyHash != "p2" {
		t.Errorf("last delegation pool = %s, want p2", certs[2].PoolKeyHash)
	}
}

func TestAddPending(t *testing.T) {
	c := New()
	out := []Output{{Address: "mine", Amount: types.Coins(2_000_000)}}
	if err := c.AddPending(Transaction{ID: hashOf(7), Outputs: out}); err != nil {
		t.Fatalf("AddPending() error: %v", err)
	}
	tx, ok := c.Get(hashOf(7))
	if !ok || tx.Status != StatusPending || tx.SubmittedAt.IsZero() {
		t.Fatalf("pending record = %+v, %v", tx, ok)
	}

	done := confirmed(7, 20, 0)
	done.Outputs = out
	if err := c.Update([]Transaction{done}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	tx, _ = c.Get(hashOf(7))
	if tx.Status != StatusSuccessful {
		t.Errorf("status = %s, want Successful", tx.Status)
	}
	if err := c.AddPending(Transaction{}); !errors.Is(err, ErrInvalidTransaction) {
		t.Errorf("AddPending(zero id) err = %v", err)
	}
}

func TestFailedTransactionsIgnoredForUtxos(t *testing.T) {
	c := New()
	fund := confirmed(1, 1, 0)
	fund.Outputs = []Output{{Address: "mine", Amount: types.Coins(9)}}
	failed := Transaction{ID: hashOf(2), Status: StatusFailed,
		Inputs: []Input{{Address: "mine", TxHash: hashOf(1), Index: 0}}}
	if err := c.Update([]Transaction{fund, failed}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if got := c.Utxos(func(a string) bool { return a == "mine" }); len(got) != 1 {
		t.Errorf("Utxos() = %d, want 1", len(got))
	}
}

func TestPendingUtxos(t *testing.T) {
	c := New()
	fund := confirmed(1, 1, 0)
	fund.Outputs = []Output{{Address: "mine", Amount: types.Coins(9_000_000)}}
	if err := c.Update([]Transaction{fund}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	spend := Transaction{
		ID:      hashOf(2),
		Inputs:  []Input{{Address: "mine", TxHash: hashOf(1), Index: 0}},
		Outputs: []Output{{Address: "other", Amount: types.Coins(2_000_000)}, {Address: "change", Amount: types.Coins(6_800_000)}},
		TTL:     500,
	}
	if err := c.AddPending(spend); err != nil {
		t.Fatalf("AddPending() error: %v", err)
	}
	mine := func(a string) bool { return a == "mine" || a == "change" }
	if got := c.Utxos(mine); len(got) != 0 {
		t.Fatalf("Utxos() with pending spend = %+v, want none", got)
	}
	if got := c.PerAddressTxs("change"); len(got) != 1 {
		t.Errorf("PerAddressTxs(change) = %d entries, want 1", len(got))
	}

	done := confirmed(2, 2, 0)
	done.Inputs, done.Outputs = spend.Inputs, spend.Outputs
	if err := c.Update([]Transaction{done}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	got := c.Utxos(mine)
	if len(got) != 1 || got[0].Receiver != "change" || got[0].TxHash != hashOf(2) {
		t.Errorf("Utxos() after confirmation = %+v", got)
	}
}

func TestExpirePending(t *testing.T) {
	tests := []struct {
		name    string
		ttl     uint64
		slot    uint64
		expired bool
	}{
		{"before ttl", 500, 400, false},
		{"at ttl", 500, 500, false},
		{"past ttl", 500, 501, true},
		{"no ttl", 0, 10_000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			fund := confirmed(1, 1, 0)
			fund.Outputs = []Output{{Address: "mine", Amount: types.Coins(9_000_000)}}
			if err := c.Update([]Transaction{fund}); err != nil {
				t.Fatalf("Update() error: %v", err)
			}
			err := c.AddPending(Transaction{
				ID:      hashOf(2),
				Inputs:  []Input{{Address: "mine", TxHash: hashOf(1), Index: 0}},
				Outputs: []Output{{Address: "mine", Amount: types.Coins(8_800_000)}},
				TTL:     tt.ttl,
			})
			if err != nil {
				t.Fatalf("AddPending() error: %v", err)
			}

			dropped := c.ExpirePending(tt.slot)
			if got := len(dropped) == 1; got != tt.expired {
				t.Fatalf("ExpirePending(%d) = %v, expired %v", tt.slot, dropped, tt.expired)
			}
			utxos := c.Utxos(func(a string) bool { return a == "mine" })
			if tt.expired {
				if c.Len() != 1 || len(c.PerAddressTxs("mine")) != 1 {
					t.Errorf("expired record still cached: Len() = %d", c.Len())
				}
				if len(utxos) != 1 || utxos[0].TxHash != hashOf(1) {
					t.Errorf("Utxos() after expiry = %+v, want the funding output", utxos)
				}
			} else if len(utxos) != 0 {
				t.Errorf("Utxos() = %+v, want none while pending", utxos)
			}
		})
	}
}

func TestExpirePending_KeepsConfirmed(t *testing.T) {
	c := New()
	done := confirmed(1, 1, 0)
	done.TTL = 10
	if err := c.Update([]Transaction{done}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if dropped := c.ExpirePending(1_000); dropped != nil || c.Len() != 1 {
		t.Errorf("ExpirePending() dropped %v, Len() = %d", dropped, c.Len())
	}
}

func TestResetState(t *testing.T) {
	c := New()
	tx := confirmed(1, 1, 0)
	tx.Outputs = []Output{{Address: "a", Amount: types.Coins(1)}}
	tx.Certificates = []Certificate{{Kind: CertStakeRegistration, RewardAddress: "r"}}
	if err := c.Update([]Transaction{tx}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	c.ResetState()
	if c.Len() != 0 || len(c.PerAddressTxs("a")) != 0 || len(c.Certificates("r")) != 0 || !c.LastUpdated().IsZero() {
		t.Error("ResetState() left derived data behind")
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	c := New()
	tx := confirmed(1, 3, 2)
	tx.Outputs = []Output{{Address: "a", Amount: types.Value{Coin: 4, Assets: map[types.AssetID]uint64{"00.01": 5}}}}
	tx.Certificates = []Certificate{{Kind: CertStakeRegistration, RewardAddress: "r"}}
	if err := c.Update([]Transaction{tx}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	restored, err := FromSnapshot(snap)
	if err != nil {
		t.Fatalf("FromSnapshot() error: %v", err)
	}
	got, ok := restored.Get(hashOf(1))
	if !ok || !got.Outputs[0].Amount.Equal(tx.Outputs[0].Amount) || got.TxOrdinal != 2 {
		t.Errorf("restored tx = %+v", got)
	}
	if len(restored.Certificates("r")) != 1 {
		t.Error("certificates not restored")
	}
	if !restored.LastUpdated().Equal(c.LastUpdated()) {
		t.Error("LastUpdated not restored")
	}
}

func TestFromSnapshot_Versions(t *testing.T) {
	old := Snapshot{Version: SchemaVersion - 1, Transactions: []Transaction{confirmed(1, 1, 0)}}
	c, err := FromSnapshot(old)
	if err != nil {
		t.Fatalf("FromSnapshot(old) error: %v", err)
	}
	if c.Len() != 0 {
		t.Error("outdated snapshot history was kept")
	}
	if _, err := FromSnapshot(Snapshot{Version: SchemaVersion + 1}); err == nil {
		t.Error("FromSnapshot accepted a newer schema")
	}
}
