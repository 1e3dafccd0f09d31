package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/txcache"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// testLimits keeps chunks small so chunking is exercised.
func testLimits() config.BackendParams {
	return config.BackendParams{
		TxHistoryMaxAddresses:  2,
		FetchUTXOsMaxAddresses: 2,
		FilterUsedMaxAddresses: 2,
		TxHistoryResponseLimit: 2,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(testLimits(), srv.URL+"/api/", time.Second)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func decodeAddresses(t *testing.T, r *http.Request) []string {
	t.Helper()
	var req addressesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("decode request: %v", err)
	}
	return req.Addresses
}

func hashHex(b byte) string {
	return types.Hash{b}.String()
}

func TestFetchUTXOs_Chunked(t *testing.T) {
	var mu sync.Mutex
	var sizes []int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/txs/utxoForAddresses" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		addrs := decodeAddresses(t, r)
		mu.Lock()
		sizes = append(sizes, len(addrs))
		mu.Unlock()
		var out []RawUtxo
		for i, a := range addrs {
			out = append(out, RawUtxo{TxHash: hashHex(byte(len(a))), TxIndex: uint32(i), Receiver: a, Amount: 1000})
		}
		json.NewEncoder(w).Encode(out)
	})

	utxos, err := c.FetchUTXOs(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	if err != nil {
		t.Fatalf("FetchUTXOs() error: %v", err)
	}
	if len(utxos) != 5 {
		t.Fatalf("FetchUTXOs() returned %d utxos, want 5", len(utxos))
	}
	sort.Ints(sizes)
	if len(sizes) != 3 || sizes[0] != 1 || sizes[2] != 2 {
		t.Errorf("request sizes = %v, want [1 2 2]", sizes)
	}
	for _, u := range utxos {
		if u.Amount.Coin != 1000 || u.TxHash != (types.Hash{byte(len(u.Receiver))}) {
			t.Errorf("utxo = %+v", u)
		}
	}
}

func TestFetchUTXOs_Assets(t *testing.T) {
	policy := types.KeyHash{7}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"tx_hash":"` + hashHex(1) + `","tx_index":0,"receiver":"a","amount":"2000000",
			"assets":[{"policyId":"` + policy.String() + `","name":"746f6b","amount":"40"}]}]`))
	})
	utxos, err := c.FetchUTXOs(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("FetchUTXOs() error: %v", err)
	}
	id := types.NewAssetID(policy, []byte("tok"))
	if len(utxos) != 1 || utxos[0].Amount.Coin != 2_000_000 || utxos[0].Amount.Assets[id] != 40 {
		t.Errorf("utxos = %+v", utxos)
	}
}

func TestFilterUsedAddresses_PreservesOrder(t *testing.T) {
	used := map[string]bool{"e": true, "a": true, "c": true}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var out []string
		addrs := decodeAddresses(t, r)
		// Answer in reverse to check the client restores input order.
		for i := len(addrs) - 1; i >= 0; i-- {
			if used[addrs[i]] {
				out = append(out, addrs[i])
			}
		}
		json.NewEncoder(w).Encode(out)
	})
	got, err := c.FilterUsedAddresses(context.Background(), []string{"a", "b", "c", "d", "e"})
	if err != nil {
		t.Fatalf("FilterUsedAddresses() error: %v", err)
	}
	if strings.Join(got, ",") != "a,c,e" {
		t.Errorf("FilterUsedAddresses() = %v, want [a c e]", got)
	}
}

func TestFetchTxHistory_Pages(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	all := []RawTx{
		{Hash: hashHex(1), Status: txcache.StatusSuccessful, BlockNum: 1, Fee: 170000, LastUpdate: base.Add(1 * time.Minute),
			Outputs: []rawOutput{{Address: "a", Amount: 5}}},
		{Hash: hashHex(2), Status: txcache.StatusSuccessful, BlockNum: 2, LastUpdate: base.Add(2 * time.Minute),
			Certificates: []rawCertificate{{Kind: txcache.CertStakeRegistration, RewardAddress: "e1"}}},
		{Hash: hashHex(3), Status: txcache.StatusPending, LastUpdate: base.Add(3 * time.Minute),
			Inputs: []rawInput{{Address: "a", Amount: 5, TxHash: hashHex(1)}}},
	}
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req historyRequest
		json.NewDecoder(r.Body).Decode(&req)
		var page []RawTx
		for _, tx := range all {
			if tx.LastUpdate.After(req.DateFrom) && len(page) < 2 {
				page = append(page, tx)
			}
		}
		json.NewEncoder(w).Encode(page)
	})

	txs, err := c.FetchTxHistory(context.Background(), []string{"a"}, base)
	if err != nil {
		t.Fatalf("FetchTxHistory() error: %v", err)
	}
	if len(txs) != 3 || calls.Load() != 2 {
		t.Fatalf("got %d txs in %d calls, want 3 in 2", len(txs), calls.Load())
	}
	if txs[0].Fee != 170000 || txs[0].Outputs[0].Amount.Coin != 5 {
		t.Errorf("tx 0 = %+v", txs[0])
	}
	if len(txs[1].Certificates) != 1 || txs[1].Certificates[0].Kind != txcache.CertStakeRegistration {
		t.Errorf("tx 1 certificates = %+v", txs[1].Certificates)
	}
	if txs[2].Status != txcache.StatusPending || txs[2].Inputs[0].TxHash != (types.Hash{1}) {
		t.Errorf("tx 2 = %+v", txs[2])
	}
}

func TestFetchTxHistory_StuckCursor(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]RawTx{
			{Hash: hashHex(1), Status: txcache.StatusSuccessful, LastUpdate: at},
			{Hash: hashHex(2), Status: txcache.StatusSuccessful, LastUpdate: at},
		})
	})
	if _, err := c.FetchTxHistory(context.Background(), []string{"a"}, at); err == nil {
		t.Error("FetchTxHistory() looped on a page that does not advance")
	}
}

func TestSubmitTransaction(t *testing.T) {
	signed := []byte{0x84, 0xa4, 0x00}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		json.NewDecoder(r.Body).Decode(&req)
		got, _ := base64.StdEncoding.DecodeString(req.SignedTx)
		if string(got) != string(signed) {
			http.Error(w, "bad tx", http.StatusBadRequest)
		}
	})
	if err := c.SubmitTransaction(context.Background(), signed); err != nil {
		t.Fatalf("SubmitTransaction() error: %v", err)
	}
}

func TestErrors(t *testing.T) {
	t.Run("api", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "transaction rejected", http.StatusBadRequest)
		})
		err := c.SubmitTransaction(context.Background(), []byte{1})
		var ae *errs.APIError
		if !errors.As(err, &ae) || ae.Status != http.StatusBadRequest || ae.Body != "transaction rejected" {
			t.Errorf("err = %v, want APIError 400", err)
		}
		if errs.IsRetryable(err) {
			t.Error("400 reported as retryable")
		}
	})

	t.Run("network", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c, _ := New(testLimits(), url, time.Second)
		_, err := c.BestBlock(context.Background())
		var ne *errs.NetworkError
		if !errors.As(err, &ne) {
			t.Errorf("err = %v, want NetworkError", err)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{"))
		})
		_, err := c.ServerStatus(context.Background())
		var ce *errs.CardanoError
		if !errors.As(err, &ce) {
			t.Errorf("err = %v, want CardanoError", err)
		}
	})

	t.Run("chunk failure", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(strings.Join(decodeAddresses(t, r), ","), "c") {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("[]"))
		})
		_, err := c.FetchUTXOs(context.Background(), []string{"a", "b", "c"})
		if !errs.IsRetryable(err) {
			t.Errorf("err = %v, want retryable 503", err)
		}
	})
}

func TestAccountState(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"e1":{"isRegistered":true,"remainingAmount":"4000000","rewards":"5000000","withdrawals":"1000000","poolOperator":null},"e2":null}`))
	})
	states, err := c.AccountStates(context.Background(), []string{"e1", "e2"})
	if err != nil {
		t.Fatalf("AccountStates() error: %v", err)
	}
	if s := states["e1"]; s == nil || !s.Registered || s.RemainingAmount != 4_000_000 {
		t.Errorf("e1 = %+v", s)
	}
	if states["e2"] != nil {
		t.Errorf("e2 = %+v, want nil", states["e2"])
	}
}

func TestPoolInfo_Cached(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req poolInfoRequest
		json.NewDecoder(r.Body).Decode(&req)
		out := map[string]*PoolInfo{}
		for _, id := range req.PoolIDs {
			if id != "unknown" {
				out[id] = &PoolInfo{Name: "pool " + id, Ticker: strings.ToUpper(id)}
			}
		}
		json.NewEncoder(w).Encode(out)
	})

	got, err := c.PoolInfo(context.Background(), []string{"p1", "unknown"})
	if err != nil {
		t.Fatalf("PoolInfo() error: %v", err)
	}
	if got["p1"].Ticker != "P1" {
		t.Errorf("p1 = %+v", got["p1"])
	}
	if _, ok := got["unknown"]; ok {
		t.Error("unknown pool present in result")
	}
	if _, err := c.PoolInfo(context.Background(), []string{"p1"}); err != nil {
		t.Fatalf("PoolInfo() error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("backend called %d times, want 1", calls.Load())
	}
}

func TestTokenInfo_Cached(t *testing.T) {
	id := types.NewAssetID(types.KeyHash{7}, []byte("tok"))
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]*TokenInfo{string(id): {Name: "Token", Decimals: 2}})
	})
	for i := 0; i < 2; i++ {
		got, err := c.TokenInfo(context.Background(), []types.AssetID{id})
		if err != nil {
			t.Fatalf("TokenInfo() error: %v", err)
		}
		if got[id].Decimals != 2 {
			t.Errorf("TokenInfo() = %+v", got)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("backend called %d times, want 1", calls.Load())
	}
}

func TestStatusEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		switch r.URL.Path {
		case "/api/status":
			w.Write([]byte(`{"isServerOk":true,"serverTime":1704067200000}`))
		case "/api/v2/bestblock":
			w.Write([]byte(`{"epoch":450,"slot":100,"height":9000000,"hash":"ab"}`))
		case "/api/v0/catalyst/fundInfo":
			w.Write([]byte(`{"currentFund":{"id":10,"name":"Fund10"}}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	status, err := c.ServerStatus(ctx)
	if err != nil || !status.IsServerOK {
		t.Fatalf("ServerStatus() = %+v, %v", status, err)
	}
	if !status.Time().Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("server time = %v", status.Time())
	}
	tip, err := c.BestBlock(ctx)
	if err != nil || tip.Epoch != 450 || tip.Height != 9000000 {
		t.Errorf("BestBlock() = %+v, %v", tip, err)
	}
	fund, err := c.FundInfo(ctx)
	if err != nil || fund.CurrentFund == nil || fund.CurrentFund.ID != 10 || fund.NextFund != nil {
		t.Errorf("FundInfo() = %+v, %v", fund, err)
	}
}

func TestChunk(t *testing.T) {
	got := chunk([]string{"a", "b", "c"}, 2)
	if len(got) != 2 || len(got[0]) != 2 || len(got[1]) != 1 {
		t.Errorf("chunk() = %v", got)
	}
	if len(chunk(nil, 2)) != 0 {
		t.Error("chunk(nil) not empty")
	}
	if got := chunk([]string{"a", "b"}, 0); len(got) != 1 {
		t.Errorf("chunk(size 0) = %v, want one chunk", got)
	}
}
