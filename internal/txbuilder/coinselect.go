package txbuilder

import (
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/pkg/tx"
	"github.com/Klingon-tech/klingwallet/pkg/types"
)

// maxFeeRounds bounds the fee fixed-point search. The fee only grows
// between rounds and its encoding changes size at most a few times.
const maxFeeRounds = 8

// plan is everything about a transaction except its inputs.
type plan struct {
	network config.Network

	outputs      []tx.Output
	sendAll      bool
	certificates []tx.Certificate
	withdrawals  []tx.Withdrawal
	deposit      uint64
	refund       uint64
	ttl          uint64
	aux          []byte
	stakingWits  int
	change       types.Address
}

// CoinSelection is a balanced choice of inputs.
type CoinSelection struct {
	Inputs []AddressedUtxo
	Body   tx.Body
	Fee    uint64
	// Change is the value returned to the change address. Zero when the
	// leftover was folded into the fee.
	Change    types.Value
	HasChange bool
}

func (p *plan) witnesses(inputs []AddressedUtxo) tx.WitnessEstimate {
	w := tx.WitnessEstimate{VKeys: p.stakingWits}
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if seen[in.Receiver] {
			continue
		}
		seen[in.Receiver] = true
		if addr, err := types.ParseAddress(in.Receiver); err == nil && addr.Kind() == types.KindLegacy {
			w.Bootstrap++
		} else {
			w.VKeys++
		}
	}
	return w
}

func (p *plan) body(inputs []AddressedUtxo, outputs []tx.Output, fee uint64) tx.Body {
	b := tx.NewBuilder()
	for _, in := range inputs {
		b.AddInput(in.Outpoint)
	}
	for _, o := range outputs {
		b.AddOutput(o.Address, o.Amount)
	}
	for _, c := range p.certificates {
		b.AddCertificate(c)
	}
	for _, w := range p.withdrawals {
		b.AddWithdrawal(w.RewardAddress, w.Amount)
	}
	b.SetFee(fee).SetTTL(p.ttl).SetAuxData(p.aux)
	return b.Body()
}

// settle finds the smallest fee covering a body whose outputs depend on
// the fee through shape.
func (p *plan) settle(inputs []AddressedUtxo, shape func(fee uint64) ([]tx.Output, bool)) (tx.Body, uint64, bool, error) {
	w := p.witnesses(inputs)
	var fee uint64
	for round := 0; round < maxFeeRounds; round++ {
		outputs, ok := shape(fee)
		if !ok {
			return tx.Body{}, 0, false, nil
		}
		body := p.body(inputs, outputs, fee)
		need, err := tx.MinFee(&body, w, p.aux, p.network.LinearFee.Coefficient, p.network.LinearFee.Constant)
		if err != nil {
			return tx.Body{}, 0, false, errs.Wrap(err, "estimate fee")
		}
		if need <= fee {
			return body, fee, true, nil
		}
		fee = need
	}
	return tx.Body{}, 0, false, fmt.Errorf("fee did not converge after %d rounds", maxFeeRounds)
}

func (p *plan) available(inputs []AddressedUtxo) types.Value {
	total := types.Coins(p.refund + withdrawn(p.withdrawals))
	for _, in := range inputs {
		total = total.Add(in.Amount)
	}
	return total
}

func (p *plan) required() types.Value {
	total := types.Coins(p.deposit)
	for _, o := range p.outputs {
		total = total.Add(o.Amount)
	}
	return total
}

// balance builds the cheapest valid transaction spending exactly inputs,
// or reports that the inputs cannot cover it.
func (p *plan) balance(inputs []AddressedUtxo) (*CoinSelection, bool, error) {
	if p.sendAll {
		return p.balanceAll(inputs)
	}
	leftover, err := p.available(inputs).Sub(p.required())
	if err != nil {
		return nil, false, nil
	}

	minChange := p.network.MinUTXO(len(leftover.AssetIDs()))
	body, fee, ok, err := p.settle(inputs, func(fee uint64) ([]tx.Output, bool) {
		if leftover.Coin < fee+minChange {
			return nil, false
		}
		change := leftover.Clone()
		change.Coin -= fee
		return append(cloneOutputs(p.outputs), tx.Output{Address: p.change, Amount: change}), true
	})
	if err != nil {
		return nil, false, err
	}
	if ok {
		change := leftover.Clone()
		change.Coin -= fee
		return &CoinSelection{Inputs: inputs, Body: body, Fee: fee, Change: change, HasChange: true}, true, nil
	}

	// Leftover too small for a change output: fold it into the fee when it
	// carries no assets.
	if leftover.HasAssets() {
		return nil, false, nil
	}
	body, fee, ok, err = p.settle(inputs, func(fee uint64) ([]tx.Output, bool) {
		return cloneOutputs(p.outputs), leftover.Coin >= fee
	})
	if err != nil || !ok {
		return nil, false, err
	}
	body.Fee = leftover.Coin
	need, err := tx.MinFee(&body, p.witnesses(inputs), p.aux, p.network.LinearFee.Coefficient, p.network.LinearFee.Constant)
	if err != nil {
		return nil, false, errs.Wrap(err, "estimate fee")
	}
	if need > body.Fee {
		return nil, false, nil
	}
	return &CoinSelection{Inputs: inputs, Body: body, Fee: leftover.Coin}, true, nil
}

// balanceAll sends everything the inputs hold, minus fee and deposits, to
// the first output.
func (p *plan) balanceAll(inputs []AddressedUtxo) (*CoinSelection, bool, error) {
	if len(p.outputs) != 1 {
		return nil, false, fmt.Errorf("send-all needs exactly one output, got %d", len(p.outputs))
	}
	avail := p.available(inputs)
	if avail.Coin < p.deposit {
		return nil, false, nil
	}
	total := avail.Clone()
	total.Coin -= p.deposit
	minOut := p.network.MinUTXO(len(total.AssetIDs()))

	body, fee, ok, err := p.settle(inputs, func(fee uint64) ([]tx.Output, bool) {
		if total.Coin < fee+minOut {
			return nil, false
		}
		out := total.Clone()
		out.Coin -= fee
		return []tx.Output{{Address: p.outputs[0].Address, Amount: out}}, true
	})
	if err != nil || !ok {
		return nil, false, err
	}
	return &CoinSelection{Inputs: inputs, Body: body, Fee: fee}, true, nil
}

// SelectCoins chooses inputs for p. It tries two strategies:
//  1. Single UTXO: the smallest one that balances the transaction alone.
//  2. Largest-first accumulation, starting with UTXOs holding the assets
//     being sent.
//
// Returns the strategy with the lower fee.
func (p *plan) SelectCoins(utxos []AddressedUtxo) (*CoinSelection, error) {
	if p.sendAll {
		sel, ok, err := p.balance(sortedByOutpoint(utxos))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: have %s, need more than %s", errs.ErrInsufficientFunds, p.available(utxos), p.required())
		}
		return sel, nil
	}

	candidates := make([]AddressedUtxo, 0, len(utxos))
	for _, u := range utxos {
		if !u.Amount.IsZero() {
			candidates = append(candidates, u)
		}
	}
	wanted := p.required().AssetIDs()

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Amount.Coin < candidates[j].Amount.Coin
	})

	// Strategy 1: Single UTXO.
	var single *CoinSelection
	for _, u := range candidates {
		sel, ok, err := p.balance([]AddressedUtxo{u})
		if err != nil {
			return nil, err
		}
		if ok {
			single = sel
			break
		}
	}

	// Strategy 2: Largest-first accumulation.
	order := append([]AddressedUtxo(nil), candidates...)
	sort.SliceStable(order, func(i, j int) bool {
		hi, hj := holds(order[i], wanted), holds(order[j], wanted)
		if hi != hj {
			return hi > hj
		}
		return order[i].Amount.Coin > order[j].Amount.Coin
	})
	var accum *CoinSelection
	var selected []AddressedUtxo
	for _, u := range order {
		selected = append(selected, u)
		if !p.available(selected).Covers(p.required()) {
			continue
		}
		sel, ok, err := p.balance(sortedByOutpoint(selected))
		if err != nil {
			return nil, err
		}
		if ok {
			accum = sel
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		if single.Fee <= accum.Fee {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	default:
		return nil, fmt.Errorf("%w: have %s, need %s plus fee", errs.ErrInsufficientFunds, p.available(candidates), p.required())
	}
}

func holds(u AddressedUtxo, assets []types.AssetID) int {
	n := 0
	for _, id := range assets {
		if u.Amount.Assets[id] > 0 {
			n++
		}
	}
	return n
}

func sortedByOutpoint(utxos []AddressedUtxo) []AddressedUtxo {
	out := append([]AddressedUtxo(nil), utxos...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func cloneOutputs(outs []tx.Output) []tx.Output {
	c := make([]tx.Output, len(outs))
	for i, o := range outs {
		c[i] = tx.Output{Address: o.Address, Amount: o.Amount.Clone()}
	}
	return c
}

func withdrawn(ws []tx.Withdrawal) uint64 {
	var total uint64
	for _, w := range ws {
		total += w.Amount
	}
	return total
}
