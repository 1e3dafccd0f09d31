package tx

import (
	"github.com/Klingon-tech/klingwallet/pkg/crypto"
)

const chainCodeSize = 32

// WitnessEstimate counts the witnesses a transaction will carry once signed.
type WitnessEstimate struct {
	VKeys     int
	Bootstrap int
}

// EstimateSize returns the encoded size of body once signed by the
// estimated witnesses and carrying aux.
func EstimateSize(body *Body, w WitnessEstimate, aux []byte) (int, error) {
	t := &Transaction{Body: *body, Valid: true, AuxData: aux}
	for i := 0; i < w.VKeys; i++ {
		t.Witnesses.VKeys = append(t.Witnesses.VKeys, VKeyWitness{
			PublicKey: make([]byte, crypto.PublicKeySize),
			Signature: make([]byte, crypto.SignatureSize),
		})
	}
	for i := 0; i < w.Bootstrap; i++ {
		t.Witnesses.Bootstrap = append(t.Witnesses.Bootstrap, BootstrapWitness{
			PublicKey: make([]byte, crypto.PublicKeySize),
			Signature: make([]byte, crypto.SignatureSize),
			ChainCode: make([]byte, chainCodeSize),
		})
	}
	data, err := Encode(t)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// MinFee returns coefficient * size + constant for the estimated signed size.
func MinFee(body *Body, w WitnessEstimate, aux []byte, coefficient, constant uint64) (uint64, error) {
	size, err := EstimateSize(body, w, aux)
	if err != nil {
		return 0, err
	}
	return coefficient*uint64(size) + constant, nil
}
