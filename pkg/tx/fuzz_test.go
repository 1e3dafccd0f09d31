package tx

import "testing"

// FuzzDecode checks that arbitrary bytes never panic the decoder or the
// methods of a successfully decoded transaction.
func FuzzDecode(f *testing.F) {
	seed, _ := Encode(NewBuilder().Build())
	f.Add(seed)
	f.Add([]byte{})
	f.Add([]byte{0xf6})
	f.Add([]byte{0x84, 0xa0, 0xa0, 0xf5, 0xf6})

	f.Fuzz(func(t *testing.T, data []byte) {
		decoded, err := Decode(data)
		if err != nil {
			return
		}
		decoded.ID()
		decoded.Validate()
		decoded.VerifyWitnesses()
		decoded.WitnessKeyHashes()
	})
}
