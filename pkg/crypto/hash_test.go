package crypto

import (
	"encoding/hex"
	"testing"
)

func TestHash(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"empty input", []byte{}, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
		{"hello", []byte("hello"), "ea8f163db38682925e4491c5e58d4bb3506ef8c14eb78a86e908c5624a67200f"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Hash(tt.input)
			if got.String() != tt.want {
				t.Errorf("Hash(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestBlake2b(t *testing.T) {
	if got := Blake2b256(nil).String(); got != "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8" {
		t.Errorf("Blake2b256(empty) = %s", got)
	}
	if got := Blake2b224(nil).String(); got != "836cc68931c2e4e3e838602eca1902591d216837bafddfe6f0c8cb07" {
		t.Errorf("Blake2b224(empty) = %s", got)
	}
	sum := Blake2b512([]byte("abc"))
	want := "ba80a53f981c4d0d6a2797b69f12f6e94c212f14685ac4b74b12bb6fdbffa2d1" +
		"7d87c5392aab792dc252d5de4533cc9518d38aa8dbf1925ab92386edd4009923"
	if got := hex.EncodeToString(sum[:]); got != want {
		t.Errorf("Blake2b512(abc) = %s", got)
	}
}

func TestKeyHashFromPubKey_Distinct(t *testing.T) {
	a, _ := GenerateKey()
	b, _ := GenerateKey()
	if KeyHashFromPubKey(a.PublicKey()) == KeyHashFromPubKey(b.PublicKey()) {
		t.Error("distinct keys produced the same key hash")
	}
}
