package types

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestBech32_Roundtrip(t *testing.T) {
	data := []byte{0x8f, 0x3a, 0x44, 0xb8, 0x05, 0x6c, 0xaf, 0xec, 0x36, 0x8d,
		0xea, 0x0c, 0xbe, 0x0a, 0xd1, 0xd9, 0xbc, 0x3f, 0x43, 0x05}

	encoded, err := Bech32Encode("addr", data)
	if err != nil {
		t.Fatalf("Bech32Encode: %v", err)
	}
	hrp, decoded, err := Bech32Decode(encoded)
	if err != nil {
		t.Fatalf("Bech32Decode: %v", err)
	}
	if hrp != "addr" {
		t.Errorf("HRP = %q, want addr", hrp)
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("decoded = %x, want %x", decoded, data)
	}
}

// BIP-173 valid checksum vector with empty data.
func TestBech32Decode_KnownVector(t *testing.T) {
	hrp, data, err := Bech32Decode("A12UEL5L")
	if err != nil {
		t.Fatalf("Bech32Decode: %v", err)
	}
	if hrp != "a" || len(data) != 0 {
		t.Errorf("got hrp=%q data=%x, want a and empty", hrp, data)
	}
}

func TestBech32_LongPayload(t *testing.T) {
	data := make([]byte, 57)
	encoded, err := Bech32Encode("addr_test", data)
	if err != nil {
		t.Fatalf("Bech32Encode: %v", err)
	}
	if len(encoded) <= 90 {
		t.Fatalf("expected encoding longer than 90 chars, got %d", len(encoded))
	}
	if _, got, err := Bech32Decode(encoded); err != nil || !bytes.Equal(got, data) {
		t.Errorf("Bech32Decode long payload: %v", err)
	}
}

func TestBech32Decode_Errors(t *testing.T) {
	valid, _ := Bech32Encode("addr", make([]byte, 20))
	flipped := []byte(valid)
	if flipped[len(flipped)-1] == 'q' {
		flipped[len(flipped)-1] = 'p'
	} else {
		flipped[len(flipped)-1] = 'q'
	}

	tests := []struct {
		name string
		in   string
		want error
	}{
		{"checksum", string(flipped), ErrBech32Checksum},
		{"mixed", "addr1" + strings.ToUpper(valid[5:]), ErrBech32MixedCase},
	}
	for _, tt := range tests {
		_, _, err := Bech32Decode(tt.in)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}

	for _, s := range []string{"", "noseparator", "addr1b", "addr1" + "bbbbbbb"} {
		if _, _, err := Bech32Decode(s); err == nil {
			t.Errorf("Bech32Decode(%q) should fail", s)
		}
	}
}

func TestBech32Encode_EmptyHRP(t *testing.T) {
	if _, err := Bech32Encode("", []byte{1}); err == nil {
		t.Error("empty HRP should fail")
	}
}
