package types

import (
	"strings"
	"testing"
)

func TestOutpoint_StringParse(t *testing.T) {
	op := Outpoint{TxHash: Hash{0xaa, 0xbb}, TxIndex: 7}
	s := op.String()
	if !strings.HasSuffix(s, ":7") {
		t.Fatalf("String() = %s, want :7 suffix", s)
	}
	got, err := ParseOutpoint(s)
	if err != nil {
		t.Fatalf("ParseOutpoint: %v", err)
	}
	if got != op {
		t.Errorf("ParseOutpoint = %+v, want %+v", got, op)
	}
}

func TestParseOutpoint_Invalid(t *testing.T) {
	for _, s := range []string{"", "abcd", strings.Repeat("00", 32) + ":x", "zz:1"} {
		if _, err := ParseOutpoint(s); err == nil {
			t.Errorf("ParseOutpoint(%q) should fail", s)
		}
	}
}

func TestUtxo_ID(t *testing.T) {
	u := Utxo{Outpoint: Outpoint{TxHash: Hash{1}, TxIndex: 2}, Receiver: "addr", Amount: Coins(5)}
	if u.ID() != u.Outpoint.String() {
		t.Errorf("ID() = %s, want %s", u.ID(), u.Outpoint.String())
	}
}
