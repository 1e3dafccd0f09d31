package config

import (
	"testing"
	"time"
)

func TestTimeToSlot_Mainnet(t *testing.T) {
	n := MainnetParams()
	byronSpan := time.Duration(208*21600) * 20 * time.Second
	shelleyStart := n.StartAt.Add(byronSpan)

	tests := []struct {
		name string
		at   time.Time
		want SlotInfo
	}{
		{"genesis", n.StartAt, SlotInfo{0, 0, 0}},
		{"byron slot 1", n.StartAt.Add(20 * time.Second), SlotInfo{1, 0, 1}},
		{"byron epoch 1", n.StartAt.Add(21600 * 20 * time.Second), SlotInfo{21600, 1, 0}},
		{"shelley start", shelleyStart, SlotInfo{4492800, 208, 0}},
		{"shelley +1 epoch +5s", shelleyStart.Add(432005 * time.Second), SlotInfo{4492800 + 432005, 209, 5}},
	}
	for _, tt := range tests {
		got, err := n.TimeToSlot(tt.at)
		if err != nil {
			t.Fatalf("%s: TimeToSlot() error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: TimeToSlot() = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestTimeToSlot_BeforeStart(t *testing.T) {
	n := TestnetParams()
	if _, err := n.TimeToSlot(n.StartAt.Add(-time.Second)); err == nil {
		t.Error("TimeToSlot() accepted a time before network start")
	}
}

func TestTimeToSlot_Monotonic(t *testing.T) {
	n := MainnetParams()
	prev := uint64(0)
	for d := time.Duration(0); d < 6*365*24*time.Hour; d += 97 * 24 * time.Hour {
		got, err := n.TimeToSlot(n.StartAt.Add(d))
		if err != nil {
			t.Fatalf("TimeToSlot(+%v): %v", d, err)
		}
		if got.AbsoluteSlot < prev {
			t.Fatalf("slot went backwards at +%v: %d < %d", d, got.AbsoluteSlot, prev)
		}
		prev = got.AbsoluteSlot
	}
}
