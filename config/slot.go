package config

import (
	"fmt"
	"time"
)

// SlotInfo locates a point in chain time.
type SlotInfo struct {
	AbsoluteSlot uint64
	Epoch        uint64
	Slot         uint64
}

// TimeToSlot converts wall-clock time to chain time using the network's
// era schedule. Times before the network start are rejected.
func (n Network) TimeToSlot(t time.Time) (SlotInfo, error) {
	if len(n.Eras) == 0 {
		return SlotInfo{}, fmt.Errorf("network %s has no era schedule", n.Name)
	}
	if t.Before(n.StartAt) {
		return SlotInfo{}, fmt.Errorf("time %s precedes network start %s", t, n.StartAt)
	}

	elapsed := t.Sub(n.StartAt)
	var absolute uint64
	for i, era := range n.Eras {
		if era.SlotLength <= 0 || era.SlotsPerEpoch == 0 {
			return SlotInfo{}, fmt.Errorf("network %s: invalid era %d", n.Name, i)
		}
		last := i == len(n.Eras)-1
		if !last {
			epochs := n.Eras[i+1].StartEpoch - era.StartEpoch
			span := time.Duration(epochs*era.SlotsPerEpoch) * era.SlotLength
			if elapsed >= span {
				elapsed -= span
				absolute += epochs * era.SlotsPerEpoch
				continue
			}
		}
		slots := uint64(elapsed / era.SlotLength)
		return SlotInfo{
			AbsoluteSlot: absolute + slots,
			Epoch:        era.StartEpoch + slots/era.SlotsPerEpoch,
			Slot:         slots % era.SlotsPerEpoch,
		}, nil
	}
	// Unreachable: the last era always returns.
	return SlotInfo{}, fmt.Errorf("network %s: slot conversion failed", n.Name)
}
