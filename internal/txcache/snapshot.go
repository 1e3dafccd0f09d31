package txcache

import (
	"fmt"
	"time"
)

// SchemaVersion is the snapshot layout written by this package.
const SchemaVersion = 3

// Snapshot is the persisted form of a Cache.
type Snapshot struct {
	Version      int           `json:"version"`
	Transactions []Transaction `json:"transactions"`
	LastUpdated  time.Time     `json:"lastUpdated"`
}

// Snapshot captures every record in chain order.
func (c *Cache) Snapshot() Snapshot {
	return Snapshot{
		Version:      SchemaVersion,
		Transactions: c.Transactions(),
		LastUpdated:  c.lastUpdated,
	}
}

// FromSnapshot rebuilds a cache. Snapshots of an older schema carry history
// in a layout that is no longer trusted; they restore as an empty cache and
// the next sync refetches it. Newer schemas are rejected.
func FromSnapshot(s Snapshot) (*Cache, error) {
	c := New()
	switch {
	case s.Version > SchemaVersion:
		return nil, fmt.Errorf("transaction cache schema %d is newer than %d", s.Version, SchemaVersion)
	case s.Version < SchemaVersion:
		c.logger.Info().Int("version", s.Version).Msg("Discarding outdated transaction cache")
		return c, nil
	}
	if err := c.Update(s.Transactions); err != nil {
		return nil, err
	}
	c.lastUpdated = s.LastUpdated
	return c, nil
}
