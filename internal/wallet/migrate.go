package wallet

import (
	"strings"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/walletstore"
	"golang.org/x/mod/semver"
)

// ResyncBefore is the first version whose transaction cache is kept on
// restore. Older caches predate the current transaction format and sync
// protocol and are refetched.
const ResyncBefore = "4.1.0"

// migration upgrades snapshots written before a version. An empty before
// applies to every snapshot. apply reports whether it changed anything.
type migration struct {
	name   string
	before string
	apply  func(*upgrade) bool
}

// Migrations run in table order.
var migrations = []migration{
	{name: "backfill network id", before: "3.0.0", apply: backfillNetworkID},
	{name: "backfill implementation and account key", before: "3.0.2", apply: backfillImplementation},
	{name: "remap legacy network id", apply: remapNetwork},
	{name: "default read-only flag", apply: defaultReadOnly},
	{name: "force resync", before: ResyncBefore, apply: forceResync},
}

// upgrade is a snapshot being migrated.
type upgrade struct {
	registry *config.Registry
	meta     walletstore.Meta
	snap     walletstore.Snapshot

	resync  bool
	newer   bool
	applied []string
}

// migrate runs every migration that applies to the snapshot's version.
// Only fields absent from the snapshot are filled; present fields are
// never overwritten, so inconsistencies reach the integrity check.
func migrate(registry *config.Registry, meta walletstore.Meta, snap walletstore.Snapshot) (*upgrade, error) {
	v, err := canonicalVersion(snap.Version)
	if err != nil {
		return nil, err
	}
	u := &upgrade{
		registry: registry,
		meta:     meta,
		snap:     snap,
		newer:    semver.Compare(v, "v"+config.AppVersion) > 0,
	}
	for _, m := range migrations {
		if m.before != "" && semver.Compare(v, "v"+m.before) >= 0 {
			continue
		}
		if m.apply(u) {
			u.applied = append(u.applied, m.name)
		}
	}
	return u, nil
}

// canonicalVersion turns a stored "X.Y.Z" into semver form. Snapshots
// without a version predate versioning and sort before every release.
func canonicalVersion(s string) (string, error) {
	if s == "" {
		return "v0.0.0", nil
	}
	v := s
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", errs.InvalidState("snapshot version %q is not a semantic version", s)
	}
	return semver.Canonical(v), nil
}

func backfillNetworkID(u *upgrade) bool {
	if u.snap.NetworkID != nil {
		return false
	}
	id := u.meta.NetworkID
	u.snap.NetworkID = &id
	return true
}

func backfillImplementation(u *upgrade) bool {
	changed := false
	if u.snap.ImplementationID == "" {
		u.snap.ImplementationID = u.meta.ImplementationID
		changed = true
	}
	if u.snap.PublicKeyHex == "" {
		u.snap.PublicKeyHex = u.snap.ExternalChain.AddressGenerator.AccountPubKey
		changed = true
	}
	return changed
}

func remapNetwork(u *upgrade) bool {
	changed := false
	if to, ok := u.registry.Alias(u.meta.NetworkID); ok {
		u.meta.NetworkID = to
		changed = true
	}
	if u.snap.NetworkID == nil {
		return changed
	}
	if to, ok := u.registry.Alias(*u.snap.NetworkID); ok {
		u.snap.NetworkID = &to
		changed = true
	}
	return changed
}

func defaultReadOnly(u *upgrade) bool {
	if u.snap.IsReadOnly != nil {
		return false
	}
	ro := false
	u.snap.IsReadOnly = &ro
	return true
}

func forceResync(u *upgrade) bool {
	u.resync = true
	return true
}
