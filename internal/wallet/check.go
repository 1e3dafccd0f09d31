package wallet

import (
	"strings"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/addrchain"
	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/walletstore"
)

// checkIntegrity validates a migrated snapshot against its metadata and
// the registry. Every failure is errs.ErrInvalidState.
func checkIntegrity(registry *config.Registry, meta walletstore.Meta, snap walletstore.Snapshot) (config.Network, config.WalletImplementation, error) {
	fail := func(format string, args ...interface{}) (config.Network, config.WalletImplementation, error) {
		return config.Network{}, config.WalletImplementation{}, errs.InvalidState(format, args...)
	}

	if snap.NetworkID == nil {
		return fail("snapshot has no network id")
	}
	if snap.ImplementationID == "" {
		return fail("snapshot has no wallet implementation id")
	}
	if meta.NetworkID != *snap.NetworkID {
		return fail("metadata network %d disagrees with snapshot network %d", meta.NetworkID, *snap.NetworkID)
	}
	if meta.ImplementationID != "" && meta.ImplementationID != snap.ImplementationID {
		return fail("metadata implementation %s disagrees with snapshot implementation %s", meta.ImplementationID, snap.ImplementationID)
	}
	network, err := registry.Network(*snap.NetworkID)
	if err != nil {
		return fail("%v", err)
	}
	impl, err := registry.Implementation(snap.ImplementationID)
	if err != nil {
		return fail("%v", err)
	}
	if !network.SupportsImplementation(impl.ID) {
		return fail("implementation %s is not available on %s", impl.ID, network.Name)
	}

	if snap.PublicKeyHex == "" {
		return fail("snapshot has no account public key")
	}
	for _, c := range []struct {
		tag  addrchain.Tag
		snap addrchain.Snapshot
	}{
		{addrchain.Internal, snap.InternalChain},
		{addrchain.External, snap.ExternalChain},
	} {
		gen := c.snap.AddressGenerator
		switch {
		case gen.Type != c.tag:
			return fail("%s chain has generator type %q", c.tag, gen.Type)
		case !strings.EqualFold(gen.AccountPubKey, snap.PublicKeyHex):
			return fail("%s chain is derived from another account key", c.tag)
		case gen.Era != impl.Era:
			return fail("%s chain era %s, implementation era %s", c.tag, gen.Era, impl.Era)
		case gen.NetworkTag != network.ChainNetworkTag:
			return fail("%s chain network tag %d, network tag %d", c.tag, gen.NetworkTag, network.ChainNetworkTag)
		}
	}

	switch {
	case meta.IsHW && snap.HardwareInfo == nil:
		return fail("hardware wallet has no device descriptor")
	case !meta.IsHW && snap.HardwareInfo != nil:
		return fail("device descriptor on a wallet not marked as hardware")
	case snap.HardwareInfo != nil:
		if err := snap.HardwareInfo.Validate(); err != nil {
			return fail("%v", err)
		}
		if snap.IsReadOnly != nil && *snap.IsReadOnly {
			return fail("hardware wallet marked read-only")
		}
	}
	if snap.IsReadOnly == nil {
		return fail("snapshot has no read-only flag")
	}
	return network, impl, nil
}

func restoreChain(s addrchain.Snapshot) (*addrchain.Chain, error) {
	c, err := addrchain.FromSnapshot(s)
	if err != nil {
		return nil, errs.InvalidState("%s chain: %v", s.AddressGenerator.Type, err)
	}
	return c, nil
}
