package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/hw"
	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"github.com/spf13/cobra"
)

func newCreateCmd(a *app) *cobra.Command {
	var (
		name    string
		impl    string
		restore bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a wallet from a new or existing recovery phrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			implID := config.ImplementationID(impl)
			if implID == "" {
				implID = config.ImplementationID(a.cfg.Wallet.Implementation)
			}
			spec, err := a.registry.Implementation(implID)
			if err != nil {
				return err
			}

			var mnemonic string
			if restore {
				phrase, err := readPassword(fmt.Sprintf("Recovery phrase (%d words): ", spec.MnemonicWords))
				if err != nil {
					return err
				}
				mnemonic = string(phrase)
			} else {
				if mnemonic, err = keys.GenerateMnemonic(spec.MnemonicWords); err != nil {
					return err
				}
			}
			password, err := readNewPassword("Spending password: ")
			if err != nil {
				return err
			}
			w, err := a.engine.Create(wallet.CreateParams{
				Name:             name,
				Mnemonic:         mnemonic,
				Password:         password,
				NetworkID:        a.network.ID,
				ImplementationID: implID,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wallet created: %s\n", w.ID())
			fmt.Fprintf(out, "  Checksum: %s\n", w.Checksum().TextPart)
			if !restore {
				fmt.Fprintln(out, "\nRecovery phrase (write it down, it is shown once):")
				fmt.Fprintf(out, "  %s\n", mnemonic)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Wallet name")
	cmd.Flags().StringVar(&impl, "impl", "", "Wallet implementation (default from config)")
	cmd.Flags().BoolVar(&restore, "restore", false, "Prompt for an existing recovery phrase")
	return cmd
}

func newImportKeyCmd(a *app) *cobra.Command {
	var (
		name   string
		impl   string
		device hw.DeviceInfo
	)
	cmd := &cobra.Command{
		Use:   "import-key <account-public-key-hex>",
		Short: "Add a watch-only or hardware wallet from its account public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := wallet.AccountKeyParams{
				Name:                name,
				AccountPublicKeyHex: args[0],
				NetworkID:           a.network.ID,
				ImplementationID:    config.ImplementationID(impl),
			}
			if p.ImplementationID == "" {
				p.ImplementationID = config.ImplementationID(a.cfg.Wallet.Implementation)
			}
			if device.Vendor != "" || device.DeviceID != "" {
				info := device
				p.HardwareInfo = &info
			}
			w, err := a.engine.CreateFromAccountKey(p)
			if err != nil {
				return err
			}
			kind := "watch-only"
			if w.IsHW() {
				kind = "hardware"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s wallet %s (checksum %s)\n", kind, w.ID(), w.Checksum().TextPart)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Wallet name")
	cmd.Flags().StringVar(&impl, "impl", "", "Wallet implementation (default from config)")
	cmd.Flags().StringVar(&device.Vendor, "hw-vendor", "", "Hardware vendor, e.g. ledger")
	cmd.Flags().StringVar(&device.Model, "hw-model", "", "Hardware model")
	cmd.Flags().StringVar(&device.DeviceID, "hw-device-id", "", "Hardware device id")
	cmd.Flags().StringVar(&device.FirmwareVersion, "hw-firmware", "", "Hardware firmware version")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored wallets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			metas, err := a.engine.List()
			if err != nil {
				return err
			}
			if len(metas) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No wallets.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tIMPLEMENTATION\tCHECKSUM\tHW")
			for _, m := range metas {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n", m.ID, m.Name, m.ImplementationID, m.Checksum.TextPart, m.IsHW)
			}
			return tw.Flush()
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <wallet-id>",
		Short: "Show wallet details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:             %s\n", w.ID())
			fmt.Fprintf(out, "Name:           %s\n", w.Name())
			fmt.Fprintf(out, "Network:        %s\n", w.Network().Name)
			fmt.Fprintf(out, "Implementation: %s\n", w.Implementation().ID)
			fmt.Fprintf(out, "Checksum:       %s\n", w.Checksum().TextPart)
			fmt.Fprintf(out, "Account key:    %s\n", w.AccountPublicKeyHex())
			switch {
			case w.IsHW():
				info := w.HardwareInfo()
				fmt.Fprintf(out, "Device:         %s %s (%s)\n", info.Vendor, info.Model, info.DeviceID)
			case w.IsReadOnly():
				fmt.Fprintln(out, "Mode:           watch-only")
			}
			if reward := w.RewardAddress(); len(reward) > 0 {
				fmt.Fprintf(out, "Reward address: %s\n", reward)
				st := w.DelegationStatus()
				switch {
				case st.Delegating():
					fmt.Fprintf(out, "Delegated to:   %s\n", st.PoolKeyHash)
				case st.Registered:
					fmt.Fprintln(out, "Staking key:    registered, not delegated")
				default:
					fmt.Fprintln(out, "Staking key:    not registered")
				}
			}
			fmt.Fprintf(out, "Transactions:   %d\n", len(w.Transactions()))
			return nil
		},
	}
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <wallet-id>",
		Short: "Discover addresses and fetch new history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.load(args[0])
			if err != nil {
				return err
			}
			before := len(w.Transactions())
			if err := w.Sync(cmd.Context()); err != nil {
				return err
			}
			if err := a.engine.Save(w); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced: %d new transactions, %d addresses\n",
				len(w.Transactions())-before, len(w.Addresses()))
			return nil
		},
	}
}

func newBalanceCmd(a *app) *cobra.Command {
	var sync bool
	cmd := &cobra.Command{
		Use:   "balance <wallet-id>",
		Short: "Show the spendable balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.load(args[0])
			if err != nil {
				return err
			}
			if sync {
				if err := w.Sync(cmd.Context()); err != nil {
					return err
				}
				if err := a.engine.Save(w); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatValue(w.Balance()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", true, "Sync before reporting")
	return cmd
}

func newAddressCmd(a *app) *cobra.Command {
	var (
		generate bool
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "address <wallet-id>",
		Short: "Show receive addresses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case generate:
				addr, ok := w.GenerateNewReceiveAddress()
				if !ok {
					return fmt.Errorf("too many unused addresses; use one of the shown addresses first")
				}
				if err := a.engine.Save(w); err != nil {
					return err
				}
				fmt.Fprintln(out, addr)
			case all:
				for i, addr := range w.ReceiveAddresses() {
					fmt.Fprintf(out, "%3d  %s\n", i, addr)
				}
			default:
				fmt.Fprintln(out, w.ReceiveAddress())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&generate, "new", false, "Show one more receive address")
	cmd.Flags().BoolVar(&all, "all", false, "List every shown receive address")
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "remove <wallet-id>",
		Short: "Delete a wallet and its sealed keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("removing a wallet deletes its keys; pass --yes to confirm")
			}
			if err := a.engine.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm removal")
	return cmd
}

func newPasswdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd <wallet-id>",
		Short: "Change the spending password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.load(args[0])
			if err != nil {
				return err
			}
			old, err := readPassword("Current password: ")
			if err != nil {
				return err
			}
			next, err := readNewPassword("New password: ")
			if err != nil {
				return err
			}
			if err := w.ChangePassword(old, next); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
			return nil
		},
	}
}

// decodeHex accepts hex with or without a 0x prefix.
func decodeHex(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

// readJSONFile decodes the JSON file at path into v.
func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend health and the chain tip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := a.client.ServerStatus(cmd.Context())
			if err != nil {
				return err
			}
			tip, err := a.client.BestBlock(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Network:     %s\n", a.network.Name)
			fmt.Fprintf(out, "Server OK:   %v\n", status.IsServerOK)
			if status.IsMaintenance {
				fmt.Fprintln(out, "Maintenance: yes")
			}
			fmt.Fprintf(out, "Tip:         epoch %d slot %d height %d\n", tip.Epoch, tip.Slot, tip.Height)
			fmt.Fprintf(out, "Tip hash:    %s\n", tip.Hash)
			return nil
		},
	}
}
