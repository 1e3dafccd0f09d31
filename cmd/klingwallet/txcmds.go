package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Klingon-tech/klingwallet/internal/txbuilder"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"github.com/Klingon-tech/klingwallet/pkg/tx"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/spf13/cobra"
)

// prepare loads and syncs a wallet that can sign locally.
func (a *app) prepare(ctx context.Context, id string) (*wallet.Wallet, error) {
	w, err := a.load(id)
	if err != nil {
		return nil, err
	}
	if w.IsHW() {
		return nil, fmt.Errorf("wallet %s signs on a hardware device, which this CLI cannot reach", id)
	}
	if w.IsReadOnly() {
		return nil, fmt.Errorf("wallet %s is watch-only", id)
	}
	if err := w.Sync(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// signAndSubmit signs req with the spending password, submits it and
// persists the pending record.
func (a *app) signAndSubmit(ctx context.Context, out io.Writer, w *wallet.Wallet, req txbuilder.SignRequest, dryRun bool) error {
	u := req.Base()
	fmt.Fprintf(out, "Fee:     %s ADA\n", formatADA(u.Fee()))
	if dryRun {
		id, err := u.ID()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Tx ID:   %s (not submitted)\n", id)
		return nil
	}
	password, err := readPassword("Spending password: ")
	if err != nil {
		return err
	}
	signed, err := w.SignTx(req, password)
	if err != nil {
		return err
	}
	if err := w.Submit(ctx, signed); err != nil {
		return err
	}
	if err := a.engine.Save(w); err != nil {
		return err
	}
	fmt.Fprintf(out, "Submitted: %s\n", signed.ID)
	return nil
}

func newSendCmd(a *app) *cobra.Command {
	var (
		to       string
		amount   string
		asset    string
		sendAll  bool
		metaFile string
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "send <wallet-id>",
		Short: "Send ADA or a native asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return fmt.Errorf("--to is required")
			}
			token := txbuilder.SendToken{Asset: types.AssetID(asset), SendAll: sendAll}
			if !sendAll {
				var err error
				if token.Asset == "" {
					token.Amount, err = parseADA(amount)
				} else {
					_, err = fmt.Sscan(amount, &token.Amount)
				}
				if err != nil {
					return fmt.Errorf("invalid --amount: %w", err)
				}
			}
			var metadata []tx.MetadataEntry
			if metaFile != "" {
				if err := readJSONFile(metaFile, &metadata); err != nil {
					return err
				}
			}

			w, err := a.prepare(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			req, err := w.CreateUnsignedTx(wallet.PaymentParams{
				Utxos:    w.Utxos(),
				Receiver: to,
				Tokens:   []txbuilder.SendToken{token},
				Metadata: metadata,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "To:      %s\n", req.Receiver)
			fmt.Fprintf(out, "Amount:  %s\n", formatValue(req.Amount))
			return a.signAndSubmit(cmd.Context(), out, w, req, dryRun)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Receiver address")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in ADA, or asset units with --asset")
	cmd.Flags().StringVar(&asset, "asset", "", "Native asset id to send instead of ADA")
	cmd.Flags().BoolVar(&sendAll, "all", false, "Send the whole balance of the asset")
	cmd.Flags().StringVar(&metaFile, "metadata", "", "JSON file of metadata entries")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build without signing")
	return cmd
}

func newDelegateCmd(a *app) *cobra.Command {
	var (
		pool   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "delegate <wallet-id>",
		Short: "Delegate the staking key to a pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			poolHash, err := types.HexToKeyHash(pool)
			if err != nil {
				return fmt.Errorf("invalid --pool: %w", err)
			}
			w, err := a.prepare(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var rewards uint64
			if st, err := w.AccountState(cmd.Context()); err == nil && st != nil {
				rewards = st.RemainingAmount
			}
			req, err := w.CreateDelegationTx(cmd.Context(), wallet.DelegationParams{
				PoolKeyHash:    poolHash,
				Utxos:          w.Utxos(),
				ValueInAccount: rewards,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pool:    %s\n", req.PoolKeyHash)
			if req.Registering {
				fmt.Fprintf(out, "Deposit: %s ADA (staking key registration)\n", formatADA(req.Deposit))
			}
			fmt.Fprintf(out, "Stake:   %s ADA\n", formatADA(req.TotalAmountToDelegate))
			return a.signAndSubmit(cmd.Context(), out, w, req, dryRun)
		},
	}
	cmd.Flags().StringVar(&pool, "pool", "", "Pool key hash (hex)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build without signing")
	return cmd
}

func newWithdrawCmd(a *app) *cobra.Command {
	var (
		deregister bool
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "withdraw <wallet-id>",
		Short: "Withdraw staking rewards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.prepare(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			req, err := w.CreateWithdrawalTx(cmd.Context(), wallet.WithdrawalParams{
				Utxos:      w.Utxos(),
				Deregister: deregister,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rewards: %s ADA\n", formatADA(req.Withdrawn))
			if req.Deregistering {
				fmt.Fprintln(out, "Staking key will be deregistered and its deposit refunded")
			}
			return a.signAndSubmit(cmd.Context(), out, w, req, dryRun)
		},
	}
	cmd.Flags().BoolVar(&deregister, "deregister", false, "Also deregister the staking key")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build without signing")
	return cmd
}

func newVoteCmd(a *app) *cobra.Command {
	var (
		votingKey string
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "vote <wallet-id>",
		Short: "Register a voting key for the current fund",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := decodeHex(votingKey)
			if err != nil || len(key) == 0 {
				return fmt.Errorf("invalid --voting-key")
			}
			w, err := a.prepare(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if fund, err := w.FundInfo(cmd.Context()); err == nil && fund != nil && fund.CurrentFund != nil {
				fmt.Fprintf(out, "Fund:    %s (registration ends %s)\n", fund.CurrentFund.Name, fund.CurrentFund.RegistrationEnd.Format("2006-01-02"))
			}
			// The staking key signs the registration itself, so the
			// password is needed before the transaction exists.
			password, err := readPassword("Spending password: ")
			if err != nil {
				return err
			}
			req, err := w.CreateVotingRegTx(cmd.Context(), wallet.VotingParams{
				Utxos:           w.Utxos(),
				VotingPublicKey: key,
				Password:        password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Nonce:   %d\n", req.Nonce)
			fmt.Fprintf(out, "Fee:     %s ADA\n", formatADA(req.Fee()))
			if dryRun {
				return nil
			}
			signed, err := w.SignTx(req, password)
			if err != nil {
				return err
			}
			if err := w.Submit(cmd.Context(), signed); err != nil {
				return err
			}
			if err := a.engine.Save(w); err != nil {
				return err
			}
			fmt.Fprintf(out, "Submitted: %s\n", signed.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&votingKey, "voting-key", "", "Voting public key (hex)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build without signing")
	return cmd
}
