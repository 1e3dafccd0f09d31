// klingwallet is a command-line HD wallet driving a remote indexing backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/backend"
	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/internal/storage"
	"github.com/Klingon-tech/klingwallet/internal/vault"
	"github.com/Klingon-tech/klingwallet/internal/wallet"
	"github.com/Klingon-tech/klingwallet/internal/walletstore"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the wiring shared by every command.
type app struct {
	cfg      *config.Config
	registry *config.Registry
	network  config.Network
	db       storage.DB
	client   *backend.Client
	engine   *wallet.Engine
}

type rootFlags struct {
	configFile string
	network    string
	dataDir    string
	backendURL string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var (
		flags rootFlags
		a     app
	)
	root := &cobra.Command{
		Use:           "klingwallet",
		Short:         "HD wallet for Cardano-style UTXO chains",
		Version:       config.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, flags)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Config file (default <datadir>/klingwallet.yaml)")
	pf.StringVar(&flags.network, "network", "mainnet", "Network: mainnet or testnet")
	pf.StringVar(&flags.dataDir, "datadir", "", "Data directory")
	pf.StringVar(&flags.backendURL, "backend", "", "Backend URL override")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level")

	root.AddCommand(
		newCreateCmd(&a),
		newImportKeyCmd(&a),
		newListCmd(&a),
		newInfoCmd(&a),
		newSyncCmd(&a),
		newBalanceCmd(&a),
		newAddressCmd(&a),
		newSendCmd(&a),
		newDelegateCmd(&a),
		newWithdrawCmd(&a),
		newVoteCmd(&a),
		newPasswdCmd(&a),
		newRemoveCmd(&a),
		newStatusCmd(&a),
	)
	return root
}

// init loads configuration, sets up logging and opens the wallet database.
func (a *app) init(cmd *cobra.Command, flags rootFlags) error {
	v := config.NewViper(flags.network)
	pf := cmd.Flags()
	for key, name := range map[string]string{
		"datadir":     "datadir",
		"backend.url": "backend",
		"log.level":   "log-level",
	} {
		if f := pf.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	path := flags.configFile
	if path == "" {
		path = filepath.Join(v.GetString("datadir"), "klingwallet.yaml")
	}
	cfg, err := config.Load(v, path)
	if err != nil {
		return err
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	a.cfg = cfg
	a.registry = config.DefaultRegistry()
	if a.network, err = a.registry.NetworkByName(cfg.Network); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.WalletDBDir(), 0700); err != nil {
		return fmt.Errorf("create wallet dir: %w", err)
	}
	db, err := storage.NewBadger(cfg.WalletDBDir())
	if err != nil {
		return fmt.Errorf("open wallet db: %w", err)
	}
	a.db = db

	params := vault.DefaultParams()
	if cfg.Wallet.KDFMemory > 0 {
		params.Memory = cfg.Wallet.KDFMemory
	}
	client, err := backend.New(a.network.Backend, cfg.Backend.URL, cfg.Backend.Timeout)
	if err != nil {
		return err
	}
	a.client = client
	a.engine = wallet.New(a.registry, vault.New(db).WithParams(params), client, walletstore.New(db))
	log.Logger.Debug().
		Str("network", a.network.Name).
		Str("db", cfg.WalletDBDir()).
		Msg("Wallet engine ready")
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// load restores the wallet with the given id.
func (a *app) load(id string) (*wallet.Wallet, error) {
	w, err := a.engine.Load(id)
	if err != nil {
		return nil, fmt.Errorf("load wallet %s: %w", id, err)
	}
	if w.Network().ID != a.network.ID {
		return nil, fmt.Errorf("wallet %s belongs to network %s", id, w.Network().Name)
	}
	return w, nil
}
