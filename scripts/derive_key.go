// derive_key.go prints the account public key, checksum and first receive
// address for a recovery phrase file. The output feeds `klingwallet import-key`.
// Usage: go run scripts/derive_key.go <phrase-file> [byron|shelley] [mainnet|testnet]
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/addrchain"
	"github.com/Klingon-tech/klingwallet/internal/keys"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <phrase-file> [byron|shelley] [mainnet|testnet]")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fatal(err)
	}
	mnemonic := strings.Join(strings.Fields(string(data)), " ")
	if !keys.ValidateMnemonic(mnemonic) {
		fatal(fmt.Errorf("invalid recovery phrase"))
	}

	era := keys.EraShelley
	if len(os.Args) > 2 && os.Args[2] == "byron" {
		era = keys.EraByron
	}
	network := config.MainnetParams()
	if len(os.Args) > 3 && os.Args[3] == "testnet" {
		network = config.TestnetParams()
	}

	seed, err := keys.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal(err)
	}
	master, err := keys.NewMasterKey(seed)
	if err != nil {
		fatal(err)
	}
	account, err := keys.DeriveAccountKey(master, era)
	if err != nil {
		fatal(err)
	}
	pubHex := account.Neuter().Hex()
	checksum, err := keys.ComputeChecksum(era, pubHex)
	if err != nil {
		fatal(err)
	}
	gen, err := addrchain.NewGenerator(addrchain.GeneratorParams{
		AccountPubKey: pubHex,
		Type:          addrchain.External,
		Era:           era,
		NetworkTag:    network.ChainNetworkTag,
	})
	if err != nil {
		fatal(err)
	}
	addr, err := gen.Generate(0)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("account=%s\n", pubHex)
	fmt.Printf("checksum=%s\n", checksum.TextPart)
	fmt.Printf("address=%s\n", addr)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
