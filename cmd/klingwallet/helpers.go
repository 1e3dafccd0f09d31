package main

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/pkg/types"
	"github.com/shopspring/decimal"
	"golang.org/x/term"
)

// formatADA converts lovelace to a decimal ADA string.
func formatADA(lovelace uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lovelace), -config.Decimals).StringFixed(config.Decimals)
}

// parseADA converts a decimal ADA string to lovelace.
func parseADA(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount")
	}
	units := d.Shift(config.Decimals)
	if !units.IsInteger() {
		return 0, fmt.Errorf("too many decimal places (max %d)", config.Decimals)
	}
	n := units.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("amount too large")
	}
	return n.Uint64(), nil
}

// formatValue renders coin and assets, assets sorted by id.
func formatValue(v types.Value) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s ADA", formatADA(v.Coin))
	ids := make([]string, 0, len(v.Assets))
	for id := range v.Assets {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "\n  %s: %d", id, v.Assets[types.AssetID(id)])
	}
	return b.String()
}

// ── Password helpers ────────────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return password, nil
}

// readNewPassword prompts twice and requires both entries to match.
func readNewPassword(prompt string) ([]byte, error) {
	first, err := readPassword(prompt)
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return nil, fmt.Errorf("password must not be empty")
	}
	again, err := readPassword("Repeat password: ")
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(first, again) {
		return nil, fmt.Errorf("passwords do not match")
	}
	return first, nil
}
