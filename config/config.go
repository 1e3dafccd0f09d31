// Package config handles wallet engine configuration.
//
// Configuration is split into two categories:
//   - Network parameters: fixed per network (slot schedule, fees, deposits,
//     backend limits). Held in a Registry injected into the engine.
//   - Application settings: runtime configuration for the CLI, loaded from
//     file and environment.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// AppVersion is the application version recorded in wallet snapshots.
// Migrations compare against it.
const AppVersion = "4.2.0"

// Config holds runtime application settings.
type Config struct {
	// Network name: "mainnet" or "testnet".
	Network string `mapstructure:"network"`
	DataDir string `mapstructure:"datadir"`

	Backend BackendConfig `mapstructure:"backend"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	Log     LogConfig     `mapstructure:"log"`
}

// BackendConfig holds indexing backend settings.
type BackendConfig struct {
	// URL overrides the network's default backend root when non-empty.
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WalletConfig holds wallet defaults.
type WalletConfig struct {
	Implementation string `mapstructure:"implementation"`
	// KDF memory in KiB for the vault. Lower values are only for tests.
	KDFMemory uint32 `mapstructure:"kdf_memory"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingwallet
//	macOS:   ~/Library/Application Support/Klingwallet
//	Windows: %APPDATA%\Klingwallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingwallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingwallet")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Klingwallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingwallet")
	default:
		return filepath.Join(home, ".klingwallet")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, c.Network)
}

// WalletDBDir returns the badger directory holding wallet snapshots and the vault.
func (c *Config) WalletDBDir() string {
	return filepath.Join(c.NetworkDataDir(), "wallets")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the default config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingwallet.yaml")
}
