// Package walletstore persists wallet snapshots.
//
// Key layout (under the "w/" prefix namespace):
//
//	"<id>/meta"     → JSON Meta
//	"<id>/snapshot" → JSON Snapshot
//
// Both records of a wallet are written in one batch. A save replaces the
// whole snapshot, never individual fields.
package walletstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Klingon-tech/klingwallet/config"
	"github.com/Klingon-tech/klingwallet/internal/addrchain"
	"github.com/Klingon-tech/klingwallet/internal/hw"
	"github.com/Klingon-tech/klingwallet/internal/keys"
	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/internal/storage"
	"github.com/Klingon-tech/klingwallet/internal/txcache"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned for an unknown wallet id.
var ErrNotFound = errors.New("wallet not found")

// Meta is the wallet's listing record. It is written at creation and
// supplies defaults for fields missing from old snapshots.
type Meta struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"name"`
	NetworkID        config.NetworkID        `json:"networkId"`
	ImplementationID config.ImplementationID `json:"walletImplementationId"`
	Checksum         keys.Checksum           `json:"checksum"`
	IsHW             bool                    `json:"isHW"`
	CreatedAt        time.Time               `json:"createdAt"`
}

// Snapshot is the persisted wallet state. Pointer fields are absent in
// snapshots written before version 3.0.0.
type Snapshot struct {
	// Version is the application version that last wrote the snapshot.
	Version                   string                  `json:"version"`
	NetworkID                 *config.NetworkID       `json:"networkId,omitempty"`
	ImplementationID          config.ImplementationID `json:"walletImplementationId,omitempty"`
	HardwareInfo              *hw.DeviceInfo          `json:"hwDeviceInfo"`
	IsReadOnly                *bool                   `json:"isReadOnly,omitempty"`
	InternalChain             addrchain.Snapshot      `json:"internalChain"`
	ExternalChain             addrchain.Snapshot      `json:"externalChain"`
	PublicKeyHex              string                  `json:"publicKeyHex,omitempty"`
	TransactionCache          txcache.Snapshot        `json:"transactionCache"`
	IsEasyConfirmationEnabled bool                    `json:"isEasyConfirmationEnabled"`
	LastGeneratedAddressIndex int                     `json:"lastGeneratedAddressIndex"`
}

const (
	metaKey     = "meta"
	snapshotKey = "snapshot"
)

// Store reads and writes wallet records.
type Store struct {
	db     storage.DB
	logger zerolog.Logger
}

// New creates a store backed by db. Records live under a "w/" namespace.
func New(db storage.DB) *Store {
	return &Store{db: storage.NewPrefixDB(db, []byte("w/")), logger: log.Storage}
}

// WithLogger sets the logger.
func (s *Store) WithLogger(l zerolog.Logger) *Store {
	s.logger = l
	return s
}

func (s *Store) wallet(id string) *storage.PrefixDB {
	return storage.NewPrefixDB(s.db, []byte(id+"/"))
}

func checkID(id string) error {
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("invalid wallet id %q", id)
	}
	return nil
}

// Save writes meta and snap for meta.ID in one batch.
func (s *Store) Save(meta Meta, snap Snapshot) error {
	if err := checkID(meta.ID); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	batch := s.wallet(meta.ID).NewBatch()
	if err := batch.Put([]byte(metaKey), metaJSON); err != nil {
		return err
	}
	if err := batch.Put([]byte(snapshotKey), snapJSON); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("save wallet %s: %w", meta.ID, err)
	}
	s.logger.Debug().Str("wallet", meta.ID).Str("version", snap.Version).Msg("Wallet saved")
	return nil
}

// Meta returns the listing record of id.
func (s *Store) Meta(id string) (Meta, error) {
	var m Meta
	if err := s.get(id, metaKey, &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Load returns both records of id.
func (s *Store) Load(id string) (Meta, Snapshot, error) {
	m, err := s.Meta(id)
	if err != nil {
		return Meta{}, Snapshot{}, err
	}
	var snap Snapshot
	if err := s.get(id, snapshotKey, &snap); err != nil {
		return Meta{}, Snapshot{}, err
	}
	return m, snap, nil
}

func (s *Store) get(id, key string, v interface{}) error {
	if err := checkID(id); err != nil {
		return err
	}
	data, err := s.wallet(id).Get([]byte(key))
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load wallet %s: %w", id, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("corrupt %s of wallet %s: %w", key, id, err)
	}
	return nil
}

// List returns every wallet's meta, oldest first.
func (s *Store) List() ([]Meta, error) {
	var metas []Meta
	err := s.db.ForEach(nil, func(key, value []byte) error {
		if !strings.HasSuffix(string(key), "/"+metaKey) {
			return nil
		}
		var m Meta
		if err := json.Unmarshal(value, &m); err != nil {
			return fmt.Errorf("corrupt meta %s: %w", key, err)
		}
		metas = append(metas, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.Before(metas[j].CreatedAt)
		}
		return metas[i].ID < metas[j].ID
	})
	return metas, nil
}

// Delete removes both records of id.
func (s *Store) Delete(id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	ok, err := s.wallet(id).Has([]byte(metaKey))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.wallet(id).DeleteAll(); err != nil {
		return fmt.Errorf("delete wallet %s: %w", id, err)
	}
	s.logger.Info().Str("wallet", id).Msg("Wallet deleted")
	return nil
}
