// Package vault keeps password-encrypted wallet secrets.
//
// Each secret is addressed by a wallet id and a purpose, sealed with a key
// derived from the password by Argon2id and encrypted with
// XChaCha20-Poly1305. The id and purpose are authenticated with the
// ciphertext, so a record copied under another name does not decrypt.
package vault

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingwallet/internal/errs"
	"github.com/Klingon-tech/klingwallet/internal/log"
	"github.com/Klingon-tech/klingwallet/internal/storage"
	"github.com/rs/zerolog"
)

// Purpose names what a sealed record holds.
type Purpose string

// Purposes.
const (
	PurposeMasterKey Purpose = "master-key"
)

// ErrNoSecret is returned when no record exists for an id and purpose.
var ErrNoSecret = errors.New("no secret stored")

const keyPrefix = "vault/"

// Vault seals secrets into a key-value store.
type Vault struct {
	db     storage.DB
	params Params
	logger zerolog.Logger
}

// New creates a vault over db with the default Argon2id parameters.
func New(db storage.DB) *Vault {
	return &Vault{db: db, params: DefaultParams(), logger: log.Vault}
}

// WithParams sets the Argon2id parameters for new records. Existing records
// carry their own parameters.
func (v *Vault) WithParams(p Params) *Vault {
	v.params = p
	return v
}

// WithLogger sets the logger.
func (v *Vault) WithLogger(l zerolog.Logger) *Vault {
	v.logger = l
	return v
}

func recordKey(id string, purpose Purpose) []byte {
	return []byte(keyPrefix + id + "/" + string(purpose))
}

func associated(id string, purpose Purpose) []byte {
	return []byte(id + "\x00" + string(purpose))
}

// Encrypt seals payload under password, stores it for (id, purpose) and
// returns the sealed bytes. An existing record is replaced.
func (v *Vault) Encrypt(id string, purpose Purpose, payload, password []byte) ([]byte, error) {
	if id == "" || purpose == "" {
		return nil, fmt.Errorf("vault: empty id or purpose")
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("vault: empty password")
	}
	if err := v.params.Validate(); err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	sealed, err := seal(payload, password, associated(id, purpose), v.params)
	if err != nil {
		return nil, fmt.Errorf("vault seal: %w", err)
	}
	if err := v.db.Put(recordKey(id, purpose), sealed); err != nil {
		return nil, fmt.Errorf("vault store: %w", err)
	}
	v.logger.Debug().Str("wallet", id).Str("purpose", string(purpose)).Msg("Secret stored")
	return sealed, nil
}

// Decrypt opens the record for (id, purpose). A wrong password yields
// errs.ErrWrongPassword.
func (v *Vault) Decrypt(id string, purpose Purpose, password []byte) ([]byte, error) {
	sealed, err := v.db.Get(recordKey(id, purpose))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoSecret, id, purpose)
	}
	if err != nil {
		return nil, fmt.Errorf("vault load: %w", err)
	}
	payload, err := open(sealed, password, associated(id, purpose))
	if errors.Is(err, errOpen) {
		return nil, errs.ErrWrongPassword
	}
	if err != nil {
		return nil, fmt.Errorf("vault open: %w", err)
	}
	return payload, nil
}

// ChangePassword reseals every record of id under newPassword. Nothing is
// written unless all records open with oldPassword.
func (v *Vault) ChangePassword(id string, oldPassword, newPassword []byte) error {
	if len(newPassword) == 0 {
		return fmt.Errorf("vault: empty password")
	}
	prefix := []byte(keyPrefix + id + "/")
	type record struct {
		key     []byte
		purpose Purpose
		payload []byte
	}
	var records []record
	err := v.db.ForEach(prefix, func(key, value []byte) error {
		purpose := Purpose(key[len(prefix):])
		payload, err := open(value, oldPassword, associated(id, purpose))
		if errors.Is(err, errOpen) {
			return errs.ErrWrongPassword
		}
		if err != nil {
			return fmt.Errorf("vault open %s: %w", purpose, err)
		}
		records = append(records, record{key: append([]byte(nil), key...), purpose: purpose, payload: payload})
		return nil
	})
	defer func() {
		for _, r := range records {
			zero(r.payload)
		}
	}()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: %s", ErrNoSecret, id)
	}

	batch := storage.NewBatch(v.db)
	for _, r := range records {
		sealed, err := seal(r.payload, newPassword, associated(id, r.purpose), v.params)
		if err != nil {
			return fmt.Errorf("vault seal: %w", err)
		}
		if err := batch.Put(r.key, sealed); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("vault store: %w", err)
	}
	v.logger.Info().Str("wallet", id).Int("count", len(records)).Msg("Password changed")
	return nil
}

// Delete removes every record of id.
func (v *Vault) Delete(id string) error {
	if id == "" {
		return fmt.Errorf("vault: empty id")
	}
	batch := storage.NewBatch(v.db)
	err := v.db.ForEach([]byte(keyPrefix+id+"/"), func(key, _ []byte) error {
		return batch.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("vault delete: %w", err)
	}
	return batch.Commit()
}
