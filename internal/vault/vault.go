// Package vault owns the master key lifecycle: create, unlock, lock, and
// master-password rotation. Nothing outside this package derives the master
// key or touches the verifier.
package vault

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/toolboxpm/toolbox-vault/internal/crypto"
	"github.com/toolboxpm/toolbox-vault/internal/storage"
)

// verifierPlaintext is the fixed marker sealed into the verifier blob.
// Unlock succeeds iff the candidate key opens it; entries are never
// decrypted speculatively to validate a password.
var verifierPlaintext = []byte("ToolboxPM/verifier")

// Meta mirrors the single vault_meta row.
type Meta struct {
	Salt       []byte
	Iterations int
	Verifier   []byte
	CreatedAt  int64
	UpdatedAt  int64
}

// Service mediates every encrypt/decrypt through the in-memory master key.
// States: uninitialized (no meta row), locked (meta, no key), unlocked.
type Service struct {
	store      *storage.Store
	iterations int

	meta      *Meta
	masterKey []byte // nil while locked
}

// New creates a vault service over an opened store. The stored meta row is
// loaded eagerly so state checks never hit the database afterwards.
func New(store *storage.Store) (*Service, error) {
	v := &Service{store: store, iterations: crypto.DefaultIterations}
	if err := v.reloadMeta(); err != nil {
		return nil, err
	}
	return v, nil
}

// SetIterations overrides the KDF cost for subsequently created vaults and
// master-password changes. Values below the floor are clamped.
func (v *Service) SetIterations(iterations int) {
	if iterations < crypto.MinIterations {
		iterations = crypto.MinIterations
	}
	v.iterations = iterations
}

func (v *Service) reloadMeta() error {
	var m Meta
	err := v.store.DB().QueryRow(
		`SELECT kdf_salt, kdf_iterations, verifier, created_at, updated_at FROM vault_meta WHERE id = 1`,
	).Scan(&m.Salt, &m.Iterations, &m.Verifier, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		v.meta = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read vault meta: %w", err)
	}
	v.meta = &m
	return nil
}

// IsInitialized reports whether the meta row exists.
func (v *Service) IsInitialized() bool {
	return v.meta != nil
}

// IsUnlocked reports whether the master key is held in memory.
func (v *Service) IsUnlocked() bool {
	return v.masterKey != nil
}

// MasterKey exposes the in-memory key for the duration of a single
// repository call. Callers must not retain or copy it; workers use
// MasterKeyCopy instead.
func (v *Service) MasterKey() []byte {
	return v.masterKey
}

// MasterKeyCopy returns an owned copy of the master key for a background
// worker. The worker is responsible for zeroing it.
func (v *Service) MasterKeyCopy() ([]byte, error) {
	if v.masterKey == nil {
		return nil, ErrLocked
	}
	out := make([]byte, len(v.masterKey))
	copy(out, v.masterKey)
	return out, nil
}

// Meta returns a copy of the stored KDF parameters, or nil when the vault
// is uninitialized.
func (v *Service) Meta() *Meta {
	if v.meta == nil {
		return nil
	}
	m := *v.meta
	return &m
}

// Create initializes a new vault and leaves it unlocked.
func (v *Service) Create(password []byte) error {
	defer crypto.ClearBytes(password)

	if v.meta != nil {
		return ErrAlreadyInitialized
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}

	key := crypto.DeriveKey(password, salt, v.iterations)
	verifier, err := crypto.Seal(key, verifierPlaintext)
	if err != nil {
		crypto.ClearBytes(key)
		return err
	}

	now := time.Now().Unix()
	_, err = v.store.DB().Exec(
		`INSERT INTO vault_meta(id, kdf_salt, kdf_iterations, verifier, created_at, updated_at)
		 VALUES(1, ?, ?, ?, ?, ?)`,
		salt, v.iterations, verifier, now, now,
	)
	if err != nil {
		crypto.ClearBytes(key)
		return fmt.Errorf("failed to write vault meta: %w", err)
	}

	v.meta = &Meta{Salt: salt, Iterations: v.iterations, Verifier: verifier, CreatedAt: now, UpdatedAt: now}
	v.masterKey = key
	return nil
}

// Unlock derives a candidate key from password and validates it against
// the verifier. On failure the vault stays locked.
func (v *Service) Unlock(password []byte) error {
	defer crypto.ClearBytes(password)

	if v.meta == nil {
		return ErrNotInitialized
	}
	if v.masterKey != nil {
		return nil
	}

	key := crypto.DeriveKey(password, v.meta.Salt, v.meta.Iterations)
	plain, err := crypto.Open(key, v.meta.Verifier)
	if err != nil {
		crypto.ClearBytes(key)
		return ErrAuthenticationFailed
	}
	crypto.ClearBytes(plain)

	v.masterKey = key
	return nil
}

// Lock zeroes and drops the master key. Idempotent; a no-op on an
// uninitialized vault.
func (v *Service) Lock() {
	if v.masterKey != nil {
		crypto.ClearBytes(v.masterKey)
		v.masterKey = nil
	}
}

// ChangeMaster re-encrypts every stored entry under a key derived from
// newPassword and rewrites the verifier, all inside one transaction. On
// any failure the transaction rolls back and the old key stays active.
func (v *Service) ChangeMaster(newPassword []byte) error {
	defer crypto.ClearBytes(newPassword)

	if v.meta == nil {
		return ErrNotInitialized
	}
	if v.masterKey == nil {
		return ErrLocked
	}

	newSalt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	newKey := crypto.DeriveKey(newPassword, newSalt, v.iterations)

	newVerifier, err := crypto.Seal(newKey, verifierPlaintext)
	if err != nil {
		crypto.ClearBytes(newKey)
		return err
	}

	tx, err := v.store.DB().Begin()
	if err != nil {
		crypto.ClearBytes(newKey)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := resealEntries(tx, v.masterKey, newKey); err != nil {
		tx.Rollback()
		crypto.ClearBytes(newKey)
		return err
	}

	now := time.Now().Unix()
	if _, err := tx.Exec(
		`UPDATE vault_meta SET kdf_salt = ?, kdf_iterations = ?, verifier = ?, updated_at = ? WHERE id = 1`,
		newSalt, v.iterations, newVerifier, now,
	); err != nil {
		tx.Rollback()
		crypto.ClearBytes(newKey)
		return fmt.Errorf("failed to rewrite vault meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		crypto.ClearBytes(newKey)
		return fmt.Errorf("failed to commit master change: %w", err)
	}

	v.meta.Salt = newSalt
	v.meta.Iterations = v.iterations
	v.meta.Verifier = newVerifier
	v.meta.UpdatedAt = now

	crypto.ClearBytes(v.masterKey)
	v.masterKey = newKey
	return nil
}

func resealEntries(tx *sql.Tx, oldKey, newKey []byte) error {
	rows, err := tx.Query(`SELECT id, password_enc, notes_enc FROM password_entries`)
	if err != nil {
		return fmt.Errorf("failed to read entries: %w", err)
	}
	defer rows.Close()

	type resealed struct {
		id          int64
		passwordEnc []byte
		notesEnc    []byte
	}
	var updates []resealed

	for rows.Next() {
		var id int64
		var passwordEnc, notesEnc []byte
		if err := rows.Scan(&id, &passwordEnc, &notesEnc); err != nil {
			return fmt.Errorf("failed to scan entry: %w", err)
		}

		plainPassword, err := crypto.Open(oldKey, passwordEnc)
		if err != nil {
			return fmt.Errorf("entry %d: %w", id, err)
		}
		newPasswordEnc, err := crypto.Seal(newKey, plainPassword)
		crypto.ClearBytes(plainPassword)
		if err != nil {
			return err
		}

		var newNotesEnc []byte
		if len(notesEnc) > 0 {
			plainNotes, err := crypto.Open(oldKey, notesEnc)
			if err != nil {
				return fmt.Errorf("entry %d: %w", id, err)
			}
			newNotesEnc, err = crypto.Seal(newKey, plainNotes)
			crypto.ClearBytes(plainNotes)
			if err != nil {
				return err
			}
		}

		updates = append(updates, resealed{id: id, passwordEnc: newPasswordEnc, notesEnc: newNotesEnc})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate entries: %w", err)
	}
	// Release the cursor before issuing writes on the same transaction.
	rows.Close()

	for _, u := range updates {
		if _, err := tx.Exec(
			`UPDATE password_entries SET password_enc = ?, notes_enc = ? WHERE id = ?`,
			u.passwordEnc, u.notesEnc, u.id,
		); err != nil {
			return fmt.Errorf("failed to reseal entry %d: %w", u.id, err)
		}
	}
	return nil
}
