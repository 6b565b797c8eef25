// Package repository provides typed CRUD over encrypted entries. It
// borrows the vault's master key per call and composes seal/open with row
// I/O; it never persists plaintext.
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/toolboxpm/toolbox-vault/internal/crypto"
	"github.com/toolboxpm/toolbox-vault/internal/storage"
	"github.com/toolboxpm/toolbox-vault/internal/vault"
)

var (
	// ErrNotFound indicates a lookup by id missed.
	ErrNotFound = errors.New("entry not found")
	// ErrDecryptFailed indicates a sealed field failed its tag check.
	ErrDecryptFailed = errors.New("entry data is corrupted or the master password does not match")
	// ErrValidation indicates the input was rejected before any
	// cryptographic work.
	ErrValidation = errors.New("invalid entry")
)

// EntryType classifies what a credential belongs to.
type EntryType int

const (
	WebLogin EntryType = iota
	DesktopClient
	APIKeyToken
	DatabaseCredential
	ServerSSH
	DeviceWifi
)

func (t EntryType) String() string {
	switch t {
	case WebLogin:
		return "web"
	case DesktopClient:
		return "desktop"
	case APIKeyToken:
		return "api-key"
	case DatabaseCredential:
		return "database"
	case ServerSSH:
		return "ssh"
	case DeviceWifi:
		return "wifi"
	default:
		return "unknown"
	}
}

// EntrySummary is the non-secret projection of an entry.
type EntrySummary struct {
	ID        int64
	GroupID   int64
	EntryType EntryType
	Title     string
	Username  string
	URL       string
	Category  string
	Tags      []string
	CreatedAt int64
	UpdatedAt int64
}

// EntrySecrets is a summary plus decrypted password and notes. Instances
// live only inside a single operation.
type EntrySecrets struct {
	Entry    EntrySummary
	Password string
	Notes    string
}

// Repository mediates entry access. Secret-reading operations require the
// vault to be unlocked; listing non-secret fields does not.
type Repository struct {
	store *storage.Store
	vault *vault.Service
}

func New(store *storage.Store, v *vault.Service) *Repository {
	return &Repository{store: store, vault: v}
}

// ListEntries returns every entry's non-secret fields ordered by
// updated_at descending. Allowed while locked.
func (r *Repository) ListEntries() ([]EntrySummary, error) {
	rows, err := r.store.DB().Query(`
		SELECT id, group_id, entry_type, title, COALESCE(username, ''), COALESCE(url, ''),
		       COALESCE(category, ''), created_at, updated_at
		FROM password_entries
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var items []EntrySummary
	for rows.Next() {
		var e EntrySummary
		var entryType int
		if err := rows.Scan(&e.ID, &e.GroupID, &entryType, &e.Title, &e.Username,
			&e.URL, &e.Category, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.EntryType = EntryType(entryType)
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	rows.Close()

	for i := range items {
		tags, err := r.entryTags(items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Tags = tags
	}
	return items, nil
}

// ListCategories returns the distinct non-empty categories sorted
// ascending. Allowed while locked.
func (r *Repository) ListCategories() ([]string, error) {
	rows, err := r.store.DB().Query(`
		SELECT DISTINCT category FROM password_entries
		WHERE category IS NOT NULL AND category <> ''
		ORDER BY category ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return out, nil
}

// LoadEntry reads one entry and opens its sealed fields. A failed tag
// check surfaces as ErrDecryptFailed without leaking partial plaintext.
func (r *Repository) LoadEntry(id int64) (*EntrySecrets, error) {
	if !r.vault.IsUnlocked() {
		return nil, vault.ErrLocked
	}

	var out EntrySecrets
	var entryType int
	var passwordEnc, notesEnc []byte
	err := r.store.DB().QueryRow(`
		SELECT id, group_id, entry_type, title, COALESCE(username, ''), password_enc,
		       COALESCE(url, ''), COALESCE(category, ''), notes_enc, created_at, updated_at
		FROM password_entries WHERE id = ?`, id,
	).Scan(&out.Entry.ID, &out.Entry.GroupID, &entryType, &out.Entry.Title, &out.Entry.Username,
		&passwordEnc, &out.Entry.URL, &out.Entry.Category, &notesEnc,
		&out.Entry.CreatedAt, &out.Entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}
	out.Entry.EntryType = EntryType(entryType)

	key := r.vault.MasterKey()

	plainPassword, err := crypto.Open(key, passwordEnc)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	out.Password = string(plainPassword)
	crypto.ClearBytes(plainPassword)

	if len(notesEnc) > 0 {
		plainNotes, err := crypto.Open(key, notesEnc)
		if err != nil {
			return nil, ErrDecryptFailed
		}
		out.Notes = string(plainNotes)
		crypto.ClearBytes(plainNotes)
	}

	tags, err := r.entryTags(out.Entry.ID)
	if err != nil {
		return nil, err
	}
	out.Entry.Tags = tags
	return &out, nil
}

func validateSecrets(secrets *EntrySecrets) error {
	if strings.TrimSpace(secrets.Entry.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if secrets.Password == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}
	return nil
}

func normalizeTimestamp(ts, fallback int64) int64 {
	if ts <= 0 {
		return fallback
	}
	return ts
}

// AddEntry seals and inserts a new entry stamped with the current time.
// Returns the new entry id.
func (r *Repository) AddEntry(secrets *EntrySecrets) (int64, error) {
	now := time.Now().Unix()
	return r.AddEntryWithTimestamps(secrets, now, now)
}

// AddEntryWithTimestamps is the import path: created/updated timestamps
// come from the caller, with non-positive values replaced by now and
// updated_at never preceding created_at.
func (r *Repository) AddEntryWithTimestamps(secrets *EntrySecrets, createdAt, updatedAt int64) (int64, error) {
	if !r.vault.IsUnlocked() {
		return 0, vault.ErrLocked
	}
	if err := validateSecrets(secrets); err != nil {
		return 0, err
	}

	key := r.vault.MasterKey()
	passwordEnc, err := crypto.Seal(key, []byte(secrets.Password))
	if err != nil {
		return 0, err
	}
	var notesEnc []byte
	if strings.TrimSpace(secrets.Notes) != "" {
		if notesEnc, err = crypto.Seal(key, []byte(secrets.Notes)); err != nil {
			return 0, err
		}
	}

	now := time.Now().Unix()
	created := normalizeTimestamp(createdAt, now)
	updated := normalizeTimestamp(updatedAt, created)
	if updated < created {
		updated = created
	}

	groupID := secrets.Entry.GroupID
	if groupID <= 0 {
		groupID = storage.RootGroupID
	}

	res, err := r.store.DB().Exec(`
		INSERT INTO password_entries(group_id, entry_type, title, username, password_enc, url, category, notes_enc, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		groupID, int(secrets.Entry.EntryType), secrets.Entry.Title, secrets.Entry.Username,
		passwordEnc, secrets.Entry.URL, secrets.Entry.Category, notesEnc, created, updated,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new entry id: %w", err)
	}

	if len(secrets.Entry.Tags) > 0 {
		if err := r.attachTags(r.store.DB(), id, secrets.Entry.Tags); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// UpdateEntry reseals password and notes, bumps updated_at, and preserves
// created_at.
func (r *Repository) UpdateEntry(secrets *EntrySecrets) error {
	if !r.vault.IsUnlocked() {
		return vault.ErrLocked
	}
	if secrets.Entry.ID <= 0 {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if err := validateSecrets(secrets); err != nil {
		return err
	}

	key := r.vault.MasterKey()
	passwordEnc, err := crypto.Seal(key, []byte(secrets.Password))
	if err != nil {
		return err
	}
	var notesEnc []byte
	if strings.TrimSpace(secrets.Notes) != "" {
		if notesEnc, err = crypto.Seal(key, []byte(secrets.Notes)); err != nil {
			return err
		}
	}

	groupID := secrets.Entry.GroupID
	if groupID <= 0 {
		groupID = storage.RootGroupID
	}

	res, err := r.store.DB().Exec(`
		UPDATE password_entries
		SET group_id = ?, entry_type = ?, title = ?, username = ?, password_enc = ?,
		    url = ?, category = ?, notes_enc = ?, updated_at = ?
		WHERE id = ?`,
		groupID, int(secrets.Entry.EntryType), secrets.Entry.Title, secrets.Entry.Username,
		passwordEnc, secrets.Entry.URL, secrets.Entry.Category, notesEnc,
		time.Now().Unix(), secrets.Entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := r.replaceTags(r.store.DB(), secrets.Entry.ID, secrets.Entry.Tags); err != nil {
		return err
	}
	return nil
}

// DeleteEntry removes an entry; entry_tags rows cascade.
func (r *Repository) DeleteEntry(id int64) error {
	res, err := r.store.DB().Exec(`DELETE FROM password_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
