// Package backup seals the full vault contents into a portable .tbxpm
// file. The backup key is derived independently from the live vault so a
// backup password never has to match the master password.
package backup

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/toolboxpm/toolbox-vault/internal/crypto"
	"github.com/toolboxpm/toolbox-vault/internal/repository"
	"github.com/toolboxpm/toolbox-vault/internal/vault"
)

const (
	// FileFormat and FileVersion identify the outer JSON envelope.
	FileFormat  = "ToolboxPasswordBackup"
	FileVersion = 1

	// Extension is the conventional backup file extension.
	Extension = ".tbxpm"

	backupIterations = 120000
)

// ErrBadFile indicates the outer envelope is missing fields or is not a
// Toolbox backup at all.
var ErrBadFile = errors.New("not a valid backup file")

type kdfParams struct {
	Salt       string `json:"salt"`
	Iterations int    `json:"iterations"`
}

type fileEnvelope struct {
	Format     string    `json:"format"`
	Version    int       `json:"version"`
	KDF        kdfParams `json:"kdf"`
	Ciphertext string    `json:"ciphertext"`
	ExportedAt int64     `json:"exported_at"`
}

type backupEntry struct {
	Title     string `json:"title"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	URL       string `json:"url"`
	Category  string `json:"category"`
	Notes     string `json:"notes"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

type payload struct {
	Version    int           `json:"version"`
	ExportedAt int64         `json:"exported_at"`
	Entries    []backupEntry `json:"entries"`
}

// Export collects every entry in full, seals the JSON under a key derived
// from backupPassword with a fresh salt, and atomically writes the outer
// envelope to path. Returns the number of exported entries.
func Export(repo *repository.Repository, v *vault.Service, path string, backupPassword []byte) (int, error) {
	defer crypto.ClearBytes(backupPassword)

	if !v.IsUnlocked() {
		return 0, vault.ErrLocked
	}

	summaries, err := repo.ListEntries()
	if err != nil {
		return 0, err
	}

	exportedAt := time.Now().Unix()
	inner := payload{Version: FileVersion, ExportedAt: exportedAt}
	for _, summary := range summaries {
		full, err := repo.LoadEntry(summary.ID)
		if err != nil {
			return 0, err
		}
		inner.Entries = append(inner.Entries, backupEntry{
			Title:     full.Entry.Title,
			Username:  full.Entry.Username,
			Password:  full.Password,
			URL:       full.Entry.URL,
			Category:  full.Entry.Category,
			Notes:     full.Notes,
			CreatedAt: full.Entry.CreatedAt,
			UpdatedAt: full.Entry.UpdatedAt,
		})
	}

	plain, err := json.Marshal(inner)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal backup payload: %w", err)
	}
	defer crypto.ClearBytes(plain)

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return 0, err
	}
	key := crypto.DeriveKey(backupPassword, salt, backupIterations)
	defer crypto.ClearBytes(key)

	sealed, err := crypto.Seal(key, plain)
	if err != nil {
		return 0, err
	}

	outer := fileEnvelope{
		Format:  FileFormat,
		Version: FileVersion,
		KDF: kdfParams{
			Salt:       base64.StdEncoding.EncodeToString(salt),
			Iterations: backupIterations,
		},
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		ExportedAt: exportedAt,
	}
	data, err := json.MarshalIndent(outer, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal backup file: %w", err)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return 0, err
	}
	return len(inner.Entries), nil
}

// Import opens a backup with backupPassword and inserts every entry with
// its own timestamps. A wrong password surfaces as
// vault.ErrAuthenticationFailed; the first insert failure aborts the rest.
// Returns the number of imported entries.
func Import(repo *repository.Repository, v *vault.Service, path string, backupPassword []byte) (int, error) {
	defer crypto.ClearBytes(backupPassword)

	if !v.IsUnlocked() {
		return 0, vault.ErrLocked
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read backup file: %w", err)
	}

	var outer fileEnvelope
	if err := json.Unmarshal(data, &outer); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadFile, err)
	}
	if outer.Format != FileFormat {
		return 0, fmt.Errorf("%w: unexpected format %q", ErrBadFile, outer.Format)
	}
	if outer.Version != FileVersion {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrBadFile, outer.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(outer.KDF.Salt)
	if err != nil {
		return 0, fmt.Errorf("%w: bad salt encoding", ErrBadFile)
	}
	sealed, err := base64.StdEncoding.DecodeString(outer.Ciphertext)
	if err != nil {
		return 0, fmt.Errorf("%w: bad ciphertext encoding", ErrBadFile)
	}
	if len(salt) == 0 || outer.KDF.Iterations <= 0 || len(sealed) == 0 {
		return 0, fmt.Errorf("%w: missing required fields", ErrBadFile)
	}

	key := crypto.DeriveKey(backupPassword, salt, outer.KDF.Iterations)
	defer crypto.ClearBytes(key)

	plain, err := crypto.Open(key, sealed)
	if err != nil {
		return 0, vault.ErrAuthenticationFailed
	}
	defer crypto.ClearBytes(plain)

	var inner payload
	if err := json.Unmarshal(plain, &inner); err != nil {
		return 0, fmt.Errorf("%w: corrupted payload", ErrBadFile)
	}
	if inner.Version != FileVersion {
		return 0, fmt.Errorf("%w: unsupported payload version %d", ErrBadFile, inner.Version)
	}

	imported := 0
	for _, e := range inner.Entries {
		if strings.TrimSpace(e.Title) == "" || e.Password == "" {
			continue
		}
		secrets := &repository.EntrySecrets{
			Entry: repository.EntrySummary{
				Title:    e.Title,
				Username: e.Username,
				URL:      e.URL,
				Category: e.Category,
			},
			Password: e.Password,
			Notes:    e.Notes,
		}
		if _, err := repo.AddEntryWithTimestamps(secrets, e.CreatedAt, e.UpdatedAt); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// writeFileAtomic writes to a temp file in the target directory and
// renames it into place so a crash never leaves a truncated backup.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := tmp.Chmod(0o600); err != nil {
		cleanup()
		return fmt.Errorf("failed to restrict backup permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write backup: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close backup: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move backup into place: %w", err)
	}
	return nil
}
