// Package importer loads credential CSV files into the vault database.
// Each run opens its own database handle and performs the whole import in
// one transaction so a failure or cancellation leaves no partial state.
package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/toolboxpm/toolbox-vault/internal/crypto"
	"github.com/toolboxpm/toolbox-vault/internal/csvcodec"
	"github.com/toolboxpm/toolbox-vault/internal/repository"
	"github.com/toolboxpm/toolbox-vault/internal/storage"
	"github.com/toolboxpm/toolbox-vault/internal/urlutil"
)

// ErrCanceled reports a user-requested abort; the transaction has been
// rolled back.
var ErrCanceled = errors.New("import canceled")

// DuplicatePolicy decides what happens when an incoming row matches an
// existing entry.
type DuplicatePolicy int

const (
	PolicySkip DuplicatePolicy = iota
	PolicyUpdate
	PolicyImportAnyway
)

// Options configures an import run.
type Options struct {
	DuplicatePolicy              DuplicatePolicy
	CreateGroupsFromCategoryPath bool
	DefaultEntryType             repository.EntryType
}

// Result summarizes a finished import.
type Result struct {
	Inserted       int
	Updated        int
	SkippedDup     int
	SkippedInvalid int
	Warnings       []string
}

// ProgressFunc receives (done, total) ticks at row boundaries.
type ProgressFunc func(done, total int)

// Worker holds an owned copy of the master key for the duration of one
// import. Close zeroes it.
type Worker struct {
	csvPath        string
	dbPath         string
	masterKey      []byte
	defaultGroupID int64
	opts           Options
	progress       ProgressFunc
}

// NewWorker constructs an import worker. masterKey ownership transfers to
// the worker.
func NewWorker(csvPath, dbPath string, masterKey []byte, defaultGroupID int64, opts Options) *Worker {
	if defaultGroupID <= 0 {
		defaultGroupID = storage.RootGroupID
	}
	return &Worker{
		csvPath:        csvPath,
		dbPath:         dbPath,
		masterKey:      masterKey,
		defaultGroupID: defaultGroupID,
		opts:           opts,
	}
}

// SetProgress installs a progress callback; pass nil to disable.
func (w *Worker) SetProgress(fn ProgressFunc) {
	w.progress = fn
}

// Close zeroes the owned key copy.
func (w *Worker) Close() {
	crypto.ClearBytes(w.masterKey)
	w.masterKey = nil
}

func (w *Worker) tick(done, total int) {
	if w.progress != nil {
		w.progress(done, total)
	}
}

// dupKey computes the duplicate-detection key: normalized host plus
// lowercased username when a host is derivable, title otherwise.
func dupKey(title, username, rawURL string) string {
	user := strings.ToLower(strings.TrimSpace(username))
	if host := urlutil.HostFromURL(rawURL); host != "" {
		return host + "\n" + user
	}
	return strings.ToLower(strings.TrimSpace(title)) + "\n" + user
}

func loadExistingKeys(db *sql.DB) (map[string]int64, error) {
	rows, err := db.Query(`SELECT id, title, COALESCE(username, ''), COALESCE(url, '') FROM password_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing entries: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]int64)
	for rows.Next() {
		var id int64
		var title, username, url string
		if err := rows.Scan(&id, &title, &username, &url); err != nil {
			return nil, fmt.Errorf("failed to scan existing entry: %w", err)
		}
		key := dupKey(title, username, url)
		if _, seen := existing[key]; !seen {
			existing[key] = id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate existing entries: %w", err)
	}
	return existing, nil
}

// Run parses the CSV and applies it to the database. The returned error is
// ErrCanceled after a cooperative abort; any other error also means the
// transaction was rolled back.
func (w *Worker) Run(ctx context.Context) (*Result, error) {
	data, err := os.ReadFile(w.csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv file: %w", err)
	}

	parsed, err := csvcodec.Parse(data, w.defaultGroupID)
	if err != nil {
		return nil, err
	}

	db, err := storage.OpenWorker(w.dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	existing, err := loadExistingKeys(db)
	if err != nil {
		return nil, err
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	result := &Result{
		SkippedInvalid: parsed.SkippedInvalid + parsed.SkippedEmpty,
		Warnings:       parsed.Warnings,
	}

	now := time.Now().Unix()
	groupCache := repository.GroupCache{}
	total := len(parsed.Entries)
	w.tick(0, total)

	for i, secrets := range parsed.Entries {
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}

		if strings.TrimSpace(secrets.Entry.Title) == "" || secrets.Password == "" {
			result.SkippedInvalid++
			w.tick(i+1, total)
			continue
		}

		groupID := secrets.Entry.GroupID
		if groupID <= 0 {
			groupID = w.defaultGroupID
		}
		if w.opts.CreateGroupsFromCategoryPath && strings.TrimSpace(secrets.Entry.Category) != "" {
			groupID, err = repository.EnsureGroupPath(tx, groupID, strings.TrimSpace(secrets.Entry.Category), groupCache)
			if err != nil {
				return nil, err
			}
		}

		key := dupKey(secrets.Entry.Title, secrets.Entry.Username, secrets.Entry.URL)
		existingID, exists := existing[key]

		if exists && w.opts.DuplicatePolicy == PolicySkip {
			result.SkippedDup++
			w.tick(i+1, total)
			continue
		}

		passwordEnc, err := crypto.Seal(w.masterKey, []byte(secrets.Password))
		if err != nil {
			return nil, err
		}
		var notesEnc []byte
		if strings.TrimSpace(secrets.Notes) != "" {
			if notesEnc, err = crypto.Seal(w.masterKey, []byte(secrets.Notes)); err != nil {
				return nil, err
			}
		}

		if exists && w.opts.DuplicatePolicy == PolicyUpdate {
			if err := w.updateDuplicate(tx, existingID, groupID, &secrets, passwordEnc, notesEnc, now); err != nil {
				return nil, err
			}
			result.Updated++
		} else {
			id, err := w.insertEntry(tx, groupID, &secrets, passwordEnc, notesEnc, now)
			if err != nil {
				return nil, err
			}
			if _, seen := existing[key]; !seen {
				existing[key] = id
			}
			result.Inserted++
		}
		w.tick(i+1, total)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}
	committed = true
	return result, nil
}

func (w *Worker) insertEntry(tx *sql.Tx, groupID int64, secrets *repository.EntrySecrets, passwordEnc, notesEnc []byte, now int64) (int64, error) {
	res, err := tx.Exec(`
		INSERT INTO password_entries(group_id, entry_type, title, username, password_enc, url, category, notes_enc, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		groupID, int(w.opts.DefaultEntryType), secrets.Entry.Title, secrets.Entry.Username,
		passwordEnc, secrets.Entry.URL, secrets.Entry.Category, notesEnc, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new entry id: %w", err)
	}
	if err := repository.AttachTags(tx, id, secrets.Entry.Tags); err != nil {
		return 0, err
	}
	return id, nil
}

// updateDuplicate reseals secrets onto an existing row. URL and category
// are only overwritten when the stored value is empty, so user edits
// survive re-imports.
func (w *Worker) updateDuplicate(tx *sql.Tx, entryID, groupID int64, secrets *repository.EntrySecrets, passwordEnc, notesEnc []byte, now int64) error {
	var existingURL, existingCategory string
	err := tx.QueryRow(
		`SELECT COALESCE(url, ''), COALESCE(category, '') FROM password_entries WHERE id = ?`, entryID,
	).Scan(&existingURL, &existingCategory)
	if err != nil {
		return fmt.Errorf("failed to read duplicate entry: %w", err)
	}

	finalURL := existingURL
	if strings.TrimSpace(existingURL) == "" {
		finalURL = secrets.Entry.URL
	}
	finalCategory := existingCategory
	if strings.TrimSpace(existingCategory) == "" {
		finalCategory = secrets.Entry.Category
	}

	if _, err := tx.Exec(`
		UPDATE password_entries
		SET group_id = ?, entry_type = ?, password_enc = ?, url = ?, category = ?, notes_enc = ?, updated_at = ?
		WHERE id = ?`,
		groupID, int(w.opts.DefaultEntryType), passwordEnc, finalURL, finalCategory, notesEnc, now, entryID,
	); err != nil {
		return fmt.Errorf("failed to update duplicate entry: %w", err)
	}

	return repository.ReplaceTags(tx, entryID, secrets.Entry.Tags)
}
