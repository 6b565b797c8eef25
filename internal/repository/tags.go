package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// execer is satisfied by *sql.DB and *sql.Tx so tag maintenance can run
// both auto-commit and inside the import transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

// ListTags returns all tag names sorted ascending.
func (r *Repository) ListTags() ([]string, error) {
	rows, err := r.store.DB().Query(`SELECT name FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}
	return out, nil
}

func (r *Repository) entryTags(entryID int64) ([]string, error) {
	return EntryTags(r.store.DB(), entryID)
}

// EntryTags returns the tag names attached to an entry.
func EntryTags(db execer, entryID int64) ([]string, error) {
	rows, err := db.Query(`
		SELECT t.name FROM tags t
		JOIN entry_tags et ON et.tag_id = t.id
		WHERE et.entry_id = ?
		ORDER BY t.name ASC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry tags: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan entry tag: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entry tags: %w", err)
	}
	return out, nil
}

// upsertTag finds a tag case-insensitively, creating it with the given
// spelling when absent, and returns its id.
func upsertTag(db execer, name string) (int64, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM tags WHERE name = ? COLLATE NOCASE LIMIT 1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up tag: %w", err)
	}

	now := time.Now().Unix()
	res, err := db.Exec(`INSERT INTO tags(name, created_at, updated_at) VALUES(?, ?, ?)`, name, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert tag: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new tag id: %w", err)
	}
	return id, nil
}

// AttachTags links tags to an entry, creating missing tag rows. Existing
// links are kept.
func AttachTags(db execer, entryID int64, tags []string) error {
	now := time.Now().Unix()
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		tagID, err := upsertTag(db, trimmed)
		if err != nil {
			return err
		}
		if _, err := db.Exec(
			`INSERT OR IGNORE INTO entry_tags(entry_id, tag_id, created_at) VALUES(?, ?, ?)`,
			entryID, tagID, now,
		); err != nil {
			return fmt.Errorf("failed to link tag: %w", err)
		}
	}
	return nil
}

// ReplaceTags swaps the entry's tag set for the given one.
func ReplaceTags(db execer, entryID int64, tags []string) error {
	if _, err := db.Exec(`DELETE FROM entry_tags WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to clear entry tags: %w", err)
	}
	return AttachTags(db, entryID, tags)
}

func (r *Repository) attachTags(db execer, entryID int64, tags []string) error {
	return AttachTags(db, entryID, tags)
}

func (r *Repository) replaceTags(db execer, entryID int64, tags []string) error {
	return ReplaceTags(db, entryID, tags)
}
