package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/toolboxpm/toolbox-vault/internal/storage"
)

// Group is one node of the folder hierarchy rooted at RootGroupID.
type Group struct {
	ID       int64
	ParentID int64 // 0 for the root
	Name     string
}

// ListGroups returns every group ordered by parent then name.
func (r *Repository) ListGroups() ([]Group, error) {
	rows, err := r.store.DB().Query(
		`SELECT id, COALESCE(parent_id, 0), name FROM groups ORDER BY COALESCE(parent_id, 0), name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.ParentID, &g.Name); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return out, nil
}

// GroupCache memoizes (parentID, lowercased name) → id lookups during an
// import run.
type GroupCache map[string]int64

func groupCacheKey(parentID int64, name string) string {
	return fmt.Sprintf("%d\n%s", parentID, strings.ToLower(strings.TrimSpace(name)))
}

// EnsureGroup finds or creates one group under parentID. Name matching is
// case-insensitive within a parent.
func EnsureGroup(db execer, parentID int64, name string, cache GroupCache) (int64, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return parentID, nil
	}
	if parentID <= 0 {
		parentID = storage.RootGroupID
	}

	key := groupCacheKey(parentID, trimmed)
	if cache != nil {
		if id, ok := cache[key]; ok {
			return id, nil
		}
	}

	var id int64
	err := db.QueryRow(
		`SELECT id FROM groups WHERE parent_id = ? AND name = ? COLLATE NOCASE LIMIT 1`,
		parentID, trimmed,
	).Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up group: %w", err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		now := time.Now().Unix()
		res, err := db.Exec(
			`INSERT INTO groups(parent_id, name, created_at, updated_at) VALUES(?, ?, ?, ?)`,
			parentID, trimmed, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to create group: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to read new group id: %w", err)
		}
	}

	if cache != nil {
		cache[key] = id
	}
	return id, nil
}

// EnsureGroupPath materializes a "A/B/C" path under baseGroupID, walking
// or creating each segment, and returns the terminal group id. Both "/"
// and "\" separate segments.
func EnsureGroupPath(db execer, baseGroupID int64, path string, cache GroupCache) (int64, error) {
	normalized := strings.ReplaceAll(path, "\\", "/")

	parentID := baseGroupID
	if parentID <= 0 {
		parentID = storage.RootGroupID
	}
	for _, part := range strings.Split(normalized, "/") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := EnsureGroup(db, parentID, part, cache)
		if err != nil {
			return 0, err
		}
		parentID = id
	}
	return parentID, nil
}

// EnsureGroupPath exposes path materialization on the repository for
// interactive consumers; the importer uses the package-level helper inside
// its own transaction.
func (r *Repository) EnsureGroupPath(baseGroupID int64, path string) (int64, error) {
	return EnsureGroupPath(r.store.DB(), baseGroupID, path, nil)
}
